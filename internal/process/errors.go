package process

import "errors"

var (
	// ErrNotFound reports that the executable does not exist or could not be located at spawn time.
	ErrNotFound = errors.New("executable not found")
	// ErrNotExecutable reports that the file exists but cannot be executed by the current user.
	ErrNotExecutable = errors.New("file exists but is not executable")
)
