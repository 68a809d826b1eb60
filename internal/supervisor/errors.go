package supervisor

import (
	"errors"

	"github.com/loykin/ocsup/internal/process"
)

var (
	// ErrProjectDirectory means no project directory is configured.
	ErrProjectDirectory = errors.New("project directory not configured")
	// ErrProjectDirectoryInvalid means the configured project directory is missing or not a directory.
	ErrProjectDirectoryInvalid = errors.New("project directory is not accessible")
	// ErrPrematureExit means the process exited before its health check passed.
	ErrPrematureExit = errors.New("process exited before server became ready")
	// ErrStartTimeout means the process kept running but never became healthy.
	ErrStartTimeout = errors.New("server failed to become healthy")
	// ErrExecutableNotFound means the configured executable or shell command does not exist.
	ErrExecutableNotFound = process.ErrNotFound
	// ErrStartAborted is returned by a start attempt that was overtaken by Stop.
	ErrStartAborted = errors.New("start aborted by stop")
)
