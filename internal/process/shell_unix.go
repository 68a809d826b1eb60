//go:build !windows

package process

import "os/exec"

// ShellNotFoundExitCode is what /bin/sh exits with when the command it was asked to run does not exist.
const ShellNotFoundExitCode = 127

// ManagedViaShell reports whether managed launches go through the shell. On POSIX
// the executable is exec'd directly and a 127 exit is the server's own code.
const ManagedViaShell = false

// shellCommand runs script through /bin/sh.
func shellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/sh", "-c", script)
}
