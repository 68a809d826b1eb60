//go:build windows

package process

import "os/exec"

// ShellNotFoundExitCode is cmd.exe's "is not recognized as an internal or external command".
const ShellNotFoundExitCode = 9009

// ManagedViaShell reports that managed launches also go through the shell, so a
// missing executable surfaces as ShellNotFoundExitCode rather than a spawn error.
const ManagedViaShell = true

// shellCommand runs script through cmd /c.
func shellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", "/c", script)
}

// viaShell launches an executable through cmd /c so .cmd and .bat shims resolve like they do interactively.
func viaShell(path string, args []string) *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", append([]string{"/c", path}, args...)...)
}
