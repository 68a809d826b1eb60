//go:build windows

package process

import (
	"os/exec"
	"strconv"

	"golang.org/x/sys/windows"
)

// killTree force-terminates pid and all of its descendants.
func killTree(pid int) error {
	if pid <= 0 {
		return nil
	}
	// #nosec G204
	cmd := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid))
	cmd.SysProcAttr = hiddenWindow()
	if err := cmd.Run(); err != nil {
		// taskkill is missing or refused; at least take down the direct child.
		if terr := terminate(pid); terr != nil {
			return err
		}
	}
	return nil
}

// terminate ends a single process by PID.
func terminate(pid int) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		// Most likely the process is already gone.
		return nil
	}
	defer func() { _ = windows.CloseHandle(h) }()
	return windows.TerminateProcess(h, 1)
}
