//go:build !windows

package process

import "syscall"

// signalGroup delivers sig to every process in the group led by pid.
func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return syscall.ESRCH
	}
	return syscall.Kill(-pid, sig)
}
