//go:build !windows

package registry

import "syscall"

// IsAlive sends the null signal to pid. A nil error or EPERM (process
// exists but is owned by another user) means alive; ESRCH means dead.
// Any other error is treated conservatively as alive, matching the
// original's "unknown means don't evict" stance.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil || err == syscall.EPERM {
		return true
	}
	return err != syscall.ESRCH
}
