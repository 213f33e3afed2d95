//go:build windows

package registry

import (
	"os"
)

// IsAlive reports whether pid can still be found. Unlike on Unix,
// os.FindProcess on Windows opens a real handle via OpenProcess and fails
// if the pid doesn't exist, so a failed lookup alone is a reliable dead
// signal — no separate zero-signal send is needed.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
