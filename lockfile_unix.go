//go:build unix || linux || darwin

// flock(2) implementation for Unix platforms.
package stringdb

import "syscall"

func (l *fileLock) lock() error {
	// Blocking flock — no LOCK_NB, so the call waits for the lock.
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_EX)
}

func (l *fileLock) unlock() error {
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
}
