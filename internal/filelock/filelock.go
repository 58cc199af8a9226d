// Package filelock provides non-blocking advisory locking for the
// single-writer JSON state files used by the breaker, recovery scheduler,
// and outage history.
package filelock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Lock holds an advisory exclusive lock on a sidecar ".lock" file next to
// the state file it guards. It mirrors the non-blocking fcntl flock used
// by the original implementation: a process that cannot acquire the lock
// skips its write rather than blocking, so a slow concurrent invocation
// never stalls the one holding it.
type Lock struct {
	f *os.File
}

// TryAcquire attempts to take an exclusive, non-blocking lock on path+".lock".
// It returns (nil, false, nil) when another process already holds the lock.
func TryAcquire(path string) (*Lock, bool, error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("filelock: open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("filelock: flock %s: %w", path, err)
	}
	return &Lock{f: f}, true, nil
}

// Release unlocks and closes the sidecar file.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
