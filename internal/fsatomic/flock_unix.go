//go:build !windows

package fsatomic

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLockHeld is returned by TryFlock when another process or goroutine
// already holds the advisory lock.
var ErrLockHeld = errors.New("lock already held")

// TryFlock takes a non-blocking exclusive advisory lock on lockPath,
// creating the file if needed. Returns an unlock func, or ErrLockHeld
// without waiting if the lock is taken.
func TryFlock(lockPath string) (func(), error) {
	_ = os.MkdirAll(filepath.Dir(lockPath), 0o755)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLockHeld
		}
		return nil, err
	}
	unlocked := false
	return func() {
		if unlocked {
			return
		}
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
		unlocked = true
	}, nil
}
