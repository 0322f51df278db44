package engine

import (
	"path/filepath"
	"sync"

	"mkwebuser/internal/fsatomic"
)

// Per-username exclusivity. The in-process map rejects a concurrent call in
// the same process; the flock marker extends that to other processes on the
// host. Both are non-blocking: contention is an immediate ErrLocked.
var (
	userLockMu sync.Mutex
	userHeld   = map[string]string{} // username -> txID
)

func userLockPath(stateDir, username string) string {
	return filepath.Join(stateDir, "locks", "user."+username+".lock")
}

func acquireUserLock(stateDir, username, txID string) (func(), error) {
	userLockMu.Lock()
	if _, held := userHeld[username]; held {
		userLockMu.Unlock()
		return nil, ErrLocked
	}
	userHeld[username] = txID
	userLockMu.Unlock()

	unlockFile, err := fsatomic.TryFlock(userLockPath(stateDir, username))
	if err != nil {
		userLockMu.Lock()
		delete(userHeld, username)
		userLockMu.Unlock()
		if err == fsatomic.ErrLockHeld {
			return nil, ErrLocked
		}
		return nil, err
	}

	return func() {
		unlockFile()
		userLockMu.Lock()
		delete(userHeld, username)
		userLockMu.Unlock()
	}, nil
}
