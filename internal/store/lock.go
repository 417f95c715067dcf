package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DBLock is a cross-process file lock guarding the SQLite database.
// SQLite itself tolerates multiple readers, but the engine assumes a
// single writer process; the lock turns a second instance into a clean
// startup error instead of busy-timeout churn.
type DBLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDBLock creates a lock next to the database file, at <dbPath>.lock.
func NewDBLock(dbPath string) *DBLock {
	lockPath := dbPath + ".lock"
	return &DBLock{path: lockPath, flock: flock.New(lockPath)}
}

// TryLock attempts a non-blocking exclusive lock. Returns false when
// another process holds it.
func (l *DBLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock and removes the lock file.
func (l *DBLock) Unlock() {
	if !l.locked {
		return
	}
	_ = l.flock.Unlock()
	_ = os.Remove(l.path)
	l.locked = false
}

// Locked reports whether this process holds the lock.
func (l *DBLock) Locked() bool {
	return l.locked
}
