package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
)

// LockFile is the name of the single-instance lock inside the data dir.
const LockFile = "docindex.lock"

// Lock guards a data directory against a second daemon.
type Lock struct {
	flock  *flock.Flock
	locked bool
}

// NewLock returns an unheld lock for dataDir.
func NewLock(dataDir string) *Lock {
	return &Lock{flock: flock.New(filepath.Join(dataDir, LockFile))}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.flock.Path()
}

// Acquire takes the lock without blocking. It fails with ERR_204_LOCKED when
// another process holds it.
func (l *Lock) Acquire() error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.Path()), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return dierrors.New(dierrors.ErrCodeLocked, "another docindex daemon is using this data directory", nil).
			WithDetail("lock", l.Path()).
			WithSuggestion("Stop the running daemon or set a different data_dir")
	}
	l.locked = true
	return nil
}

// Release drops the lock. Safe to call when not held.
func (l *Lock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
