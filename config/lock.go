package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockName is the lock file created under the project's .dart_tool.
const LockName = "flx.lock"

// ErrLocked means another flx instance holds the project lock.
var ErrLocked = errors.New("another flx instance is driving this project")

// Lock takes the per-project instance lock. Release it with Unlock.
func Lock(projectRoot string) (*flock.Flock, error) {
	dir := filepath.Join(projectRoot, ".dart_tool")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	lock := flock.New(filepath.Join(dir, LockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, lock.Path())
	}
	return lock, nil
}
