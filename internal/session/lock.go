package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mrz1836/hwclaim/internal/fileutil"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// LockFile is the claim lock file name under the home directory.
const LockFile = "session.lock"

// errLocked reports that another open file holds the lock.
var errLocked = errors.New("lock held")

// LockPath returns the claim lock file path.
func (s *Store) LockPath() string {
	return filepath.Join(s.dir, LockFile)
}

// Lock takes the exclusive claim lock of the store directory without
// waiting. While another process holds it, Lock fails with
// ErrClaimInProgress. The returned function releases the lock.
func (s *Store) Lock() (func() error, error) {
	if err := os.MkdirAll(s.dir, fileutil.DirPermissions); err != nil {
		return nil, fmt.Errorf("creating %s: %w", s.dir, err)
	}
	f, err := os.OpenFile(s.LockPath(), os.O_CREATE|os.O_RDWR, filePermissions) //nolint:gosec // G304: path is under the configured home directory
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", LockFile, err)
	}

	if err := lockFile(f); err != nil {
		_ = f.Close()
		if errors.Is(err, errLocked) {
			return nil, hwerr.WithSuggestion(
				hwerr.WithDetails(hwerr.ErrClaimInProgress, map[string]string{"lock": s.LockPath()}),
				"wait for the other hwclaim claim to finish",
			)
		}
		return nil, fmt.Errorf("locking %s: %w", LockFile, err)
	}

	var (
		once      sync.Once
		unlockErr error
	)
	return func() error {
		once.Do(func() {
			unlockErr = errors.Join(unlockFile(f), f.Close())
		})
		return unlockErr
	}, nil
}
