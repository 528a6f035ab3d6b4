// Package fileutil holds the small filesystem helpers shared by the
// session store, the config file and exported reports.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DirPermissions is used for directories created on the way to a file.
const DirPermissions = 0o700

// ErrEmptyPath indicates an empty file path was provided.
var ErrEmptyPath = errors.New("path is empty")

// WriteAtomic replaces path with data. The bytes go to a temp file in the
// same directory which is synced and renamed over path, so readers see
// either the old or the new content. Missing parent directories are
// created.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return ErrEmptyPath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeSync(tmp, data, perm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil { //nolint:gosec // G703: path is chosen by the caller
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}

	syncDir(dir)
	return nil
}

func writeSync(f *os.File, data []byte, perm os.FileMode) error {
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Chmod(perm); err != nil {
		return fmt.Errorf("setting temp file permissions: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	return nil
}

// syncDir makes a rename durable. Failure is ignored; not every
// filesystem supports syncing a directory.
func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil { //nolint:gosec // G304: dir is derived from the target path
		_ = d.Sync()
		_ = d.Close()
	}
}

// MoveAside renames path to path.<tag>.<unix nanos> and returns the new
// name. It is used to keep an unreadable file for inspection instead of
// overwriting it.
func MoveAside(path, tag string, now time.Time) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	dest := path + "." + tag + "." + strconv.FormatInt(now.UnixNano(), 10)
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("moving %s aside: %w", filepath.Base(path), err)
	}
	return dest, nil
}
