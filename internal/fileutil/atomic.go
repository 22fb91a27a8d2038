// Package fileutil holds file helpers shared by the stores.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultPerm is the mode of files that did not exist before.
const DefaultPerm fs.FileMode = 0o644

// WriteAtomic replaces path with data through a temporary file in the same
// directory. An existing file keeps its permission bits, and a symlink is
// followed so the link itself stays in place.
func WriteAtomic(path string, data []byte) error {
	target, perm, err := resolveTarget(path)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if err := tempFile.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tempPath, target); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	success = true
	return nil
}

// resolveTarget follows symlinks and returns the file to replace and the
// mode the replacement gets.
func resolveTarget(path string) (string, fs.FileMode, error) {
	resolved, err := filepath.EvalSymlinks(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return path, DefaultPerm, nil
	case err != nil:
		return "", 0, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fi, err := os.Stat(resolved)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat %s: %w", resolved, err)
	}
	return resolved, fi.Mode().Perm(), nil
}
