// Package fsutil provides file system utility functions.
package fsutil

import (
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path by staging it in a temp file in the
// same directory and renaming it into place. Readers never observe a
// partially written file.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// WriteFileAtomicWithBackup behaves like WriteFileAtomic but first copies the
// current file contents, if any, to path+".bak".
func WriteFileAtomicWithBackup(path string, data []byte, mode os.FileMode) error {
	if current, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".bak", current, mode); err != nil {
			return err
		}
	}
	return WriteFileAtomic(path, data, mode)
}
