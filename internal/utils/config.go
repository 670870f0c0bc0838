package utils

import (
	"os"
	"path/filepath"
)

const dataDirName = ".qrattend"

// DefaultDataDir returns ~/.qrattend, falling back to the temp dir when the
// home directory is unknown.
func DefaultDataDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, dataDirName)
}

// EnsureDir creates dir with owner-only permissions if it does not exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o700)
}
