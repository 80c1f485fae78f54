// Package filex contains small filesystem helpers shared by the storage and
// integrity layers.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (and any missing parents) under base and returns the
// absolute path. Calling it for an existing directory is a no-op.
func EnsureDir(base string, dir string) (string, error) {
	path := filepath.Join(base, dir)

	if err := os.MkdirAll(path, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", path, err)
	}

	return path, nil
}
