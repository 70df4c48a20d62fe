// Package paths holds the on-disk layout defaults and guards filename
// inputs against directory traversal.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultConfigFile is the persisted settings file, relative to the
	// working directory unless overridden.
	DefaultConfigFile = "opensentry_config.json"

	// DefaultSnapshotDir holds saved snapshots, relative to the working
	// directory unless overridden.
	DefaultSnapshotDir = "snapshots"
)

// EnsureDirs creates the runtime directories if they don't exist.
// Empty entries are skipped.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SafeJoin joins elements onto base and ensures the result stays inside
// base. Absolute elements and any form of traversal are rejected.
func SafeJoin(base string, elements ...string) (string, error) {
	for _, el := range elements {
		if filepath.IsAbs(el) {
			return "", fmt.Errorf("path traversal attempt: absolute element %q", el)
		}
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(append([]string{absBase}, elements...)...)

	rel, err := filepath.Rel(absBase, joined)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt: %q escapes %s", strings.Join(elements, "/"), base)
	}
	return joined, nil
}
