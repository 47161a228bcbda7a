package graph

import (
	"fmt"
	"os"
	"path/filepath"
)

// Discover locates the metadata store for the current invocation.
// Returns the absolute path of the .flow directory.
func Discover(startDir string) (string, error) {
	// 1. Check environment variable
	if dir := os.Getenv("FLOWPARAM_GRAPH"); dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return filepath.Abs(dir)
		}
	}

	// 2. Walk up from the working directory looking for .flow/
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve start directory %q: %w", startDir, err)
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, MetadataDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}

	return "", fmt.Errorf("%w: no %s directory found from %s upward (checked $FLOWPARAM_GRAPH too); run your flow's elaboration first",
		ErrNotElaborated, MetadataDirName, abs)
}
