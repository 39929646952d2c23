package runstore

import (
	"fmt"
	"os"
	"path/filepath"

	ferrors "frago/internal/errors"
)

// ensureDir creates path (and any parents) if it doesn't already exist.
func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return ferrors.E(ferrors.KindFileSystem, "runstore.ensureDir", fmt.Errorf("create directory %q: %w", path, err))
	}
	return nil
}

// writeFileAtomic writes data to finalPath via a sibling temp file plus
// rename, so readers never observe a partially written file.
func writeFileAtomic(finalPath string, data []byte) error {
	dir := filepath.Dir(finalPath)
	if err := ensureDir(dir); err != nil {
		return err
	}
	tempPath := filepath.Join(dir, ".tmp_"+filepath.Base(finalPath))

	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return ferrors.E(ferrors.KindFileSystem, "runstore.writeFileAtomic", fmt.Errorf("write %q: %w", finalPath, err))
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return ferrors.E(ferrors.KindFileSystem, "runstore.writeFileAtomic", fmt.Errorf("rename into %q: %w", finalPath, err))
	}
	return nil
}
