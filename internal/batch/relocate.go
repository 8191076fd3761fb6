package batch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// relocate moves src into dir and returns the new path.
//
// The copy lands in a temp file inside dir and is renamed into place, so a
// partially written file never appears under its real name. The source is
// removed only after the rename succeeded.
func relocate(src, dir string) (string, error) {
	absSrcDir, err := filepath.Abs(filepath.Dir(src))
	if err != nil {
		return "", err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if absSrcDir == absDir {
		return "", errors.New("source is already in the destination")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	dest := filepath.Join(dir, filepath.Base(src))
	if err := copyFile(src, dest); err != nil {
		return "", fmt.Errorf("copy to %s: %w", dest, err)
	}
	if err := os.Remove(src); err != nil {
		return dest, fmt.Errorf("remove source: %w", err)
	}
	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".reaxml-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = os.Chmod(tmpPath, info.Mode().Perm())

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
