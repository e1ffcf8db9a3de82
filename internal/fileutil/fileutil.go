package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic streams r into a temporary file next to path and renames it
// into place, so readers never observe a partial file. It returns the number
// of bytes written and their SHA-256 digest.
func WriteFileAtomic(path string, r io.Reader, mode os.FileMode) (int64, string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	written, digest, err := copyHashed(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return 0, "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return 0, "", fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, "", fmt.Errorf("rename into place: %w", err)
	}
	return written, digest, nil
}

// CopyToFile streams r into an already created file and closes it.
func CopyToFile(dst *os.File, r io.Reader) (int64, string, error) {
	written, digest, err := copyHashed(dst, r)
	if err != nil {
		_ = dst.Close()
		return 0, "", err
	}
	if err := dst.Close(); err != nil {
		return 0, "", fmt.Errorf("close %s: %w", dst.Name(), err)
	}
	return written, digest, nil
}

func copyHashed(dst io.Writer, r io.Reader) (int64, string, error) {
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(dst, hasher), r)
	if err != nil {
		return 0, "", fmt.Errorf("copy: %w", err)
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}
