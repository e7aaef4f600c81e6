package cache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
)

func readAll(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// writeAll atomically writes data to path and touches its mtime to now, the
// same "fresh on retrieve" contract as FilesystemCache.Retrieve.
func writeAll(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup()
	if _, err := t.Write(data); err != nil {
		return err
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return err
	}
	now := time.Now()
	return os.Chtimes(path, now, now)
}
