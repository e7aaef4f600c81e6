package pathutil

import (
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// AtomicWriteFile writes data to path via a temp file followed by an atomic
// rename, the same discipline spec.md §4.4 requires for cache publishing and
// §3 requires for the database file: a reader never observes a torn write,
// and a crash mid-write leaves the previous contents (or nothing) in place,
// never a partial file at the final name.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}

// AtomicWriteFileFunc is AtomicWriteFile for callers that want to stream
// into the destination (e.g. graph.Save) rather than build the full byte
// slice up front.
func AtomicWriteFileFunc(path string, perm os.FileMode, write func(*os.File) error) error {
	t, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return err
	}
	defer t.Cleanup()
	if err := os.Chmod(t.Name(), perm); err != nil {
		return err
	}
	if err := write(t.File); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}
