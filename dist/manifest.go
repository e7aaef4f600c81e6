package dist

import (
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/xerrors"

	"github.com/forgebuild/forge/fingerprint"
)

// toolchainStore holds, per toolchain id, every synced file's open handle.
// Per spec.md §4.6, "files already matching are marked synchronized and
// kept open to prevent deletion"; per §5, "each toolchain manifest (its own
// mutex during synchronization)."
type toolchainStore struct {
	mu      sync.Mutex
	entries map[uint64]*toolchainEntry
	root    string
}

type toolchainEntry struct {
	mu    sync.Mutex
	dir   string
	files map[string]*os.File // relPath -> open handle
}

func newToolchainStore(root string) *toolchainStore {
	return &toolchainStore{entries: map[uint64]*toolchainEntry{}, root: root}
}

func (s *toolchainStore) entry(id uint64) *toolchainEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		e = &toolchainEntry{
			dir:   filepath.Join(s.root, toolchainDirName(id)),
			files: map[string]*os.File{},
		}
		s.entries[id] = e
	}
	return e
}

func toolchainDirName(id uint64) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		b[i] = hexDigits[id&0xf]
		id >>= 4
	}
	return string(b)
}

// manifest reports the files this entry already has, re-hashing each one
// from the open handle so a manifest request always reflects what is
// actually on disk, per spec.md §4.6's "verified by reopening the file on
// the worker and re-hashing".
func (e *toolchainEntry) manifest() ([]manifestFile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]manifestFile, 0, len(e.files))
	for rel, f := range e.files {
		info, err := f.Stat()
		if err != nil {
			return nil, xerrors.Errorf("dist: stat synced file %q: %w", rel, err)
		}
		if _, err := f.Seek(0, 0); err != nil {
			return nil, xerrors.Errorf("dist: seek synced file %q: %w", rel, err)
		}
		hash, err := fingerprint.Hash32Reader(f)
		if err != nil {
			return nil, xerrors.Errorf("dist: rehash synced file %q: %w", rel, err)
		}
		out = append(out, manifestFile{
			RelPath:     rel,
			ContentHash: hash,
			ModTime:     info.ModTime().UnixNano(),
			Size:        info.Size(),
		})
	}
	return out, nil
}

// store writes data to relPath under the entry's directory and reopens it
// for reading, keeping the handle open so the file cannot be deleted out
// from under a later build (spec.md §4.6).
func (e *toolchainEntry) store(relPath string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	full := filepath.Join(e.dir, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return xerrors.Errorf("dist: mkdir for toolchain file %q: %w", relPath, err)
	}
	// 0755 rather than 0644: a synced file may be the toolchain's compiler
	// driver itself, which must stay executable once materialized here.
	if err := os.WriteFile(full, data, 0755); err != nil {
		return xerrors.Errorf("dist: write toolchain file %q: %w", relPath, err)
	}
	if old, ok := e.files[relPath]; ok {
		old.Close()
	}
	f, err := os.Open(full)
	if err != nil {
		return xerrors.Errorf("dist: reopen toolchain file %q: %w", relPath, err)
	}
	e.files[relPath] = f
	return nil
}

// missing returns the subset of want not already present (by path and
// content hash) in have, per spec.md §4.6's "ensures the remote worker has
// every file present."
func missing(want []manifestFile, have []manifestFile) []manifestFile {
	present := make(map[string]uint32, len(have))
	for _, f := range have {
		present[f.RelPath] = f.ContentHash
	}
	var out []manifestFile
	for _, f := range want {
		if h, ok := present[f.RelPath]; !ok || h != f.ContentHash {
			out = append(out, f)
		}
	}
	return out
}
