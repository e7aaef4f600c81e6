// Package cache implements the compile-result cache (spec component C7): a
// fingerprint-keyed artifact store with atomic publish/retrieve semantics
// and a pluggable dynamic-library backend, falling back to a built-in
// filesystem store when no plugin is configured or the plugin is missing
// required entry points.
package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"

	"github.com/forgebuild/forge/fingerprint"
)

// cacheVersion is bumped whenever the on-disk layout changes; a cached
// artifact written by a different version is treated as a miss.
const cacheVersion = 1

// FilesystemCache is the built-in cache backend: a content-addressed tree
// rooted at Dir, keyed by the (A, B, C) triple described in spec.md §4.4.
// It is safe for concurrent use by multiple callers, including across
// separate processes sharing the same Dir, since Publish relies on
// rename-atomicity rather than any in-process lock.
type FilesystemCache struct {
	Dir string
}

// New returns a FilesystemCache rooted at dir, creating dir if necessary.
func New(dir string) (*FilesystemCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FilesystemCache{Dir: dir}, nil
}

// path computes the filename encoding from spec.md §4.4:
// "<root>/<A[0..2]>/<A[2..4]>/<A>_<B>_<C>.<cacheVersion>".
func (c *FilesystemCache) path(a fingerprint.Hash128, b uint32, cc uint64) string {
	hex := fmt.Sprintf("%x", a)
	sub1, sub2 := hex[0:2], hex[2:4]
	name := fmt.Sprintf("%s_%x_%x.%d", hex, b, cc, cacheVersion)
	return filepath.Join(c.Dir, sub1, sub2, name)
}

// Publish writes srcPath's content to the cache slot for (a, b, c). It
// compresses the payload, writes it to a temp file alongside the final
// location and atomically renames into place. A failure to publish is not
// fatal to the caller: spec.md §4.4 treats it as a reportable miss-on-write,
// not a build error, since the compile already succeeded.
func (c *FilesystemCache) Publish(a fingerprint.Hash128, b uint32, cc uint64, srcPath string) error {
	final := c.path(a, b, cc)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return err
	}
	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	compressed := fingerprint.Compress(raw)

	t, err := renameio.TempFile(filepath.Dir(final), final)
	if err != nil {
		return err
	}
	defer t.Cleanup()
	if _, err := t.Write(compressed); err != nil {
		return err
	}
	if err := t.CloseAtomicallyReplace(); err == nil {
		return nil
	}
	// Rename failed, possibly because a stale final already exists with
	// permissions that block replacement. Try once more after removing it.
	_ = os.Remove(final)
	t2, err := renameio.TempFile(filepath.Dir(final), final)
	if err != nil {
		return err
	}
	defer t2.Cleanup()
	if _, err := t2.Write(compressed); err != nil {
		return err
	}
	if err := t2.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("cache: publish miss for %s: %w", final, err)
	}
	return nil
}

// Retrieve looks up the cache slot for (a, b, c) and, on a hit, decompresses
// its content to destPath and touches destPath's mtime to now so subsequent
// up-to-date checks see it as fresh. The bool result is false, with a nil
// error, on an ordinary cache miss (file absent or version mismatch).
func (c *FilesystemCache) Retrieve(a fingerprint.Hash128, b uint32, cc uint64, destPath string) (bool, error) {
	final := c.path(a, b, cc)
	f, err := os.Open(final)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	compressed, err := io.ReadAll(f)
	if err != nil {
		return false, err
	}
	raw, err := fingerprint.Decompress(compressed)
	if err != nil {
		// A corrupt or foreign-format payload is a miss, not a hard error:
		// a bad cache entry should not fail the build.
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return false, err
	}
	t, err := renameio.TempFile("", destPath)
	if err != nil {
		return false, err
	}
	defer t.Cleanup()
	if _, err := t.Write(raw); err != nil {
		return false, err
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return false, err
	}
	now := time.Now()
	if err := os.Chtimes(destPath, now, now); err != nil {
		return false, err
	}
	return true, nil
}
