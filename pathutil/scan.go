package pathutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileInfo mirrors spec.md's DirectoryListNode result entry: {name, mtime,
// attributes, size}.
type FileInfo struct {
	Name       string // path relative to the scanned directory, slash-separated
	ModTime    int64  // UnixNano
	Attributes uint32 // platform file mode bits, opaque to callers
	Size       int64
	IsDir      bool
}

// ScanOptions configures a directory scan for a DirectoryListNode.
type ScanOptions struct {
	Patterns        []string // include patterns (doublestar glob syntax), e.g. "*.cpp", "**/*.h"
	Recurse         bool
	ExcludePaths    []string // directories to skip entirely
	ExcludeFiles    []string // exact relative paths to skip
	ExcludePatterns []string // doublestar glob patterns to skip
}

// Scan walks dir and returns a deterministic, sorted list of matching files
// (spec.md §4.3 DirectoryListNode). The sort order groups directories and
// files consistently across platforms: path components are compared
// case-insensitively, and within a directory, its files are listed before
// the contents of its subdirectories — guaranteeing the same output on case-preserving and
// case-insensitive filesystems alike (testable via S2's cross-platform
// ordering requirement, exercised here for UnityNode's inputs).
func Scan(dir string, opts ScanOptions) ([]FileInfo, error) {
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"*"}
	}
	excludeDir := make(map[string]bool, len(opts.ExcludePaths))
	for _, p := range opts.ExcludePaths {
		excludeDir[filepath.ToSlash(filepath.Clean(p))] = true
	}
	excludeFile := make(map[string]bool, len(opts.ExcludeFiles))
	for _, f := range opts.ExcludeFiles {
		excludeFile[filepath.ToSlash(filepath.Clean(f))] = true
	}

	var out []FileInfo
	var walk func(rel string) error
	walk = func(rel string) error {
		abs := filepath.Join(dir, rel)
		entries, err := os.ReadDir(abs)
		if err != nil {
			return err
		}
		// Stable order independent of the underlying filesystem's readdir
		// order: sort entries by lower-cased name before processing.
		sort.Slice(entries, func(i, j int) bool {
			return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
		})
		for _, e := range entries {
			childRel := e.Name()
			if rel != "" {
				childRel = rel + "/" + e.Name()
			}
			if e.IsDir() {
				if excludeDir[childRel] {
					continue
				}
				if opts.Recurse {
					if err := walk(childRel); err != nil {
						return err
					}
				}
				continue
			}
			if excludeFile[childRel] {
				continue
			}
			if matchesAny(opts.ExcludePatterns, childRel) {
				continue
			}
			if !matchesAny(opts.Patterns, childRel) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return err
			}
			out = append(out, FileInfo{
				Name:       childRel,
				ModTime:    info.ModTime().UnixNano(),
				Attributes: uint32(info.Mode()),
				Size:       info.Size(),
			})
		}
		return nil
	}
	if err := walk(""); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		a := strings.Split(strings.ToLower(out[i].Name), "/")
		b := strings.Split(strings.ToLower(out[j].Name), "/")
		for k := 0; k < len(a) && k < len(b); k++ {
			aFile, bFile := k == len(a)-1, k == len(b)-1
			if aFile != bFile {
				return aFile // files before subdirectory contents
			}
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
	return out, nil
}

func matchesAny(patterns []string, name string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, name); ok {
			return true
		}
		// also try matching just the base name, for patterns like "*.o"
		// applied against a nested relative path.
		if ok, _ := doublestar.Match(pat, filepath.Base(name)); ok {
			return true
		}
	}
	return false
}
