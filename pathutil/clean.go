// Package pathutil implements path canonicalization and directory scanning
// (spec component C2), and the atomic-rename discipline used by both the
// compile-result cache and the dependency-graph database file.
package pathutil

import (
	"path/filepath"
	"strings"
)

// CleanPath canonicalizes p: it resolves "." and ".." components, collapses
// repeated separators, converts to the platform's native separator, and
// prepends wd if p is not already absolute. Unlike filepath.Clean, ".."
// components that would walk past the filesystem root are a no-op rather
// than an error or a path escaping the root — spec.md §4.2 requires this
// bound explicitly, since a malformed #include chain must not be able to
// address paths outside of any sane root.
//
// CleanPath(CleanPath(p)) == CleanPath(p) for all p (testable property 2):
// the function is applied to an already-absolute, already-clean path on the
// second pass, which filepath.Clean leaves untouched, and the prepend step
// is skipped because the result is already absolute.
func CleanPath(wd, p string) string {
	if p == "" {
		return wd
	}
	p = filepath.FromSlash(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(wd, p)
	}
	return boundedClean(p)
}

// boundedClean runs filepath.Clean but stops ".." from escaping the root of
// the path (e.g. "/" on Unix, "C:\" on Windows), by processing the path
// component-wise instead of delegating the whole job to filepath.Clean,
// which would otherwise happily produce "/../.." style garbage above the
// root if given enough ".." components.
func boundedClean(p string) string {
	vol := filepath.VolumeName(p)
	rest := p[len(vol):]
	sep := string(filepath.Separator)
	isAbs := strings.HasPrefix(rest, sep)

	parts := strings.Split(rest, sep)
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			// skip: repeated separators, or a no-op "." component
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			// else: ".." past the root is a no-op, per spec.md §4.2
		default:
			stack = append(stack, part)
		}
	}

	joined := strings.Join(stack, sep)
	if isAbs {
		joined = sep + joined
	}
	if joined == "" {
		joined = sep
	}
	return vol + joined
}
