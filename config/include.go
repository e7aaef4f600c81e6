package config

import (
	"os"
	"path/filepath"
)

// Loader resolves #include targets and carries the state that must survive
// across an include tree: the shared #define namespace (so a #define in
// one file is visible to files it includes), the set of files marked
// #once, and the current recursion depth (capped at MaxIncludeDepth, per
// spec.md §4.1's "cycles prevented via a depth cap (128)").
type Loader struct {
	ReadFile func(path string) (string, error)

	defines      map[string]bool
	onceVisited  map[string]bool
	depth        int
}

// NewLoader returns a Loader reading from the OS filesystem, seeded with
// the predefined platform tokens (see directive.go's platformDefines).
func NewLoader() *Loader {
	return &Loader{
		ReadFile:    func(path string) (string, error) { b, err := os.ReadFile(path); return string(b), err },
		defines:     platformDefines(),
		onceVisited: map[string]bool{},
	}
}

// load reads, preprocesses, and parses one file, returning its statement
// list. Used both for the root file (config.go's Load) and recursively for
// #include targets (parser.go's directive dispatch).
func (l *Loader) load(file string) ([]Statement, *ParseError) {
	if l.depth > MaxIncludeDepth {
		return nil, &ParseError{Code: ErrIncludeDepthExceeded, File: file, Row: 1, Col: 1,
			Message: "#include nesting exceeds maximum depth (128); likely a cycle"}
	}
	raw, readErr := l.ReadFile(file)
	if readErr != nil {
		return nil, &ParseError{Code: ErrUnknownConstruct, File: file, Row: 1, Col: 1,
			Message: readErr.Error()}
	}
	stripped, err := stripConditionals(file, raw, l.defines)
	if err != nil {
		return nil, err
	}
	p := newParserWithLoader(file, stripped, l)
	return p.Parse()
}

// resolveInclude resolves a quoted #include path relative to the including
// file's directory.
func resolveInclude(fromFile, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(fromFile), path)
}
