// Package lightcache implements the preprocessor-free cache-key accelerator
// (spec component C8): it discovers a translation unit's transitive
// #include set and fingerprints its content by scanning source text
// directly, skipping the compiler's preprocessor entirely when the
// command line is amenable. Grounded on the original FASTBuild LightCache
// (discover includes, resolve MSVC search order, hash content, bail out to
// the full preprocessor on anything it can't parse).
package lightcache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/forgebuild/forge/fingerprint"
	"github.com/forgebuild/forge/pathutil"
)

const numBuckets = 128

// includedFile is the process-wide memo entry for one physical file: its
// content hash and the raw #include directives found in it (resolved
// against an include stack lazily, once per distinct (file, stack) pass).
type includedFile struct {
	nameHash    uint64
	name        string
	exists      bool
	contentHash uint64
	includes    []include
	problem     bool
}

type include struct {
	text        string
	angleForm   bool
}

type bucket struct {
	mu    sync.Mutex
	files map[string]*includedFile
}

// sharedFiles is the process-wide, 128-bucket, mutex-protected map from
// full path to includedFile, matching the original's g_AllIncludedFiles.
// Content never changes for a given absolute path during a single forge
// invocation, so it is safe to memoize across concurrent worker calls.
var sharedFiles [numBuckets]bucket

func init() {
	for i := range sharedFiles {
		sharedFiles[i].files = map[string]*includedFile{}
	}
}

// ClearCachedFiles discards the process-wide include memo. Exposed for
// tests that need a clean slate between cases using the same file paths.
func ClearCachedFiles() {
	for i := range sharedFiles {
		sharedFiles[i].mu.Lock()
		sharedFiles[i].files = map[string]*includedFile{}
		sharedFiles[i].mu.Unlock()
	}
}

// Cache runs one Hash pass. It is not safe for concurrent use by multiple
// goroutines on the same instance (it keeps private scan state, just like
// the original); callers needing concurrency should use one Cache per
// goroutine, which is cheap since the expensive state is process-shared.
type Cache struct {
	includePaths  []string
	includeStack  []*includedFile
	problemParsing bool
}

// New returns a Cache ready for one Hash call.
func New() *Cache {
	return &Cache{}
}

// Hash fingerprints sourceFile's transitive #include closure without
// invoking a preprocessor. includeDirs are the compiler's -I/I search
// paths, in order. The second return is false (with ok semantics carried
// in err==nil) when the scan encountered something it can't handle (a
// macroized include path, an unreadable root file): callers must fall back
// to the real preprocessor in that case, per spec.md §4.4.
func (c *Cache) Hash(sourceFile string, includeDirs []string) (hash uint64, ok bool, err error) {
	c.includePaths = make([]string, len(includeDirs))
	for i, d := range includeDirs {
		if strings.HasSuffix(d, "/") || strings.HasSuffix(d, string(filepath.Separator)) {
			c.includePaths[i] = d
		} else {
			c.includePaths[i] = d + string(filepath.Separator)
		}
	}

	abs, err := filepath.Abs(sourceFile)
	if err != nil {
		return 0, false, err
	}
	root, cyclic := c.processInclude(abs, false)
	if root == nil || !root.exists {
		return 0, false, nil
	}
	if c.problemParsing {
		return 0, false, nil
	}
	_ = cyclic

	seen := map[string]bool{}
	var ordered []*includedFile
	c.collectOrdered(root, seen, &ordered)

	stream := fingerprint.NewHash64Stream()
	for _, f := range ordered {
		stream.WriteUint64(f.nameHash)
		stream.WriteUint64(f.contentHash)
	}
	return stream.Sum(), true, nil
}

// collectOrdered walks the include graph in the same depth-first order the
// original builds m_AllIncludedFiles, deduplicating by file name. It keeps
// the include stack the same way processInclude does, so quoted includes
// resolve against the same enclosing directories.
func (c *Cache) collectOrdered(f *includedFile, seen map[string]bool, out *[]*includedFile) {
	if seen[f.name] {
		return
	}
	seen[f.name] = true
	*out = append(*out, f)
	c.includeStack = append(c.includeStack, f)
	for _, inc := range f.includes {
		next := c.resolveInclude(f, inc.text, inc.angleForm)
		if next == nil {
			continue
		}
		c.collectOrdered(next, seen, out)
	}
	c.includeStack = c.includeStack[:len(c.includeStack)-1]
}

// processInclude resolves include (as seen from the root, or standalone
// for the initial source file), loads and scans it if not already memoized,
// and pushes/pops the include stack around recursion into its own
// includes so fromIncludeStack can see enclosing directories.
func (c *Cache) processInclude(include string, angleForm bool) (*includedFile, bool) {
	var f *includedFile
	var cyclic bool

	if filepath.IsAbs(include) {
		f, cyclic = c.fromFullPath(include)
	} else if angleForm {
		f, cyclic = c.fromIncludePath(include)
	} else {
		f, cyclic = c.fromIncludeStack(include)
		if f == nil {
			f, cyclic = c.fromIncludePath(include)
		}
	}
	if f == nil {
		// Not found: may be in an inactive branch (comment, #ifdef'd out)
		// or genuinely missing, in which case compilation itself will
		// fail. Either way it is not a dependency, per the original's
		// reasoning.
		return nil, false
	}
	if cyclic {
		return f, true
	}
	c.includeStack = append(c.includeStack, f)
	for _, inc := range f.includes {
		c.processInclude(inc.text, inc.angleForm)
		if c.problemParsing {
			break
		}
	}
	c.includeStack = c.includeStack[:len(c.includeStack)-1]
	return f, false
}

// resolveInclude re-derives the same file pointer processInclude already
// resolved, for collectOrdered's separate traversal pass (kept distinct
// from the recursive scan so memoization concerns don't leak into key
// ordering).
func (c *Cache) resolveInclude(from *includedFile, inc string, angleForm bool) *includedFile {
	if filepath.IsAbs(inc) {
		f, _ := c.fromFullPath(inc)
		return f
	}
	if angleForm {
		f, _ := c.fromIncludePath(inc)
		return f
	}
	if f, _ := c.fromIncludeStack(inc); f != nil {
		return f
	}
	f, _ := c.fromIncludePath(inc)
	return f
}

func (c *Cache) fromFullPath(path string) (*includedFile, bool) {
	if found := c.findOnStack(path); found != nil {
		return found, true
	}
	return c.fileExists(path), false
}

// fromIncludeStack implements MSDN's quoted-include search order: the
// directory of each currently-open include file, nearest enclosing first.
func (c *Cache) fromIncludeStack(inc string) (*includedFile, bool) {
	for i := len(c.includeStack) - 1; i >= 0; i-- {
		dir := filepath.Dir(c.includeStack[i].name)
		candidate := pathutil.CleanPath(dir, filepath.Join(dir, inc))
		if found := c.findOnStack(candidate); found != nil {
			return found, true
		}
		f := c.fileExists(candidate)
		if f.exists {
			return f, false
		}
	}
	return nil, false
}

func (c *Cache) fromIncludePath(inc string) (*includedFile, bool) {
	for _, dir := range c.includePaths {
		candidate := pathutil.CleanPath(dir, filepath.Join(dir, inc))
		if found := c.findOnStack(candidate); found != nil {
			return found, true
		}
		f := c.fileExists(candidate)
		if f.exists {
			return f, false
		}
	}
	return nil, false
}

func (c *Cache) findOnStack(path string) *includedFile {
	for _, f := range c.includeStack {
		if f.name == path {
			return f
		}
	}
	return nil
}

func (c *Cache) lookup(path string) *includedFile {
	b := &sharedFiles[fingerprint.Hash64([]byte(path))%numBuckets]
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.files[path]
}

// fileExists returns the memoized includedFile for path, scanning it from
// disk on first sight and caching the result process-wide (matching the
// original's FileExists/g_AllIncludedFiles).
func (c *Cache) fileExists(path string) *includedFile {
	nameHash := fingerprint.Hash64([]byte(path))
	b := &sharedFiles[nameHash%numBuckets]

	b.mu.Lock()
	if f, ok := b.files[path]; ok {
		b.mu.Unlock()
		if f.problem {
			c.problemParsing = true
		}
		return f
	}
	b.mu.Unlock()

	f := &includedFile{nameHash: nameHash, name: path}
	raw, err := os.ReadFile(path)
	if err == nil {
		f.exists = true
		f.contentHash = fingerprint.Hash64(raw)
		includes, problem := scanIncludes(string(raw))
		if problem {
			c.problemParsing = true
		}
		f.problem = problem
		f.includes = includes
	}

	b.mu.Lock()
	if existing, ok := b.files[path]; ok {
		b.mu.Unlock()
		return existing
	}
	b.files[path] = f
	b.mu.Unlock()
	return f
}

// scanIncludes parses only #include directives out of src, skipping block
// comments, and reports problem=true if it encounters a path it can't
// resolve textually (a macroized include).
func scanIncludes(src string) (includes []include, problem bool) {
	pos := 0
	n := len(src)
	for pos < n {
		pos = skipWhitespace(src, pos)
		if pos >= n {
			break
		}
		if isEndOfLine(src[pos]) {
			pos = skipLineEnd(src, pos)
			continue
		}

		c := src[pos]
		if c == '#' {
			p := pos + 1
			p = skipWhitespace(src, p)
			if strings.HasPrefix(src[p:], "include") {
				p += len("include")
				p = skipWhitespace(src, p)
				if p >= n || (src[p] != '"' && src[p] != '<') {
					return includes, true
				}
				angle := src[p] == '<'
				p++
				start := p
				p = skipToEndOfQuoted(src, p)
				includes = append(includes, include{text: src[start:p], angleForm: angle})
				pos = skipToEndOfLine(src, p)
				pos = skipLineEnd(src, pos)
				continue
			}
		}

		if c == '/' && pos+1 < n && src[pos+1] == '*' {
			p := pos + 2
			for p < n {
				if src[p] == '*' && p+1 < n && src[p+1] == '/' {
					p += 2
					break
				}
				p++
			}
			pos = p
			continue
		}

		pos = skipToEndOfLine(src, pos)
		pos = skipLineEnd(src, pos)
	}
	return includes, false
}

func skipWhitespace(s string, pos int) int {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t') {
		pos++
	}
	return pos
}

func isEndOfLine(c byte) bool { return c == '\r' || c == '\n' }

func skipLineEnd(s string, pos int) int {
	for pos < len(s) && isEndOfLine(s[pos]) {
		pos++
	}
	return pos
}

func skipToEndOfLine(s string, pos int) int {
	for pos < len(s) && !isEndOfLine(s[pos]) {
		pos++
	}
	return pos
}

func skipToEndOfQuoted(s string, pos int) int {
	for pos < len(s) && s[pos] != '"' && s[pos] != '>' {
		pos++
	}
	return pos
}

// DebugString reports a human-readable summary, useful for -why diagnostics
// on a fingerprint mismatch.
func (f *includedFile) DebugString() string {
	return fmt.Sprintf("%s (exists=%v, contentHash=%x)", f.name, f.exists, f.contentHash)
}
