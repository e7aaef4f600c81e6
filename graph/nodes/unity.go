package nodes

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forgebuild/forge/fingerprint"
	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/pathutil"
	"golang.org/x/xerrors"
)

// UnityNode amalgamates input files into NumFiles generated sources. The
// sorted inputs are dealt round-robin across the outputs, so amalgamation k
// #includes inputs k, k+NumFiles, k+2*NumFiles, ...; the number of
// amalgamation files is stable.
//
// Files whose base name matches a ForceIsolate pattern (filepath.Match
// syntax) or that are writable when IsolateWritable is set are excluded
// from amalgamations and re-emitted
// as standalone entries, so downstream consumers (ObjectListNode) see a
// uniform list of "things to compile" regardless of whether a given input
// ended up amalgamated or isolated.
type UnityNode struct {
	Inputs          graph.NodeIndex // a DirectoryListNode, or pre-populated via Files
	Files           []string        // explicit file list, used when Inputs is InvalidIndex
	NumFiles        int
	OutputPath      string
	OutputPattern   string // e.g. "Unity%d.cpp"
	ForceIsolate    []string
	IsolateWritable bool

	Amalgamations []string // output paths, after DoBuild
	Isolated      []string // standalone files excluded from amalgamation
}

func init() {
	graph.KindRegistry["UnityNode"] = func() graph.Kind { return &UnityNode{Inputs: graph.InvalidIndex} }
}

func (u *UnityNode) KindName() string { return "UnityNode" }
func (u *UnityNode) IsFile() bool     { return false }

func (u *UnityNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return true
}

func (u *UnityNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error {
	if u.Inputs == graph.InvalidIndex {
		return nil
	}
	src := g.Node(u.Inputs)
	dl, ok := src.Kind.(*DirectoryListNode)
	if !ok {
		return xerrors.Errorf("UnityNode: input %q is not a DirectoryListNode", src.Name)
	}
	files := make([]string, 0, len(dl.Files))
	for _, fi := range dl.Files {
		if fi.IsDir {
			continue
		}
		files = append(files, filepath.Join(dl.Path, fi.Name))
	}
	u.Files = files
	return nil
}

func (u *UnityNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	sorted := sortedUnityInputs(u.Files)

	var toAmalgamate, isolated []string
	for _, f := range sorted {
		if u.isForceIsolated(f) {
			isolated = append(isolated, f)
			continue
		}
		if u.IsolateWritable {
			if fi, err := os.Stat(f); err == nil && fi.Mode().Perm()&0200 != 0 {
				isolated = append(isolated, f)
				continue
			}
		}
		toAmalgamate = append(toAmalgamate, f)
	}

	numFiles := u.NumFiles
	if numFiles < 1 {
		numFiles = 1
	}
	buckets := make([][]string, numFiles)
	for i, f := range toAmalgamate {
		b := i % numFiles
		buckets[b] = append(buckets[b], f)
	}

	pattern := u.OutputPattern
	if pattern == "" {
		pattern = "Unity%d.cpp"
	}

	h := fingerprint.NewHash64Stream()
	var outputs []string
	for i, bucket := range buckets {
		var sb strings.Builder
		for _, f := range bucket {
			fmt.Fprintf(&sb, "#include \"%s\"\n", f)
		}
		content := sb.String()
		outPath := filepath.Join(u.OutputPath, fmt.Sprintf(pattern, i+1))
		if err := pathutil.AtomicWriteFile(outPath, []byte(content), 0644); err != nil {
			return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
		}
		outputs = append(outputs, outPath)
		h.Write(fingerprint.Hash128Bytes([]byte(content))[:])
	}

	u.Amalgamations = outputs
	u.Isolated = isolated
	n.Stamp = h.Sum()
	return graph.Result{Outcome: graph.Ok}
}

func (u *UnityNode) isForceIsolated(path string) bool {
	base := filepath.Base(path)
	for _, pat := range u.ForceIsolate {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
	}
	return false
}

// sortedUnityInputs applies the same cross-platform-stable order as
// pathutil.Scan: path components compared case-insensitively, with the
// files of a directory listed before the contents of its subdirectories,
// which is what keeps S2's ordering identical on Linux and Windows for the
// same inputs.
func sortedUnityInputs(files []string) []string {
	out := make([]string, len(files))
	copy(out, files)
	sort.Slice(out, func(i, j int) bool {
		a := strings.Split(strings.ToLower(filepath.ToSlash(out[i])), "/")
		b := strings.Split(strings.ToLower(filepath.ToSlash(out[j])), "/")
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
	return out
}

func (u *UnityNode) Save(n *graph.Node, w *graph.Writer) error {
	w.Int32(int32(u.Inputs))
	writeStrings(w, u.Files)
	w.Int32(int32(u.NumFiles))
	w.String(u.OutputPath)
	w.String(u.OutputPattern)
	writeStrings(w, u.ForceIsolate)
	w.Bool(u.IsolateWritable)
	return nil
}

func (u *UnityNode) Load(n *graph.Node, r *graph.Reader) error {
	u.Inputs = graph.NodeIndex(r.Int32())
	u.Files = readStrings(r)
	u.NumFiles = int(r.Int32())
	u.OutputPath = r.String()
	u.OutputPattern = r.String()
	u.ForceIsolate = readStrings(r)
	u.IsolateWritable = r.Bool()
	return nil
}
