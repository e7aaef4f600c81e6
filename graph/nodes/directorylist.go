package nodes

import (
	"github.com/forgebuild/forge/fingerprint"
	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/pathutil"
)

// DirectoryListNode produces a deterministic, sorted list of matching files
// under Path, per the data model: "configured by {path, patterns,
// recursion, exclusion sets}; builds to an ordered list of FileInfo."
// Directory-list dependents do not directly trigger rebuilds from it
// (§4.2): its result is consumed by dynamic-dep gathering (e.g. UnityNode,
// ObjectListNode), not compared stamp-to-stamp.
type DirectoryListNode struct {
	Path            string
	Patterns        []string
	Recurse         bool
	ExcludePaths    []string
	ExcludeFiles    []string
	ExcludePatterns []string

	Files []pathutil.FileInfo
}

func init() {
	graph.KindRegistry["DirectoryListNode"] = func() graph.Kind { return &DirectoryListNode{} }
}

func (d *DirectoryListNode) KindName() string { return "DirectoryListNode" }
func (d *DirectoryListNode) IsFile() bool      { return false }

func (d *DirectoryListNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return true // always re-scanned; cheap and correctness-critical
}

func (d *DirectoryListNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }

func (d *DirectoryListNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	files, err := pathutil.Scan(d.Path, pathutil.ScanOptions{
		Patterns:        d.Patterns,
		Recurse:         d.Recurse,
		ExcludePaths:    d.ExcludePaths,
		ExcludeFiles:    d.ExcludeFiles,
		ExcludePatterns: d.ExcludePatterns,
	})
	if err != nil {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
	}
	d.Files = files
	n.Stamp = hashFileList(files)
	return graph.Result{Outcome: graph.Ok}
}

func hashFileList(files []pathutil.FileInfo) uint64 {
	h := fingerprint.NewHash64Stream()
	for _, f := range files {
		h.Write([]byte(f.Name))
		h.WriteUint64(uint64(f.ModTime))
		h.WriteUint64(uint64(f.Size))
	}
	return h.Sum()
}

func (d *DirectoryListNode) Save(n *graph.Node, w *graph.Writer) error {
	w.String(d.Path)
	writeStrings(w, d.Patterns)
	w.Bool(d.Recurse)
	writeStrings(w, d.ExcludePaths)
	writeStrings(w, d.ExcludeFiles)
	writeStrings(w, d.ExcludePatterns)
	return nil
}

func (d *DirectoryListNode) Load(n *graph.Node, r *graph.Reader) error {
	d.Path = r.String()
	d.Patterns = readStrings(r)
	d.Recurse = r.Bool()
	d.ExcludePaths = readStrings(r)
	d.ExcludeFiles = readStrings(r)
	d.ExcludePatterns = readStrings(r)
	return nil
}

func writeStrings(w *graph.Writer, ss []string) {
	w.Uint32(uint32(len(ss)))
	for _, s := range ss {
		w.String(s)
	}
}

func readStrings(r *graph.Reader) []string {
	n := r.Uint32()
	if n == 0 {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = r.String()
	}
	return out
}
