// Package nodes implements the concrete node kinds from the data model:
// FileNode, DirectoryListNode, CopyNode, CopyDirNode, ExecNode, UnityNode,
// ObjectNode, ObjectListNode, LibraryNode, DLLNode, ExeNode, CompilerNode,
// AliasNode, ProxyNode, TextFileNode, ListDependenciesNode, VCXProjectNode,
// SLNNode, and SettingsNode. Each implements graph.Kind; the common node
// header (name, stamp, edges, state) lives in graph.Node, not here.
package nodes

import (
	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/platform"
)

// FileNode observes a file on disk; its stamp is the file's mtime, exactly
// as the data model specifies ("FileNode — observed file on disk; builds
// by stamping mtime").
type FileNode struct {
	Cap platform.Capability
}

func init() {
	graph.KindRegistry["FileNode"] = func() graph.Kind { return &FileNode{Cap: platform.Default} }
}

func (f *FileNode) KindName() string { return "FileNode" }
func (f *FileNode) IsFile() bool     { return true }

func (f *FileNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	stamp, err := f.cap().Stamp(n.Name)
	if err != nil {
		return true
	}
	return stamp != n.Stamp
}

func (f *FileNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }

func (f *FileNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	stamp, err := f.cap().Stamp(n.Name)
	if err != nil {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
	}
	n.Stamp = stamp
	return graph.Result{Outcome: graph.Ok}
}

func (f *FileNode) Save(n *graph.Node, w *graph.Writer) error { return nil }
func (f *FileNode) Load(n *graph.Node, r *graph.Reader) error {
	f.Cap = platform.Default
	return nil
}

func (f *FileNode) cap() platform.Capability {
	if f.Cap == nil {
		return platform.Default
	}
	return f.Cap
}
