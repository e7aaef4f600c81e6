package nodes

import (
	"io"
	"os"
	"path/filepath"

	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/pathutil"
	"github.com/forgebuild/forge/platform"
	"golang.org/x/xerrors"
)

// CopyNode copies SourceIndex's file to Dest; its result stamp equals the
// source's mtime, per the data model ("result stamp = source mtime").
type CopyNode struct {
	Source      graph.NodeIndex
	SourcePath  string
	Dest        string

	Cap platform.Capability
}

func init() {
	graph.KindRegistry["CopyNode"] = func() graph.Kind { return &CopyNode{Cap: platform.Default} }
}

func (c *CopyNode) KindName() string { return "CopyNode" }
func (c *CopyNode) IsFile() bool     { return true }

func (c *CopyNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	src := g.Node(c.Source)
	return src.Stamp != n.Stamp
}

func (c *CopyNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }

func (c *CopyNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	if err := copyFile(c.SourcePath, c.Dest); err != nil {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
	}
	n.Stamp = g.Node(c.Source).Stamp
	return graph.Result{Outcome: graph.Ok}
}

func (c *CopyNode) Save(n *graph.Node, w *graph.Writer) error {
	w.Int32(int32(c.Source))
	w.String(c.SourcePath)
	w.String(c.Dest)
	return nil
}

func (c *CopyNode) Load(n *graph.Node, r *graph.Reader) error {
	c.Source = graph.NodeIndex(r.Int32())
	c.SourcePath = r.String()
	c.Dest = r.String()
	c.Cap = platform.Default
	return nil
}

// CopyDirNode recursively copies a directory tree.
type CopyDirNode struct {
	Source graph.NodeIndex // a DirectoryListNode
	Dest   string

	files []pathutil.FileInfo
}

func init() {
	graph.KindRegistry["CopyDirNode"] = func() graph.Kind { return &CopyDirNode{} }
}

func (c *CopyDirNode) KindName() string { return "CopyDirNode" }
func (c *CopyDirNode) IsFile() bool     { return false }

func (c *CopyDirNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	src := g.Node(c.Source)
	return src.Stamp != n.Stamp
}

func (c *CopyDirNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error {
	src := g.Node(c.Source)
	dl, ok := src.Kind.(*DirectoryListNode)
	if !ok {
		return xerrors.Errorf("CopyDirNode: source %q is not a DirectoryListNode", src.Name)
	}
	c.files = dl.Files
	return nil
}

func (c *CopyDirNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	for _, fi := range c.files {
		if fi.IsDir {
			continue
		}
		src := filepath.Join(g.Node(c.Source).Kind.(*DirectoryListNode).Path, fi.Name)
		dst := filepath.Join(c.Dest, fi.Name)
		if err := copyFile(src, dst); err != nil {
			return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
		}
	}
	n.Stamp = g.Node(c.Source).Stamp
	return graph.Result{Outcome: graph.Ok}
}

func (c *CopyDirNode) Save(n *graph.Node, w *graph.Writer) error {
	w.Int32(int32(c.Source))
	w.String(c.Dest)
	return nil
}

func (c *CopyDirNode) Load(n *graph.Node, r *graph.Reader) error {
	c.Source = graph.NodeIndex(r.Int32())
	c.Dest = r.String()
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return xerrors.Errorf("copy: open %s: %w", src, err)
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return xerrors.Errorf("copy: mkdir: %w", err)
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return xerrors.Errorf("copy: read %s: %w", src, err)
	}
	return pathutil.AtomicWriteFile(dst, data, 0644)
}
