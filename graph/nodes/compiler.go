package nodes

import (
	"sort"

	"github.com/forgebuild/forge/fingerprint"
	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/platform"
)

// ToolchainFile is one entry of a CompilerNode's manifest: a file relative
// to the toolchain root, its content hash, mtime and size — the same shape
// the distribution protocol's manifest sync uses (§4.6).
type ToolchainFile struct {
	RelPath      string
	ContentHash  uint32 // 32-bit, per §4.6's manifest entry width
	ModTime      int64
	Size         int64
}

// CompilerNode describes a toolchain: an executable plus auxiliary files.
// Its ToolchainID is a 64-bit hash over (content hash, relative path) of
// every file, deterministic regardless of file order and changing with any
// single-bit content change (testable property 5).
type CompilerNode struct {
	Executable string
	AuxFiles   []ToolchainFile

	ToolchainID uint64

	Cap platform.Capability
}

func init() {
	graph.KindRegistry["CompilerNode"] = func() graph.Kind { return &CompilerNode{Cap: platform.Default} }
}

func (c *CompilerNode) KindName() string { return "CompilerNode" }
func (c *CompilerNode) IsFile() bool     { return false }

func (c *CompilerNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return n.Stamp == 0
}

func (c *CompilerNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }

func (c *CompilerNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	c.ToolchainID = ComputeToolchainID(c.AuxFiles)
	n.Stamp = c.ToolchainID
	return graph.Result{Outcome: graph.Ok}
}

// ComputeToolchainID hashes a manifest of (relative-path, content-hash)
// pairs into a single 64-bit id. The manifest is sorted by relative path
// first so the result does not depend on file enumeration order, matching
// property 5's "same set of pairs produces the same toolchain id."
func ComputeToolchainID(files []ToolchainFile) uint64 {
	sorted := make([]ToolchainFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })

	h := fingerprint.NewHash64Stream()
	for _, f := range sorted {
		h.Write([]byte(f.RelPath))
		h.WriteUint64(uint64(f.ContentHash))
	}
	return h.Sum()
}

func (c *CompilerNode) Save(n *graph.Node, w *graph.Writer) error {
	w.String(c.Executable)
	w.Uint32(uint32(len(c.AuxFiles)))
	for _, f := range c.AuxFiles {
		w.String(f.RelPath)
		w.Uint32(f.ContentHash)
		w.Int64(f.ModTime)
		w.Int64(f.Size)
	}
	w.Uint64(c.ToolchainID)
	return nil
}

func (c *CompilerNode) Load(n *graph.Node, r *graph.Reader) error {
	c.Executable = r.String()
	count := r.Uint32()
	c.AuxFiles = make([]ToolchainFile, count)
	for i := range c.AuxFiles {
		c.AuxFiles[i] = ToolchainFile{
			RelPath:     r.String(),
			ContentHash: r.Uint32(),
			ModTime:     r.Int64(),
			Size:        r.Int64(),
		}
	}
	c.ToolchainID = r.Uint64()
	c.Cap = platform.Default
	return nil
}
