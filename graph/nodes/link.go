package nodes

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/platform"
	"golang.org/x/xerrors"
)

// linkCommon is embedded by LibraryNode, DLLNode, and ExeNode: all three
// link/archive over an ObjectListNode and other file inputs, tokenizing the
// same argument template with the same %1/%2 substitutions, per the data
// model's "Tokenize the linker/archiver argument template, substituting %1
// with the space-separated input list... %2 with the output path."
type linkCommon struct {
	Tool        string
	ArgTemplate []string // tokens, %1=inputs, %2=output
	Inputs      []graph.NodeIndex
	OutputPath  string

	MSVC           bool // delete stale .ilk/.pdb before non-incremental link
	RetryOnLinkICE bool // retry once on linker exit code 1000

	Cap platform.Capability
}

func (l *linkCommon) gatherInputPaths(g *graph.Graph) []string {
	var paths []string
	for _, idx := range l.Inputs {
		n := g.Node(idx)
		switch k := n.Kind.(type) {
		case *ObjectListNode:
			for _, objIdx := range k.Objects {
				paths = append(paths, g.Node(objIdx).Kind.(*ObjectNode).OutputPath)
			}
		case *ObjectNode:
			paths = append(paths, k.OutputPath)
		default:
			paths = append(paths, n.Name)
		}
	}
	return paths
}

func (l *linkCommon) expandArgs(inputPaths []string) []string {
	joined := strings.Join(inputPaths, " ")
	out := make([]string, len(l.ArgTemplate))
	for i, tok := range l.ArgTemplate {
		tok = strings.ReplaceAll(tok, "%1", joined)
		tok = strings.ReplaceAll(tok, "%2", l.OutputPath)
		out[i] = tok
	}
	return out
}

func (l *linkCommon) cap() platform.Capability {
	if l.Cap == nil {
		return platform.Default
	}
	return l.Cap
}

// needToBuild re-stats OutputPath, mirroring FileNode.DetermineNeedToBuild:
// a deleted or externally modified link output must be rebuilt even though
// n.Stamp still holds the value recorded at the last successful link.
func (l *linkCommon) needToBuild(n *graph.Node) bool {
	if n.Stamp == 0 {
		return true
	}
	stamp, err := l.cap().Stamp(l.OutputPath)
	if err != nil {
		return true
	}
	return stamp != n.Stamp
}

// runLink executes the configured linker/archiver, retrying once on an MSVC
// linker internal compiler error (exit code 1000), and stamps the output on
// success.
func (l *linkCommon) runLink(n *graph.Node, g *graph.Graph) graph.Result {
	if l.MSVC {
		base := strings.TrimSuffix(l.OutputPath, filepath.Ext(l.OutputPath))
		os.Remove(base + ".ilk")
		os.Remove(base + ".pdb")
	}

	inputPaths := l.gatherInputPaths(g)
	attempt := func() (int, string, string) {
		cmd := exec.CommandContext(context.Background(), l.Tool, l.expandArgs(inputPaths)...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout, cmd.Stderr = &stdout, &stderr
		err := cmd.Run()
		code := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else if err != nil {
			code = -1
		}
		return code, stdout.String(), stderr.String()
	}

	code, stdout, stderr := attempt()
	if code == 1000 && l.RetryOnLinkICE {
		code, stdout, stderr = attempt()
	}
	if code != 0 {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: xerrors.Errorf(
			"link %s: exit %d\nstdout: %s\nstderr: %s", l.OutputPath, code, stdout, stderr)}
	}

	stamp, err := l.cap().Stamp(l.OutputPath)
	if err != nil {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
	}
	n.Stamp = stamp
	return graph.Result{Outcome: graph.Ok}
}

func (l *linkCommon) save(w *graph.Writer) {
	w.String(l.Tool)
	writeStrings(w, l.ArgTemplate)
	writeIndexSliceHelper(w, l.Inputs)
	w.String(l.OutputPath)
	w.Bool(l.MSVC)
	w.Bool(l.RetryOnLinkICE)
}

func (l *linkCommon) load(r *graph.Reader) {
	l.Tool = r.String()
	l.ArgTemplate = readStrings(r)
	l.Inputs = readIndexSliceHelper(r)
	l.OutputPath = r.String()
	l.MSVC = r.Bool()
	l.RetryOnLinkICE = r.Bool()
	l.Cap = platform.Default
}

// LibraryNode archives an ObjectListNode's outputs into a static library.
type LibraryNode struct{ linkCommon }

func init() {
	graph.KindRegistry["LibraryNode"] = func() graph.Kind { return &LibraryNode{} }
}

func (l *LibraryNode) KindName() string { return "LibraryNode" }
func (l *LibraryNode) IsFile() bool     { return true }
func (l *LibraryNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return l.needToBuild(n)
}
func (l *LibraryNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }
func (l *LibraryNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result   { return l.runLink(n, g) }
func (l *LibraryNode) Save(n *graph.Node, w *graph.Writer) error            { l.save(w); return nil }
func (l *LibraryNode) Load(n *graph.Node, r *graph.Reader) error            { l.load(r); return nil }

// DLLNode links a dynamic library.
type DLLNode struct{ linkCommon }

func init() {
	graph.KindRegistry["DLLNode"] = func() graph.Kind { return &DLLNode{} }
}

func (d *DLLNode) KindName() string { return "DLLNode" }
func (d *DLLNode) IsFile() bool     { return true }
func (d *DLLNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return d.needToBuild(n)
}
func (d *DLLNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }
func (d *DLLNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result   { return d.runLink(n, g) }
func (d *DLLNode) Save(n *graph.Node, w *graph.Writer) error            { d.save(w); return nil }
func (d *DLLNode) Load(n *graph.Node, r *graph.Reader) error            { d.load(r); return nil }

// ExeNode links an executable.
type ExeNode struct{ linkCommon }

func init() {
	graph.KindRegistry["ExeNode"] = func() graph.Kind { return &ExeNode{} }
}

func (e *ExeNode) KindName() string { return "ExeNode" }
func (e *ExeNode) IsFile() bool     { return true }
func (e *ExeNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return e.needToBuild(n)
}
func (e *ExeNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }
func (e *ExeNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result   { return e.runLink(n, g) }
func (e *ExeNode) Save(n *graph.Node, w *graph.Writer) error            { e.save(w); return nil }
func (e *ExeNode) Load(n *graph.Node, r *graph.Reader) error            { e.load(r); return nil }
