package nodes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/forgebuild/forge/fingerprint"
	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/pathutil"
	"github.com/forgebuild/forge/platform"
)

// TextFileNode writes a literal text blob to OutputPath, used for generated
// headers, version stamps, and the like.
type TextFileNode struct {
	OutputPath string
	Content    string

	Cap platform.Capability
}

func init() {
	graph.KindRegistry["TextFileNode"] = func() graph.Kind { return &TextFileNode{Cap: platform.Default} }
}

func (t *TextFileNode) KindName() string { return "TextFileNode" }
func (t *TextFileNode) IsFile() bool     { return true }
func (t *TextFileNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return n.Stamp != fingerprint.Hash64([]byte(t.Content))
}
func (t *TextFileNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }
func (t *TextFileNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	if err := pathutil.AtomicWriteFile(t.OutputPath, []byte(t.Content), 0644); err != nil {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
	}
	n.Stamp = fingerprint.Hash64([]byte(t.Content))
	return graph.Result{Outcome: graph.Ok}
}
func (t *TextFileNode) Save(n *graph.Node, w *graph.Writer) error {
	w.String(t.OutputPath)
	w.String(t.Content)
	return nil
}
func (t *TextFileNode) Load(n *graph.Node, r *graph.Reader) error {
	t.OutputPath = r.String()
	t.Content = r.String()
	t.Cap = platform.Default
	return nil
}

// ListDependenciesNode writes a flat, sorted listing of a node's transitive
// static+dynamic dependency names, used for dependency auditing.
type ListDependenciesNode struct {
	Root       graph.NodeIndex
	OutputPath string
}

func init() {
	graph.KindRegistry["ListDependenciesNode"] = func() graph.Kind { return &ListDependenciesNode{} }
}

func (l *ListDependenciesNode) KindName() string { return "ListDependenciesNode" }
func (l *ListDependenciesNode) IsFile() bool     { return true }
func (l *ListDependenciesNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return true
}
func (l *ListDependenciesNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }
func (l *ListDependenciesNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	names := collectTransitiveNames(g, l.Root, map[graph.NodeIndex]bool{})
	sort.Strings(names)
	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintln(&sb, name)
	}
	if err := pathutil.AtomicWriteFile(l.OutputPath, []byte(sb.String()), 0644); err != nil {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
	}
	n.Stamp = fingerprint.Hash64([]byte(sb.String()))
	return graph.Result{Outcome: graph.Ok}
}

func collectTransitiveNames(g *graph.Graph, idx graph.NodeIndex, seen map[graph.NodeIndex]bool) []string {
	if seen[idx] {
		return nil
	}
	seen[idx] = true
	n := g.Node(idx)
	out := []string{n.Name}
	for _, e := range n.Static {
		out = append(out, collectTransitiveNames(g, e.To, seen)...)
	}
	for _, e := range n.Dynamic {
		out = append(out, collectTransitiveNames(g, e.To, seen)...)
	}
	return out
}

func (l *ListDependenciesNode) Save(n *graph.Node, w *graph.Writer) error {
	w.Int32(int32(l.Root))
	w.String(l.OutputPath)
	return nil
}
func (l *ListDependenciesNode) Load(n *graph.Node, r *graph.Reader) error {
	l.Root = graph.NodeIndex(r.Int32())
	l.OutputPath = r.String()
	return nil
}

// VCXProjectNode and SLNNode emit Visual Studio project/solution files from
// the graph; their content is a fixed template over the configured project
// metadata, not something worth hand-rolling an XML/text templating
// dependency for (the teacher has none either).
type VCXProjectNode struct {
	ProjectName string
	OutputPath  string
	Items       []string // source file paths listed in the project
}

func init() {
	graph.KindRegistry["VCXProjectNode"] = func() graph.Kind { return &VCXProjectNode{} }
}

func (v *VCXProjectNode) KindName() string { return "VCXProjectNode" }
func (v *VCXProjectNode) IsFile() bool     { return true }
func (v *VCXProjectNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return true
}
func (v *VCXProjectNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }
func (v *VCXProjectNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<Project Name=%q>\n", v.ProjectName)
	for _, item := range v.Items {
		fmt.Fprintf(&sb, "  <ClCompile Include=%q/>\n", item)
	}
	sb.WriteString("</Project>\n")
	if err := pathutil.AtomicWriteFile(v.OutputPath, []byte(sb.String()), 0644); err != nil {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
	}
	n.Stamp = fingerprint.Hash64([]byte(sb.String()))
	return graph.Result{Outcome: graph.Ok}
}
func (v *VCXProjectNode) Save(n *graph.Node, w *graph.Writer) error {
	w.String(v.ProjectName)
	w.String(v.OutputPath)
	writeStrings(w, v.Items)
	return nil
}
func (v *VCXProjectNode) Load(n *graph.Node, r *graph.Reader) error {
	v.ProjectName = r.String()
	v.OutputPath = r.String()
	v.Items = readStrings(r)
	return nil
}

type SLNNode struct {
	SolutionName string
	OutputPath   string
	Projects     []graph.NodeIndex
}

func init() {
	graph.KindRegistry["SLNNode"] = func() graph.Kind { return &SLNNode{} }
}

func (s *SLNNode) KindName() string { return "SLNNode" }
func (s *SLNNode) IsFile() bool     { return true }
func (s *SLNNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return true
}
func (s *SLNNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }
func (s *SLNNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Microsoft Visual Studio Solution File\nSolutionName=%s\n", s.SolutionName)
	for _, idx := range s.Projects {
		fmt.Fprintf(&sb, "Project(%q)\n", g.Node(idx).Name)
	}
	if err := pathutil.AtomicWriteFile(s.OutputPath, []byte(sb.String()), 0644); err != nil {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
	}
	n.Stamp = fingerprint.Hash64([]byte(sb.String()))
	return graph.Result{Outcome: graph.Ok}
}
func (s *SLNNode) Save(n *graph.Node, w *graph.Writer) error {
	w.String(s.SolutionName)
	w.String(s.OutputPath)
	writeIndexSliceHelper(w, s.Projects)
	return nil
}
func (s *SLNNode) Load(n *graph.Node, r *graph.Reader) error {
	s.SolutionName = r.String()
	s.OutputPath = r.String()
	s.Projects = readIndexSliceHelper(r)
	return nil
}

// SettingsNode carries process-wide build settings parsed from the
// configuration's Settings() function (cache path overrides, worker list,
// environment snapshot). It produces no file; its "build" is a no-op that
// always reports up to date.
type SettingsNode struct {
	CachePath   string
	Workers     []string
	Environment map[string]string
}

func init() {
	graph.KindRegistry["SettingsNode"] = func() graph.Kind { return &SettingsNode{} }
}

func (s *SettingsNode) KindName() string { return "SettingsNode" }
func (s *SettingsNode) IsFile() bool     { return false }
func (s *SettingsNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return false
}
func (s *SettingsNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }
func (s *SettingsNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	n.Stamp = 1
	return graph.Result{Outcome: graph.Ok}
}
func (s *SettingsNode) Save(n *graph.Node, w *graph.Writer) error {
	w.String(s.CachePath)
	writeStrings(w, s.Workers)
	w.Uint32(uint32(len(s.Environment)))
	for k, v := range s.Environment {
		w.String(k)
		w.String(v)
	}
	return nil
}
func (s *SettingsNode) Load(n *graph.Node, r *graph.Reader) error {
	s.CachePath = r.String()
	s.Workers = readStrings(r)
	count := r.Uint32()
	s.Environment = make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		k := r.String()
		v := r.String()
		s.Environment[k] = v
	}
	return nil
}
