package nodes

import (
	"github.com/forgebuild/forge/fingerprint"
	"github.com/forgebuild/forge/graph"
)

// AliasNode groups other nodes under one name with no output of its own;
// its stamp is a hash over its children's stamps so a touch anywhere below
// it is visible to anything depending on the alias.
type AliasNode struct {
	Targets []graph.NodeIndex
}

func init() {
	graph.KindRegistry["AliasNode"] = func() graph.Kind { return &AliasNode{} }
}

func (a *AliasNode) KindName() string { return "AliasNode" }
func (a *AliasNode) IsFile() bool     { return false }
func (a *AliasNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return true
}
func (a *AliasNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }
func (a *AliasNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	h := fingerprint.NewHash64Stream()
	for _, idx := range a.Targets {
		h.WriteUint64(g.Node(idx).Stamp)
	}
	n.Stamp = h.Sum()
	return graph.Result{Outcome: graph.Ok}
}
func (a *AliasNode) Save(n *graph.Node, w *graph.Writer) error {
	writeIndexSliceHelper(w, a.Targets)
	return nil
}
func (a *AliasNode) Load(n *graph.Node, r *graph.Reader) error {
	a.Targets = readIndexSliceHelper(r)
	return nil
}

// ProxyNode exists purely for internal batching: grouping a set of nodes
// behind one index without being named in the configuration file, the
// implementation detail §9 calls "grouping and internal batching."
type ProxyNode struct {
	Targets []graph.NodeIndex
}

func init() {
	graph.KindRegistry["ProxyNode"] = func() graph.Kind { return &ProxyNode{} }
}

func (p *ProxyNode) KindName() string { return "ProxyNode" }
func (p *ProxyNode) IsFile() bool     { return false }
func (p *ProxyNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return true
}
func (p *ProxyNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }
func (p *ProxyNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	h := fingerprint.NewHash64Stream()
	for _, idx := range p.Targets {
		h.WriteUint64(g.Node(idx).Stamp)
	}
	n.Stamp = h.Sum()
	return graph.Result{Outcome: graph.Ok}
}
func (p *ProxyNode) Save(n *graph.Node, w *graph.Writer) error {
	writeIndexSliceHelper(w, p.Targets)
	return nil
}
func (p *ProxyNode) Load(n *graph.Node, r *graph.Reader) error {
	p.Targets = readIndexSliceHelper(r)
	return nil
}
