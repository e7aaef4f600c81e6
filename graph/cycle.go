package graph

import (
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// CheckAcyclic rejects any graph containing a directed cycle, per the data
// model invariant "the graph is acyclic; cycles are a parse-time fatal
// error" and testable property 8 ("error containing the word cyclic").
// It mirrors the teacher scheduler's own cycle check (internal/batch/batch.go,
// built on gonum's simple.DirectedGraph + topo.Sort), but fails the build
// instead of breaking the cycle: FASTBuild-style build graphs must never
// silently drop edges.
func (g *Graph) CheckAcyclic() error {
	dg := simple.NewDirectedGraph()
	for _, n := range g.nodes {
		dg.AddNode(mirrorNode(n.Index))
	}
	for _, n := range g.nodes {
		for _, idx := range n.PreBuild {
			dg.SetEdge(dg.NewEdge(mirrorNode(n.Index), mirrorNode(idx)))
		}
		for _, e := range n.Static {
			dg.SetEdge(dg.NewEdge(mirrorNode(n.Index), mirrorNode(e.To)))
		}
		for _, e := range n.Dynamic {
			dg.SetEdge(dg.NewEdge(mirrorNode(n.Index), mirrorNode(e.To)))
		}
	}
	if _, err := topo.Sort(dg); err != nil {
		uo, ok := err.(topo.Unorderable)
		if !ok {
			return xerrors.Errorf("graph: cyclic dependency detected: %w", err)
		}
		names := make([]string, 0, len(uo[0]))
		for _, n := range uo[0] {
			names = append(names, g.Node(NodeIndex(n.ID())).Name)
		}
		return xerrors.Errorf("graph: cyclic dependency detected among nodes %v", names)
	}
	return nil
}

// TopoOrder returns every node index in reverse-topological order
// (dependencies before dependents), the order the database file requires
// for its node list (§3 "every node written in reverse-topological order").
func (g *Graph) TopoOrder() ([]NodeIndex, error) {
	dg := simple.NewDirectedGraph()
	for _, n := range g.nodes {
		dg.AddNode(mirrorNode(n.Index))
	}
	for _, n := range g.nodes {
		for _, idx := range n.PreBuild {
			dg.SetEdge(dg.NewEdge(mirrorNode(n.Index), mirrorNode(idx)))
		}
		for _, e := range n.Static {
			dg.SetEdge(dg.NewEdge(mirrorNode(n.Index), mirrorNode(e.To)))
		}
		for _, e := range n.Dynamic {
			dg.SetEdge(dg.NewEdge(mirrorNode(n.Index), mirrorNode(e.To)))
		}
	}
	sorted, err := topo.Sort(dg)
	if err != nil {
		return nil, xerrors.Errorf("graph: cannot order cyclic graph: %w", err)
	}
	// topo.Sort puts an edge's source before its target; since our edges
	// point from dependent to dependency, the returned order has dependents
	// first. Reverse it so dependencies come before dependents and the node
	// building last (the root) is written last.
	out := make([]NodeIndex, len(sorted))
	for i, n := range sorted {
		out[len(sorted)-1-i] = NodeIndex(n.ID())
	}
	return out, nil
}

type mirrorNode int64

func (m mirrorNode) ID() int64 { return int64(m) }
