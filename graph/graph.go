package graph

import (
	"github.com/forgebuild/forge/fingerprint"
	"github.com/forgebuild/forge/pathutil"
	"github.com/forgebuild/forge/platform"
	"golang.org/x/xerrors"
)

const bucketCount = 65536

// Graph owns every Node for one build as a dense arena, indexed by a
// 65,536-bucket open-chained hash table keyed by the CRC32 of the
// lower-cased canonical name, per the data model's invariant: "lookup is
// O(1) via a hash bucket chain keyed by the lower-case CRC32 of the
// canonical name."
type Graph struct {
	WorkingDir string
	Cap        platform.Capability

	nodes   []*Node
	buckets [bucketCount][]NodeIndex

	passCounter uint32
}

// New returns an empty graph rooted at wd, used to resolve relative node
// names via CleanPath.
func New(wd string) *Graph {
	return &Graph{WorkingDir: wd, Cap: platform.Default}
}

func (g *Graph) bucketKey(canonical string) uint32 {
	folded := g.Cap.CaseInsensitiveName(canonical)
	return fingerprint.Hash32([]byte(folded)) % bucketCount
}

// Register adds a new node named name with the given kind and returns it.
// It is an error to register a name that already exists.
func (g *Graph) Register(name string, kind Kind) (*Node, error) {
	canonical := pathutil.CleanPath(g.WorkingDir, name)
	if _, ok := g.find(canonical); ok {
		return nil, xerrors.Errorf("graph: node %q already registered", canonical)
	}
	n := &Node{
		Index: NodeIndex(len(g.nodes)),
		Name:  canonical,
		Kind:  kind,
		State: NotProcessed,
	}
	g.nodes = append(g.nodes, n)
	key := g.bucketKey(canonical)
	g.buckets[key] = append(g.buckets[key], n.Index)
	return n, nil
}

// Node returns the node at idx. idx must be in [0, Len()).
func (g *Graph) Node(idx NodeIndex) *Node {
	return g.nodes[idx]
}

// Len returns the number of registered nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns the full arena in index order. Callers must not mutate the
// returned slice's length.
func (g *Graph) Nodes() []*Node { return g.nodes }

func (g *Graph) find(name string) (*Node, bool) {
	key := g.bucketKey(name)
	folded := g.Cap.CaseInsensitiveName(name)
	for _, idx := range g.buckets[key] {
		n := g.nodes[idx]
		if g.Cap.CaseInsensitiveName(n.Name) == folded {
			return n, true
		}
	}
	return nil, false
}

// FindNode looks up name as-is, then cleaned through CleanPath, matching
// the data model's "FindNode(name) first tries the name as-is, then with
// CleanPath."
func (g *Graph) FindNode(name string) (*Node, bool) {
	if n, ok := g.find(name); ok {
		return n, true
	}
	cleaned := pathutil.CleanPath(g.WorkingDir, name)
	if cleaned == name {
		return nil, false
	}
	return g.find(cleaned)
}

// NextPass returns a fresh pass tag, a monotonic 32-bit counter that
// prevents a scheduler walk from revisiting a node twice within one pass.
func (g *Graph) NextPass() uint32 {
	g.passCounter++
	return g.passCounter
}

// Visited reports whether n has already been marked with tag, and marks it
// visited as a side effect if not.
func (g *Graph) Visited(n *Node, tag uint32) bool {
	if n.passTag == tag {
		return true
	}
	n.passTag = tag
	return false
}
