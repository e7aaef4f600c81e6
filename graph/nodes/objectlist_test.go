package nodes

import (
	"testing"

	"github.com/forgebuild/forge/graph"
)

func TestObjectListNodeAggregatesChildStamps(t *testing.T) {
	g := graph.New(t.TempDir())
	a, err := g.Register("a.o", &FileNode{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.Register("b.o", &FileNode{})
	if err != nil {
		t.Fatal(err)
	}
	a.Stamp = 111
	b.Stamp = 222

	n, err := g.Register("objs", &ObjectListNode{Objects: []graph.NodeIndex{a.Index, b.Index}})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*ObjectListNode)
	res := kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	stampBefore := n.Stamp

	b.Stamp = 333
	res = kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	if n.Stamp == stampBefore {
		t.Fatal("expected aggregate stamp to change when a child stamp changes")
	}
}
