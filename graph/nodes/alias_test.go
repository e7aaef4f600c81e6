package nodes

import (
	"testing"

	"github.com/forgebuild/forge/graph"
)

func TestAliasNodeHashesTargetStamps(t *testing.T) {
	g := graph.New(t.TempDir())
	a, _ := g.Register("a", &FileNode{})
	b, _ := g.Register("b", &FileNode{})
	a.Stamp, b.Stamp = 1, 2

	n, err := g.Register("alias", &AliasNode{Targets: []graph.NodeIndex{a.Index, b.Index}})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*AliasNode)
	res := kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	stamp1 := n.Stamp

	b.Stamp = 3
	res = kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	if n.Stamp == stamp1 {
		t.Fatal("expected alias stamp to change when a target's stamp changes")
	}
}

func TestProxyNodeHashesTargetStamps(t *testing.T) {
	g := graph.New(t.TempDir())
	a, _ := g.Register("a", &FileNode{})
	a.Stamp = 42

	n, err := g.Register("proxy", &ProxyNode{Targets: []graph.NodeIndex{a.Index}})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*ProxyNode)
	res := kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	if n.Stamp == 0 {
		t.Fatal("expected non-zero stamp")
	}
}
