package graph

import "testing"

func TestNeedToBuildOnNeverBuilt(t *testing.T) {
	g := New("/work")
	n, _ := g.Register("a", &stubKind{})
	if !g.NeedToBuild(n) {
		t.Fatal("a never-built non-file node should need to build")
	}
}

func TestNeedToBuildFileNodeWithZeroStampDoesNotForceRebuild(t *testing.T) {
	g := New("/work")
	n, _ := g.Register("a", &stubKind{IsF: true})
	if g.NeedToBuild(n) {
		t.Fatal("a file node's own stamp=0 should not alone force a rebuild here; FileNode.DetermineNeedToBuild owns that decision")
	}
}

func TestNeedToBuildWhenDependencyIsNewer(t *testing.T) {
	g := New("/work")
	dep, _ := g.Register("dep", &stubKind{IsF: true})
	n, _ := g.Register("n", &stubKind{IsF: true})
	n.Stamp = 10
	dep.Stamp = 20
	n.AddStatic(dep.Index)
	if !g.NeedToBuild(n) {
		t.Fatal("expected rebuild when a static dependency is newer")
	}
}

func TestNeedToBuildIgnoresWeakNewerDependency(t *testing.T) {
	g := New("/work")
	dep, _ := g.Register("dep", &stubKind{IsF: true})
	n, _ := g.Register("n", &stubKind{IsF: true})
	n.Stamp = 10
	dep.Stamp = 20
	n.AddWeakStatic(dep.Index)
	if g.NeedToBuild(n) {
		t.Fatal("a weak dependency must not force a rebuild")
	}
}

func TestAdvanceStateMachine(t *testing.T) {
	g := New("/work")
	dep, _ := g.Register("dep", &stubKind{IsF: true})
	n, _ := g.Register("n", &stubKind{IsF: true})
	n.AddStatic(dep.Index)

	if !g.AdvanceToPreDepsReady(n) {
		t.Fatal("expected PreDepsReady with no pre-build edges")
	}
	if g.AdvanceToStaticDepsReady(n) {
		t.Fatal("should not advance past StaticDepsReady while dep is not UP_TO_DATE")
	}
	dep.State = UpToDate
	if !g.AdvanceToStaticDepsReady(n) {
		t.Fatal("expected StaticDepsReady once dep is UP_TO_DATE")
	}
	if n.State != StaticDepsReady {
		t.Fatalf("n.State = %v, want StaticDepsReady", n.State)
	}
}

func TestAdvancePropagatesDependencyFailure(t *testing.T) {
	g := New("/work")
	dep, _ := g.Register("dep", &stubKind{})
	n, _ := g.Register("n", &stubKind{})
	n.AddStatic(dep.Index)
	g.AdvanceToPreDepsReady(n)
	dep.State = Failed
	if g.AdvanceToStaticDepsReady(n) {
		t.Fatal("should not advance when a required dependency failed")
	}
	if n.State != Failed {
		t.Fatalf("n.State = %v, want Failed", n.State)
	}
}
