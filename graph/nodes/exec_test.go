package nodes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgebuild/forge/graph"
)

func TestExecNodeCapturesStdoutToOutputPath(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.txt")

	g := graph.New(dir)
	n, err := g.Register("exec", &ExecNode{
		Tool:             "/bin/echo",
		Args:             []string{"hi"},
		OutputPath:       outPath,
		ExpectedExitCode: 0,
	})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*ExecNode)

	res := kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hi\n" {
		t.Fatalf("expected captured stdout %q, got %q", "hi\n", got)
	}
	if n.Stamp == 0 {
		t.Fatal("expected non-zero stamp")
	}
}

func TestExecNodeFailsOnUnexpectedExitCode(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(dir)
	n, err := g.Register("exec", &ExecNode{
		Tool:             "/bin/false",
		ExpectedExitCode: 0,
	})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*ExecNode)

	res := kind.DoBuild(n, g)
	if res.Outcome != graph.OutcomeFailed {
		t.Fatalf("expected failure, got %v", res.Outcome)
	}
}

func TestExecNodeAcceptsExpectedNonZeroExitCode(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(dir)
	n, err := g.Register("exec", &ExecNode{
		Tool:             "/bin/false",
		ExpectedExitCode: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*ExecNode)

	res := kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
}
