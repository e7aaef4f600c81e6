package nodes

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/forgebuild/forge/graph"
)

func TestExeNodeLinksAndStamps(t *testing.T) {
	dir := t.TempDir()
	objPath := filepath.Join(dir, "a.o")
	if err := os.WriteFile(objPath, []byte("obj"), 0644); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(dir, "out.exe")

	g := graph.New(dir)
	objNode, err := g.Register(objPath, &FileNode{})
	if err != nil {
		t.Fatal(err)
	}

	n, err := g.Register("exe", &ExeNode{linkCommon{
		Tool:        "/bin/sh",
		ArgTemplate: []string{"-c", "echo link > %2"},
		Inputs:      []graph.NodeIndex{objNode.Index},
		OutputPath:  outPath,
	}})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*ExeNode)

	if !kind.DetermineNeedToBuild(n, g) {
		t.Fatal("expected never-built ExeNode to need building")
	}
	res := kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("expected output to exist: %v", err)
	}
	if n.Stamp == 0 {
		t.Fatal("expected non-zero stamp after link")
	}
}

func TestLinkCommonExpandArgsSubstitutesPlaceholders(t *testing.T) {
	l := &linkCommon{
		ArgTemplate: []string{"/OUT:%2", "%1"},
		OutputPath:  "out.exe",
	}
	args := l.expandArgs([]string{"a.o", "b.o"})
	if args[0] != "/OUT:out.exe" {
		t.Fatalf("expected output substitution, got %q", args[0])
	}
	if args[1] != "a.o b.o" {
		t.Fatalf("expected joined input substitution, got %q", args[1])
	}
}

func TestLinkCommonSaveLoadRoundTrips(t *testing.T) {
	orig := &linkCommon{
		Tool:           "ld",
		ArgTemplate:    []string{"%1", "%2"},
		Inputs:         []graph.NodeIndex{1, 2},
		OutputPath:     "out",
		MSVC:           true,
		RetryOnLinkICE: true,
	}
	var buf bytes.Buffer
	w := graph.NewWriter(&buf)
	orig.save(w)
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r := graph.NewReader(&buf)
	got := &linkCommon{}
	got.load(r)
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	if got.Tool != orig.Tool || got.OutputPath != orig.OutputPath || got.MSVC != orig.MSVC || got.RetryOnLinkICE != orig.RetryOnLinkICE {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, orig)
	}
	if len(got.Inputs) != 2 || got.Inputs[0] != 1 || got.Inputs[1] != 2 {
		t.Fatalf("inputs mismatch: %v", got.Inputs)
	}
}
