package nodes

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forgebuild/forge/graph"
)

func TestTextFileNodeWritesContentAndStamps(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "version.h")

	g := graph.New(dir)
	n, err := g.Register("textfile", &TextFileNode{OutputPath: outPath, Content: "#define V 1\n"})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*TextFileNode)

	if !kind.DetermineNeedToBuild(n, g) {
		t.Fatal("expected need-to-build before first write")
	}
	res := kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "#define V 1\n" {
		t.Fatalf("unexpected content: %q", got)
	}
	if kind.DetermineNeedToBuild(n, g) {
		t.Fatal("expected up to date once stamp matches content")
	}

	kind.Content = "#define V 2\n"
	if !kind.DetermineNeedToBuild(n, g) {
		t.Fatal("expected need-to-build after content changes")
	}
}

func TestListDependenciesNodeWritesTransitiveNames(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(dir)
	leaf, _ := g.Register("leaf", &FileNode{})
	mid, _ := g.Register("mid", &FileNode{})
	mid.AddStatic(leaf.Index)
	root, _ := g.Register("root", &FileNode{})
	root.AddStatic(mid.Index)

	outPath := filepath.Join(dir, "deps.txt")
	n, err := g.Register("listdeps", &ListDependenciesNode{Root: root.Index, OutputPath: outPath})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*ListDependenciesNode)
	res := kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	contents := string(got)
	for _, name := range []string{root.Name, mid.Name, leaf.Name} {
		if !strings.Contains(contents, name) {
			t.Fatalf("expected dependency listing to contain %q, got %q", name, contents)
		}
	}
}

func TestSettingsNodeNeverNeedsBuild(t *testing.T) {
	kind := &SettingsNode{}
	if kind.DetermineNeedToBuild(&graph.Node{}, nil) {
		t.Fatal("SettingsNode should never report needing a build")
	}
}

func TestVCXProjectNodeWritesItems(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "proj.vcxproj")
	g := graph.New(dir)
	n, err := g.Register("vcx", &VCXProjectNode{
		ProjectName: "demo",
		OutputPath:  outPath,
		Items:       []string{"a.cpp", "b.cpp"},
	})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*VCXProjectNode)
	res := kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), "a.cpp") || !strings.Contains(string(got), "b.cpp") {
		t.Fatalf("expected project file to list both items, got %q", got)
	}
}

func TestSLNNodeListsProjects(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(dir)
	proj, _ := g.Register("proj", &FileNode{})
	outPath := filepath.Join(dir, "solution.sln")
	n, err := g.Register("sln", &SLNNode{
		SolutionName: "demo",
		OutputPath:   outPath,
		Projects:     []graph.NodeIndex{proj.Index},
	})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*SLNNode)
	res := kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), proj.Name) {
		t.Fatalf("expected solution file to reference project name, got %q", got)
	}
}
