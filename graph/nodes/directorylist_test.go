package nodes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/pathutil"
)

func TestDirectoryListNodeScansAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.cpp", "a.cpp", "c.h"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	g := graph.New(dir)
	n, err := g.Register("dirlist", &DirectoryListNode{
		Path:     dir,
		Patterns: []string{"*.cpp"},
	})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*DirectoryListNode)

	res := kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	if len(kind.Files) != 2 {
		t.Fatalf("expected 2 matching files, got %d: %v", len(kind.Files), kind.Files)
	}
	if kind.Files[0].Name != "a.cpp" || kind.Files[1].Name != "b.cpp" {
		t.Fatalf("expected sorted [a.cpp b.cpp], got %v", kind.Files)
	}
	if n.Stamp == 0 {
		t.Fatal("expected non-zero stamp")
	}
}

func TestDirectoryListNodeAlwaysRebuilds(t *testing.T) {
	kind := &DirectoryListNode{}
	if !kind.DetermineNeedToBuild(&graph.Node{}, nil) {
		t.Fatal("DirectoryListNode must always report needing rebuild")
	}
}

func TestHashFileListDistinguishesNamesAndIsStable(t *testing.T) {
	a := []pathutil.FileInfo{{Name: "a.cpp", ModTime: 1, Size: 10}}
	b := []pathutil.FileInfo{{Name: "b.cpp", ModTime: 1, Size: 10}}
	if hashFileList(a) == hashFileList(b) {
		t.Fatal("different file lists should hash differently")
	}
	if hashFileList(a) != hashFileList(a) {
		t.Fatal("hashing the same file list twice should be stable")
	}
}
