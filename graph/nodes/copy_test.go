package nodes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgebuild/forge/graph"
)

func TestCopyNodeCopiesAndStampsFromSource(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(srcPath, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	dstPath := filepath.Join(dir, "dst.txt")

	g := graph.New(dir)
	srcNode, err := g.Register(srcPath, &FileNode{})
	if err != nil {
		t.Fatal(err)
	}
	srcKind := srcNode.Kind.(*FileNode)
	if res := srcKind.DoBuild(srcNode, g); res.Outcome != graph.Ok {
		t.Fatalf("source DoBuild: %v", res.Err)
	}

	copyNode, err := g.Register("copy", &CopyNode{Source: srcNode.Index, SourcePath: srcPath, Dest: dstPath})
	if err != nil {
		t.Fatal(err)
	}
	copyKind := copyNode.Kind.(*CopyNode)

	if !copyKind.DetermineNeedToBuild(copyNode, g) {
		t.Fatal("expected need-to-build before first copy")
	}
	res := copyKind.DoBuild(copyNode, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	got, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Fatalf("expected copied content, got %q", got)
	}
	if copyNode.Stamp != srcNode.Stamp {
		t.Fatalf("expected copy stamp to equal source stamp, got %d vs %d", copyNode.Stamp, srcNode.Stamp)
	}
	if copyKind.DetermineNeedToBuild(copyNode, g) {
		t.Fatal("expected up to date once stamps match")
	}
}
