package nodes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgebuild/forge/graph"
)

// TestUnityNodeOrderingIsCaseInsensitiveAndStable grounds S2: amalgamation
// bucket assignment depends only on a case-insensitive lexicographic sort of
// the input names, so the same input set produces identical Unity*.cpp
// contents regardless of the filesystem's native enumeration order.
func TestUnityNodeOrderingIsCaseInsensitiveAndStable(t *testing.T) {
	in := []string{"Banana.cpp", "apple.cpp", "Cherry.cpp"}
	got := sortedUnityInputs(in)
	want := []string{"apple.cpp", "Banana.cpp", "Cherry.cpp"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sortedUnityInputs = %v, want %v", got, want)
		}
	}

	// Starting from a different input order should yield the same sorted
	// result, which is what keeps generated Unity*.cpp content identical
	// across platforms with different directory enumeration orders.
	shuffled := []string{"Cherry.cpp", "Banana.cpp", "apple.cpp"}
	got2 := sortedUnityInputs(shuffled)
	for i := range want {
		if got2[i] != want[i] {
			t.Fatalf("sortedUnityInputs(shuffled) = %v, want %v", got2, want)
		}
	}
}

func TestUnityNodeBucketsRoundRobinAndForceIsolates(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.cpp", "b.cpp", "c.cpp", "noamalgam.cpp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("// "+name), 0644); err != nil {
			t.Fatal(err)
		}
	}

	g := graph.New(dir)
	n, err := g.Register("unity", &UnityNode{
		Inputs:       graph.InvalidIndex,
		Files:        []string{"a.cpp", "b.cpp", "c.cpp", "noamalgam.cpp"},
		NumFiles:     2,
		OutputPath:   dir,
		ForceIsolate: []string{"noamalgam.cpp"},
	})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*UnityNode)

	res := kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	if len(kind.Isolated) != 1 || kind.Isolated[0] != "noamalgam.cpp" {
		t.Fatalf("expected noamalgam.cpp isolated, got %v", kind.Isolated)
	}
	if len(kind.Amalgamations) != 2 {
		t.Fatalf("expected 2 amalgamation files, got %d", len(kind.Amalgamations))
	}
	for _, out := range kind.Amalgamations {
		if _, err := os.Stat(out); err != nil {
			t.Fatalf("expected amalgamation file to exist: %v", err)
		}
	}
	if n.Stamp == 0 {
		t.Fatal("expected non-zero stamp")
	}
}

func TestUnityNodeDefaultsToSingleFileWhenNumFilesUnset(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(dir)
	n, err := g.Register("unity", &UnityNode{
		Inputs:     graph.InvalidIndex,
		Files:      []string{"a.cpp"},
		OutputPath: dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	kind := n.Kind.(*UnityNode)
	res := kind.DoBuild(n, g)
	if res.Outcome != graph.Ok {
		t.Fatalf("DoBuild: %v", res.Err)
	}
	if len(kind.Amalgamations) != 1 {
		t.Fatalf("expected exactly 1 amalgamation file, got %d", len(kind.Amalgamations))
	}
}
