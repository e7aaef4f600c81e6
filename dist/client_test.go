package dist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forgebuild/forge/fingerprint"
	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/graph/nodes"
)

func TestTemplateArgsRoundTripsWithSubstitute(t *testing.T) {
	input, output := "/src/a.c", "/out/a.o"
	expanded := []string{"-c", input, "-o", output}

	template := templateArgs(expanded, input, output)
	if template[1] != "%1" || template[3] != "%2" {
		t.Fatalf("got template %v, want %%1/%%2 placeholders", template)
	}

	back := substituteTemplate(template, input, output)
	for i := range back {
		if back[i] != expanded[i] {
			t.Fatalf("got %v after round trip, want %v", back, expanded)
		}
	}
}

// startTestWorker spins up a Worker on an ephemeral localhost port and
// returns its address plus a cleanup func.
func startTestWorker(t *testing.T, toolchainRoot string) (string, func()) {
	t.Helper()
	ln, addr, err := ListenAddr("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenAddr: %v", err)
	}
	w := &Worker{ToolchainRoot: toolchainRoot, Parallelism: 2}
	ctx, cancel := context.WithCancel(context.Background())
	go w.Serve(ctx, ln)
	return addr, func() { cancel(); ln.Close() }
}

func TestClientDispatchEndToEnd(t *testing.T) {
	compilerDir := t.TempDir()
	toolchainRoot := t.TempDir()

	// A fake "compiler": a shell script that copies its input to its
	// output, standing in for a real cc per this repo's other exec-based
	// node tests (graph/nodes/object_test.go uses /bin/sh the same way).
	compilerPath := filepath.Join(compilerDir, "cc")
	// Invokes /bin/cp by absolute path rather than bare name: the worker's
	// synthesized environment only sets PATH to the toolchain directory
	// (spec.md §4.6), so a bare "cp" would not resolve.
	script := "#!/bin/sh\n/bin/cp \"$1\" \"$2\"\n"
	require.NoError(t, os.WriteFile(compilerPath, []byte(script), 0755))

	addr, stop := startTestWorker(t, toolchainRoot)
	defer stop()

	client := NewClient([]string{addr})
	toolchainID := uint64(0xabc123)
	contentHash, err := fingerprint.Hash32Reader(mustOpen(t, compilerPath))
	require.NoError(t, err)
	client.RegisterToolchain(toolchainID, compilerDir, []nodes.ToolchainFile{
		{RelPath: "cc", ContentHash: contentHash},
	})

	preprocessed := []byte("int main(){return 0;}")
	job := nodes.DistJob{
		NodeName:               "/work/a.o",
		SourceName:             "/work/a.c",
		CompilerArgs:           []string{"/work/a.c", "/work/a.o"},
		CompressedPreprocessed: fingerprint.Compress(preprocessed),
		ToolchainID:            toolchainID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := client.Dispatch(ctx, job)
	require.NoError(t, err)
	require.Equalf(t, 0, res.ReturnCode, "stderr: %s", res.Stderr)
	require.Equal(t, preprocessed, res.ObjectBytes, "fake compiler just copies input to output")
}

func TestClientDispatchNoWorkersConfigured(t *testing.T) {
	client := NewClient(nil)
	_, err := client.Dispatch(context.Background(), nodes.DistJob{})
	require.Error(t, err)
}

func TestClientTryRemoteNilForNonDistributableKind(t *testing.T) {
	g := graph.New(".")
	n, _ := g.Register("plain", &nodes.FileNode{})
	client := &Client{Graph: g}
	require.Nil(t, client.TryRemote(context.Background(), n))
}

func mustOpen(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}
