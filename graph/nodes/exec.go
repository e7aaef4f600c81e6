package nodes

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/pathutil"
	"github.com/forgebuild/forge/platform"
	"golang.org/x/xerrors"
)

// ExecNode runs an arbitrary tool; it fails unless the return code matches
// ExpectedExitCode, per the data model.
type ExecNode struct {
	Tool             string
	Args             []string
	WorkingDir       string
	OutputPath       string // if set, stdout is captured here
	ExpectedExitCode int

	Cap platform.Capability
}

func init() {
	graph.KindRegistry["ExecNode"] = func() graph.Kind { return &ExecNode{Cap: platform.Default} }
}

func (e *ExecNode) KindName() string { return "ExecNode" }
func (e *ExecNode) IsFile() bool     { return e.OutputPath != "" }

func (e *ExecNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return n.Stamp == 0
}

func (e *ExecNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error { return nil }

func (e *ExecNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	cmd := exec.CommandContext(context.Background(), e.Tool, e.Args...)
	cmd.Dir = e.WorkingDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	} else if err != nil {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: xerrors.Errorf("ExecNode %q: %w", e.Tool, err)}
	}
	if code != e.ExpectedExitCode {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: xerrors.Errorf(
			"ExecNode %q: exit code %d, want %d\nstdout: %s\nstderr: %s",
			e.Tool, code, e.ExpectedExitCode, stdout.String(), stderr.String())}
	}
	if e.OutputPath != "" {
		if err := pathutil.AtomicWriteFile(e.OutputPath, stdout.Bytes(), 0644); err != nil {
			return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
		}
		stamp, err := e.cap().Stamp(e.OutputPath)
		if err != nil {
			return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
		}
		n.Stamp = stamp
	} else {
		n.Stamp = uint64(time.Now().UnixNano())
	}
	return graph.Result{Outcome: graph.Ok}
}

func (e *ExecNode) cap() platform.Capability {
	if e.Cap == nil {
		return platform.Default
	}
	return e.Cap
}

func (e *ExecNode) Save(n *graph.Node, w *graph.Writer) error {
	w.String(e.Tool)
	writeStrings(w, e.Args)
	w.String(e.WorkingDir)
	w.String(e.OutputPath)
	w.Int32(int32(e.ExpectedExitCode))
	return nil
}

func (e *ExecNode) Load(n *graph.Node, r *graph.Reader) error {
	e.Tool = r.String()
	e.Args = readStrings(r)
	e.WorkingDir = r.String()
	e.OutputPath = r.String()
	e.ExpectedExitCode = int(r.Int32())
	e.Cap = platform.Default
	return nil
}
