package nodes

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/forgebuild/forge/fingerprint"
	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/pathutil"
	"github.com/forgebuild/forge/platform"
	"golang.org/x/xerrors"
)

// CompilerFamily identifies the compiler driver's command-line dialect,
// detected from its path per §4.3 step 1 ("Determine flags from the
// compiler path").
type CompilerFamily int

const (
	CompilerUnknown CompilerFamily = iota
	CompilerMSVC
	CompilerClang
	CompilerGCC
)

func DetectCompilerFamily(path string) CompilerFamily {
	base := strings.ToLower(path)
	switch {
	case strings.HasSuffix(base, "cl.exe") || strings.HasSuffix(base, "/cl") || base == "cl":
		return CompilerMSVC
	case strings.Contains(base, "clang"):
		return CompilerClang
	case strings.Contains(base, "gcc") || strings.Contains(base, "g++"):
		return CompilerGCC
	default:
		return CompilerUnknown
	}
}

// Cache is the subset of the compile-result cache an ObjectNode needs. The
// cache package's FilesystemCache and PluginCache satisfy this implicitly; graph/nodes never
// imports cache, keeping this a seam rather than a hard dependency.
type Cache interface {
	Retrieve(a fingerprint.Hash128, b uint32, c uint64, destPath string) (bool, error)
	Publish(a fingerprint.Hash128, b uint32, c uint64, srcPath string) error
}

// LightCache fingerprints a translation unit's transitive includes without
// invoking the preprocessor. The second return is false when the light
// cache cannot handle the file (a macroized include was found), signaling
// the caller to fall back to the real preprocessor.
type LightCache interface {
	Fingerprint(path string, includeDirs []string) (uint64, bool, error)
}

// Distributor dispatches a distributable job to a remote worker.
type Distributor interface {
	Dispatch(ctx context.Context, job DistJob) (DistResult, error)
}

// DistJob is what an ObjectNode hands to a Distributor: already-preprocessed
// and compressed source plus enough to reproduce the compile remotely.
type DistJob struct {
	NodeName               string
	SourceName             string
	CompilerArgs           []string
	CompressedPreprocessed []byte
	ToolchainID            uint64
}

// DistResult is what comes back: either a successful object (and optional
// PDB) or a tool failure to report.
type DistResult struct {
	ObjectBytes []byte
	PDBBytes    []byte
	ReturnCode  int
	Stdout      string
	Stderr      string
}

// ObjectNode compiles one input file with a CompilerNode, following §4.3's
// flow: detect flags, preprocess (or MSVC direct-compile-with-/showIncludes),
// consult the cache, distribute or compile locally on miss, publish on
// success.
type ObjectNode struct {
	Input       graph.NodeIndex // a FileNode
	InputPath   string
	Compiler    graph.NodeIndex // a CompilerNode
	CompilerExe string
	Args        []string // compiler argument template, %1=input, %2=output
	OutputPath  string
	IncludeDirs []string

	Distributable bool
	Cacheable     bool

	// CreatesPCH marks an object node that produces a precompiled header
	// others consume. The scheduler raises it to high priority so it
	// unblocks the most downstream work (spec.md §4.5 "Ordering").
	CreatesPCH bool

	Cache       Cache
	LightCache  LightCache
	Distributor Distributor
	Cap         platform.Capability

	family    CompilerFamily
	lastStamp uint64
}

func init() {
	graph.KindRegistry["ObjectNode"] = func() graph.Kind { return &ObjectNode{Cap: platform.Default} }
}

func (o *ObjectNode) KindName() string { return "ObjectNode" }
func (o *ObjectNode) IsFile() bool     { return true }

// HighPriority satisfies sched's optional priority-boost interface.
func (o *ObjectNode) HighPriority() bool { return o.CreatesPCH }

// CompileCommand satisfies graph.ObjectNodeInfo, used by
// graph.WriteCompilationDatabase.
func (o *ObjectNode) CompileCommand() (dir, file, output string, args []string) {
	return "", o.InputPath, o.OutputPath, o.expandArgs(o.InputPath, o.OutputPath)
}

func (o *ObjectNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	if n.Stamp == 0 {
		return true
	}
	stamp, err := o.cap().Stamp(o.OutputPath)
	if err != nil {
		return true
	}
	return stamp != n.Stamp
}

func (o *ObjectNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error {
	if o.LightCache == nil {
		return nil
	}
	// A false second return means a macroized include was found; that is
	// not an error, it just means DoBuild falls back to the real
	// preprocessor instead of trusting this fingerprint.
	_, _, err := o.LightCache.Fingerprint(o.InputPath, o.IncludeDirs)
	if err != nil {
		return xerrors.Errorf("ObjectNode: light-cache fingerprint: %w", err)
	}
	return nil
}

func (o *ObjectNode) argString() string { return strings.Join(o.Args, " ") }

func (o *ObjectNode) expandArgs(input, output string) []string {
	out := make([]string, len(o.Args))
	for i, a := range o.Args {
		a = strings.ReplaceAll(a, "%1", input)
		a = strings.ReplaceAll(a, "%2", output)
		out[i] = a
	}
	return out
}

func (o *ObjectNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	o.family = DetectCompilerFamily(o.CompilerExe)
	var compiler *CompilerNode
	if o.Compiler != graph.InvalidIndex {
		compiler, _ = g.Node(o.Compiler).Kind.(*CompilerNode)
	}

	if !o.Cacheable {
		return o.finish(n, o.compileDirect())
	}

	preprocessed, err := o.preprocess()
	if err != nil {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
	}
	a := fingerprint.Hash128Bytes(preprocessed)
	b := fingerprint.Hash32([]byte(o.argString()))
	var c uint64
	if compiler != nil {
		c = compiler.ToolchainID
	}

	if o.Cache != nil {
		if hit, err := o.Cache.Retrieve(a, b, c, o.OutputPath); err == nil && hit {
			stamp, serr := o.cap().Stamp(o.OutputPath)
			if serr != nil {
				return graph.Result{Outcome: graph.OutcomeFailed, Err: serr}
			}
			n.Stamp = stamp
			return graph.Result{Outcome: graph.OkFromCache}
		}
	}

	res := o.compileOrDistribute(preprocessed, c)
	if res.Outcome == graph.Ok {
		n.Stamp = o.lastStamp
		if o.Cache != nil {
			// Cache publish errors are non-fatal per §7 ("logged; falls
			// back to normal compile"): the object file is already correct
			// on disk regardless of whether it lands in the cache.
			_ = o.Cache.Publish(a, b, c, o.OutputPath)
		}
	}
	return res
}

func (o *ObjectNode) finish(n *graph.Node, res graph.Result) graph.Result {
	if res.Outcome == graph.Ok {
		n.Stamp = o.lastStamp
	}
	return res
}

func (o *ObjectNode) preprocess() ([]byte, error) {
	cmd := exec.CommandContext(context.Background(), o.compilerPath(), o.preprocessArgs()...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, xerrors.Errorf("ObjectNode: preprocess %s: %w: %s", o.InputPath, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (o *ObjectNode) compilerPath() string {
	if o.CompilerExe != "" {
		return o.CompilerExe
	}
	return "cc"
}

func (o *ObjectNode) preprocessArgs() []string {
	args := o.expandArgs(o.InputPath, o.OutputPath)
	if o.family == CompilerMSVC {
		return append(args, "/E", "/P")
	}
	return append(args, "-E")
}

// DistJobFor builds a DistJob for n without dispatching it, letting the
// scheduler's racing path (sched.Racer) dispatch remotely and run locally
// concurrently rather than sequentially falling back the way DoBuild does
// through compileOrDistribute. The second return is false when o is not
// distributable at all.
func (o *ObjectNode) DistJobFor(g *graph.Graph) (DistJob, bool, error) {
	if !o.Distributable {
		return DistJob{}, false, nil
	}
	o.family = DetectCompilerFamily(o.CompilerExe)
	preprocessed, err := o.preprocess()
	if err != nil {
		return DistJob{}, false, err
	}
	var compiler *CompilerNode
	if o.Compiler != graph.InvalidIndex {
		compiler, _ = g.Node(o.Compiler).Kind.(*CompilerNode)
	}
	var toolchainID uint64
	if compiler != nil {
		toolchainID = compiler.ToolchainID
	}
	return DistJob{
		NodeName:               o.OutputPath,
		SourceName:             o.InputPath,
		CompressedPreprocessed: fingerprint.Compress(preprocessed),
		CompilerArgs:           o.expandArgs(o.InputPath, o.OutputPath),
		ToolchainID:            toolchainID,
	}, true, nil
}

func (o *ObjectNode) compileOrDistribute(preprocessed []byte, toolchainID uint64) graph.Result {
	if o.Distributable && o.Distributor != nil {
		job := DistJob{
			NodeName:               o.OutputPath,
			SourceName:             o.InputPath,
			CompressedPreprocessed: fingerprint.Compress(preprocessed),
			CompilerArgs:           o.expandArgs(o.InputPath, o.OutputPath),
			ToolchainID:            toolchainID,
		}
		res, err := o.Distributor.Dispatch(context.Background(), job)
		if err == nil && res.ReturnCode == 0 {
			if werr := pathutil.AtomicWriteFile(o.OutputPath, res.ObjectBytes, 0644); werr != nil {
				return graph.Result{Outcome: graph.OutcomeFailed, Err: werr}
			}
			stamp, serr := o.cap().Stamp(o.OutputPath)
			if serr != nil {
				return graph.Result{Outcome: graph.OutcomeFailed, Err: serr}
			}
			o.lastStampSet(stamp)
			return graph.Result{Outcome: graph.Ok}
		}
		// Distribution failed or lost the race; fall through to a local
		// compile (§4.5's racing semantics leave local execution available).
	}
	return o.compileDirect()
}

func (o *ObjectNode) compileDirect() graph.Result {
	cmd := exec.CommandContext(context.Background(), o.compilerPath(), o.expandArgs(o.InputPath, o.OutputPath)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: xerrors.Errorf(
			"ObjectNode: compile %s: %w\nstdout: %s\nstderr: %s", o.InputPath, err, stdout.String(), stderr.String())}
	}
	stamp, err := o.cap().Stamp(o.OutputPath)
	if err != nil {
		return graph.Result{Outcome: graph.OutcomeFailed, Err: err}
	}
	o.lastStampSet(stamp)
	return graph.Result{Outcome: graph.Ok}
}

func (o *ObjectNode) lastStampSet(stamp uint64) { o.lastStamp = stamp }

func (o *ObjectNode) cap() platform.Capability {
	if o.Cap == nil {
		return platform.Default
	}
	return o.Cap
}

func (o *ObjectNode) Save(n *graph.Node, w *graph.Writer) error {
	w.Int32(int32(o.Input))
	w.String(o.InputPath)
	w.Int32(int32(o.Compiler))
	w.String(o.CompilerExe)
	writeStrings(w, o.Args)
	w.String(o.OutputPath)
	writeStrings(w, o.IncludeDirs)
	w.Bool(o.Distributable)
	w.Bool(o.Cacheable)
	w.Bool(o.CreatesPCH)
	return nil
}

func (o *ObjectNode) Load(n *graph.Node, r *graph.Reader) error {
	o.Input = graph.NodeIndex(r.Int32())
	o.InputPath = r.String()
	o.Compiler = graph.NodeIndex(r.Int32())
	o.CompilerExe = r.String()
	o.Args = readStrings(r)
	o.OutputPath = r.String()
	o.IncludeDirs = readStrings(r)
	o.Distributable = r.Bool()
	o.Cacheable = r.Bool()
	o.CreatesPCH = r.Bool()
	o.Cap = platform.Default
	return nil
}
