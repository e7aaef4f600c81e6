package dist

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/xerrors"

	"github.com/forgebuild/forge/fingerprint"
	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/graph/nodes"
	"github.com/forgebuild/forge/pathutil"
	"github.com/forgebuild/forge/platform"
)

// toolchainSource is what Client needs to sync a toolchain's files to a
// worker: the local root they live under, plus the manifest entries
// (matching graph/nodes.ToolchainFile).
type toolchainSource struct {
	rootDir string
	files   []nodes.ToolchainFile
}

// Client dispatches distributable jobs to remote workers, implementing
// both graph/nodes.Distributor (sequential try-remote-then-fallback, used
// directly by ObjectNode) and sched.Racer (concurrent local/remote racing,
// used by the scheduler). cmd/forge wires it as one or the other depending
// on whether racing is enabled — never both for the same node, since that
// would dispatch the same job remotely twice.
type Client struct {
	// Graph resolves a racing node's CompilerNode; required only for
	// TryRemote, not for Dispatch (which already receives a built DistJob).
	Graph *graph.Graph

	mu         sync.Mutex
	workers    []string
	next       int
	toolchains map[uint64]toolchainSource
}

// NewClient returns a Client that dispatches to the given worker
// addresses, round-robin.
func NewClient(workers []string) *Client {
	return &Client{workers: append([]string(nil), workers...), toolchains: map[uint64]toolchainSource{}}
}

// SetWorkers replaces the worker address list, e.g. after a fresh
// Discover call.
func (c *Client) SetWorkers(workers []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workers = append([]string(nil), workers...)
}

// RegisterToolchain records where a toolchain's files live locally, so
// Dispatch can sync them to a worker on demand. Called once per
// CompilerNode at startup.
func (c *Client) RegisterToolchain(id uint64, rootDir string, files []nodes.ToolchainFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolchains[id] = toolchainSource{rootDir: rootDir, files: files}
}

func (c *Client) pickWorker() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.workers) == 0 {
		return "", false
	}
	addr := c.workers[c.next%len(c.workers)]
	c.next++
	return addr, true
}

// Dispatch satisfies graph/nodes.Distributor: send job to a worker, ensure
// its toolchain is synced, and return the compiled result.
func (c *Client) Dispatch(ctx context.Context, job nodes.DistJob) (nodes.DistResult, error) {
	addr, ok := c.pickWorker()
	if !ok {
		return nodes.DistResult{}, xerrors.Errorf("dist: client: no workers configured")
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nodes.DistResult{}, xerrors.Errorf("dist: client: dial %s: %w", addr, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	br := bufio.NewReader(conn)
	if _, _, err := readFrame(br); err != nil { // connectionAck
		return nodes.DistResult{}, xerrors.Errorf("dist: client: handshake with %s: %w", addr, err)
	}

	if err := c.ensureToolchain(conn, br, job.ToolchainID); err != nil {
		return nodes.DistResult{}, xerrors.Errorf("dist: client: sync toolchain to %s: %w", addr, err)
	}

	wireJob := jobMsg{
		NodeName:     job.NodeName,
		SourceName:   job.SourceName,
		CompilerArgs: templateArgs(job.CompilerArgs, job.SourceName, job.NodeName),
		Preprocessed: job.CompressedPreprocessed,
		ToolchainID:  job.ToolchainID,
	}
	if err := writeFrame(conn, kindJob, wireJob.encode()); err != nil {
		return nodes.DistResult{}, xerrors.Errorf("dist: client: send job: %w", err)
	}

	k, payload, err := readFrame(br)
	if err != nil {
		return nodes.DistResult{}, xerrors.Errorf("dist: client: read job result: %w", err)
	}
	if k != kindJobResult {
		return nodes.DistResult{}, xerrors.Errorf("dist: client: unexpected reply kind %d", k)
	}
	resMsg, err := decodeJobResultMsg(payload)
	if err != nil {
		return nodes.DistResult{}, xerrors.Errorf("dist: client: decode job result: %w", err)
	}

	objBytes := resMsg.ObjectBytes
	if resMsg.Compressed && len(objBytes) > 0 {
		objBytes, err = fingerprint.Decompress(objBytes)
		if err != nil {
			return nodes.DistResult{}, xerrors.Errorf("dist: client: decompress object: %w", err)
		}
	}
	return nodes.DistResult{
		ObjectBytes: objBytes,
		PDBBytes:    resMsg.PDBBytes,
		ReturnCode:  int(resMsg.ReturnCode),
		Stdout:      resMsg.Stdout,
		Stderr:      resMsg.Stderr,
	}, nil
}

// ensureToolchain performs spec.md §4.6's "Toolchain synchronization":
// request what the worker already has, then push whatever is missing.
func (c *Client) ensureToolchain(conn net.Conn, br *bufio.Reader, id uint64) error {
	c.mu.Lock()
	src, ok := c.toolchains[id]
	c.mu.Unlock()
	if !ok {
		return nil // no local manifest registered; assume the worker already matches
	}

	want := make([]manifestFile, len(src.files))
	for i, f := range src.files {
		want[i] = manifestFile{RelPath: f.RelPath, ContentHash: f.ContentHash, ModTime: f.ModTime, Size: f.Size}
	}

	req := requestManifest{ToolchainID: id}
	if err := writeFrame(conn, kindRequestManifest, req.encode()); err != nil {
		return err
	}
	k, payload, err := readFrame(br)
	if err != nil {
		return err
	}
	if k != kindManifest {
		return xerrors.Errorf("dist: client: expected manifest reply, got kind %d", k)
	}
	have, err := decodeManifestMsg(payload)
	if err != nil {
		return err
	}

	for _, f := range missing(want, have.Files) {
		data, err := os.ReadFile(filepath.Join(src.rootDir, f.RelPath))
		if err != nil {
			return xerrors.Errorf("dist: client: read toolchain file %q: %w", f.RelPath, err)
		}
		msg := fileMsg{ToolchainID: id, RelPath: f.RelPath, Data: data}
		if err := writeFrame(conn, kindFile, msg.encode()); err != nil {
			return xerrors.Errorf("dist: client: send toolchain file %q: %w", f.RelPath, err)
		}
	}
	return nil
}

// templateArgs turns an already-expanded compiler argument list back into
// a %1/%2 template by substituting the literal input/output paths: the
// worker materializes the job to its own temp paths, which never match the
// client's, so the args it runs with must reference placeholders instead.
func templateArgs(args []string, input, output string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		a = strings.ReplaceAll(a, input, "%1")
		a = strings.ReplaceAll(a, output, "%2")
		out[i] = a
	}
	return out
}

// distJobSource is implemented by node kinds that can produce a DistJob on
// demand without dispatching it themselves, letting TryRemote race a
// remote attempt concurrently with the kind's own local DoBuild. ObjectNode
// satisfies this.
type distJobSource interface {
	DistJobFor(g *graph.Graph) (nodes.DistJob, bool, error)
}

// TryRemote satisfies sched.Racer: it builds a DistJob for n (if its kind
// supports one), dispatches it, and on success writes the object directly
// to disk and stamps n, the same way ObjectNode.DoBuild would for a local
// compile. A nil return means n is not eligible for distribution and the
// scheduler should just run it locally.
func (c *Client) TryRemote(ctx context.Context, n *graph.Node) <-chan graph.Result {
	src, ok := n.Kind.(distJobSource)
	if !ok || c.Graph == nil {
		return nil
	}
	job, ok, err := src.DistJobFor(c.Graph)
	if err != nil {
		ch := make(chan graph.Result, 1)
		ch <- graph.Result{Outcome: graph.OutcomeFailed, Err: err}
		return ch
	}
	if !ok {
		return nil
	}

	ch := make(chan graph.Result, 1)
	go func() {
		res, err := c.Dispatch(ctx, job)
		if err != nil {
			ch <- graph.Result{Outcome: graph.OutcomeFailed, Err: err}
			return
		}
		if res.ReturnCode != 0 {
			ch <- graph.Result{Outcome: graph.OutcomeFailed, Err: xerrors.Errorf(
				"dist: remote compile of %s failed (exit %d): %s", job.SourceName, res.ReturnCode, res.Stderr)}
			return
		}
		if err := pathutil.AtomicWriteFile(job.NodeName, res.ObjectBytes, 0644); err != nil {
			ch <- graph.Result{Outcome: graph.OutcomeFailed, Err: err}
			return
		}
		stamp, err := platform.Default.Stamp(job.NodeName)
		if err != nil {
			ch <- graph.Result{Outcome: graph.OutcomeFailed, Err: err}
			return
		}
		n.Stamp = stamp
		ch <- graph.Result{Outcome: graph.Ok}
	}()
	return ch
}
