package dist

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/xerrors"

	"github.com/forgebuild/forge/fingerprint"
)

// Worker runs the distribution protocol's server side (spec.md §4.6): it
// accepts connections, answers manifest queries, accepts toolchain files,
// and executes dispatched jobs with a configurable degree of parallelism.
// Grounded on the teacher's buildsrv (cmd/distri/builder.go): a per-RPC
// handler reading uploaded files into a base directory with path-traversal
// guards, here generalized to forge's own framing and reused for the
// toolchain/job split instead of distri's single package-build RPC.
type Worker struct {
	// ToolchainRoot is where synced toolchain files are materialized, one
	// subdirectory per toolchain id.
	ToolchainRoot string
	// Parallelism bounds concurrent job executions, standing in for the
	// original's worker-side scheduler thread count (§4.6: "The worker runs
	// its own scheduler... with a configurable degree of parallelism").
	// Jobs dispatched to a worker have no dependency edges among each
	// other (each is one already-preprocessed compile), so a bounded
	// semaphore does the same job as a full graph scheduler without
	// needing one.
	Parallelism int
	// ID identifies this worker in its connectionAck; defaults to the
	// listener's address if empty.
	ID string
	// Log receives human-readable progress lines; nil discards them.
	Log func(string)

	store *toolchainStore
	sem   chan struct{}
	once  sync.Once

	activeMu sync.Mutex
	active   int32
}

func (w *Worker) init() {
	w.once.Do(func() {
		if w.Parallelism < 1 {
			w.Parallelism = 1
		}
		w.store = newToolchainStore(w.ToolchainRoot)
		w.sem = make(chan struct{}, w.Parallelism)
	})
}

func (w *Worker) log(format string, args ...interface{}) {
	if w.Log != nil {
		w.Log(fmt.Sprintf(format, args...))
	}
}

// Serve accepts connections on ln until ctx is cancelled or Accept fails.
func (w *Worker) Serve(ctx context.Context, ln net.Listener) error {
	w.init()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go w.handleConn(ctx, conn)
	}
}

func (w *Worker) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	id := w.ID
	if id == "" {
		id = conn.LocalAddr().String()
	}
	ack := connectionAck{WorkerID: id, Capacity: int32(w.Parallelism)}
	if err := writeFrame(conn, kindConnectionAck, ack.encode()); err != nil {
		w.log("dist: worker: handshake: %v", err)
		return
	}

	br := bufio.NewReader(conn)
	for {
		k, payload, err := readFrame(br)
		if err != nil {
			if err != io.EOF {
				w.log("dist: worker: read frame: %v", err)
			}
			return
		}
		if err := w.dispatch(ctx, conn, k, payload); err != nil {
			w.log("dist: worker: %v", err)
			return
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, conn net.Conn, k kind, payload []byte) error {
	switch k {
	case kindRequestManifest:
		return w.handleRequestManifest(conn, payload)
	case kindFile:
		return w.handleFile(payload)
	case kindJob:
		return w.handleJob(ctx, conn, payload)
	case kindRequestJob:
		return w.handleServerStatus(conn)
	default:
		return xerrors.Errorf("dist: worker: unexpected message kind %d", k)
	}
}

func (w *Worker) handleServerStatus(conn net.Conn) error {
	w.activeMu.Lock()
	status := serverStatus{ActiveJobs: w.active, Capacity: int32(w.Parallelism)}
	w.activeMu.Unlock()
	return writeFrame(conn, kindServerStatus, status.encode())
}

func (w *Worker) handleRequestManifest(conn net.Conn, payload []byte) error {
	req, err := decodeRequestManifest(payload)
	if err != nil {
		return xerrors.Errorf("decode requestManifest: %w", err)
	}
	files, err := w.store.entry(req.ToolchainID).manifest()
	if err != nil {
		return err
	}
	resp := manifestMsg{ToolchainID: req.ToolchainID, Files: files}
	return writeFrame(conn, kindManifest, resp.encode())
}

func (w *Worker) handleFile(payload []byte) error {
	msg, err := decodeFileMsg(payload)
	if err != nil {
		return xerrors.Errorf("decode fileMsg: %w", err)
	}
	return w.store.entry(msg.ToolchainID).store(msg.RelPath, msg.Data)
}

// handleJob materializes the preprocessed source to an isolated temp
// directory, compiles it, and replies with the result. Per spec.md §9's
// "Temp-file discipline": "every worker gets an isolated temp directory...
// all transient files... are unlinked on scope exit."
func (w *Worker) handleJob(ctx context.Context, conn net.Conn, payload []byte) error {
	msg, err := decodeJobMsg(payload)
	if err != nil {
		return xerrors.Errorf("decode jobMsg: %w", err)
	}

	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.activeMu.Lock()
	w.active++
	w.activeMu.Unlock()
	defer func() {
		<-w.sem
		w.activeMu.Lock()
		w.active--
		w.activeMu.Unlock()
	}()

	result := w.runJob(ctx, msg)
	return writeFrame(conn, kindJobResult, result.encode())
}

func (w *Worker) runJob(ctx context.Context, msg jobMsg) jobResultMsg {
	tmpDir, err := os.MkdirTemp("", "forge-job-")
	if err != nil {
		return jobResultMsg{ReturnCode: -1, Stderr: err.Error()}
	}
	defer os.RemoveAll(tmpDir)

	preprocessed, err := fingerprint.Decompress(msg.Preprocessed)
	if err != nil {
		return jobResultMsg{ReturnCode: -1, Stderr: fmt.Sprintf("decompress preprocessed source: %v", err)}
	}

	base := filepath.Base(msg.SourceName)
	inputPath := filepath.Join(tmpDir, base)
	if err := os.WriteFile(inputPath, preprocessed, 0644); err != nil {
		return jobResultMsg{ReturnCode: -1, Stderr: fmt.Sprintf("materialize input: %v", err)}
	}
	outputPath := filepath.Join(tmpDir, base+".o")

	entry := w.store.entry(msg.ToolchainID)
	args := substituteTemplate(msg.CompilerArgs, inputPath, outputPath)
	exe := toolchainExecutable(entry.dir)

	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Dir = tmpDir
	cmd.Env = []string{
		"PATH=" + entry.dir,
		"TMP=" + tmpDir,
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	result := jobResultMsg{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ReturnCode = int32(exitErr.ExitCode())
		} else {
			result.ReturnCode = -1
			result.Stderr += "\n" + runErr.Error()
		}
		return result
	}

	obj, err := os.ReadFile(outputPath)
	if err != nil {
		result.ReturnCode = -1
		result.Stderr += "\n" + err.Error()
		return result
	}
	result.ObjectBytes = fingerprint.Compress(obj)
	result.Compressed = true
	return result
}

// toolchainExecutable finds the compiler executable synced into dir. The
// manifest itself does not distinguish "the" executable from auxiliary
// files, so forge looks for the first regular file directly under dir;
// toolchain sync always includes the compiler driver as one of its files.
func toolchainExecutable(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() {
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}

// substituteTemplate replaces the %1/%2 placeholders in a compiler
// argument template with the worker-local input/output paths, per
// client.go's templateArgs which produced the inverse substitution.
func substituteTemplate(args []string, input, output string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		a = strings.ReplaceAll(a, "%1", input)
		a = strings.ReplaceAll(a, "%2", output)
		out[i] = a
	}
	return out
}

// ListenAddr is a small convenience for cmd/forge-worker: it starts a TCP
// listener on addr (":0" picks an ephemeral port) and returns both the
// listener and the address string suitable for Advertise.
func ListenAddr(addr string) (net.Listener, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", err
	}
	return ln, ln.Addr().String(), nil
}
