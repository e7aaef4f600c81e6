package dist

import "github.com/forgebuild/forge/graph"

// connectionAck is the first message a worker sends after accepting a
// connection, per spec.md §6.
type connectionAck struct {
	WorkerID string
	Capacity int32
}

func (m connectionAck) encode() []byte {
	return encode(func(w *graph.Writer) {
		w.String(m.WorkerID)
		w.Int32(m.Capacity)
	})
}

func decodeConnectionAck(payload []byte) (connectionAck, error) {
	var m connectionAck
	err := decode(payload, func(r *graph.Reader) {
		m.WorkerID = r.String()
		m.Capacity = r.Int32()
	})
	return m, err
}

// serverStatus reports a worker's current load, used by a Client to pick
// among several workers.
type serverStatus struct {
	ActiveJobs int32
	Capacity   int32
}

func (m serverStatus) encode() []byte {
	return encode(func(w *graph.Writer) {
		w.Int32(m.ActiveJobs)
		w.Int32(m.Capacity)
	})
}

func decodeServerStatus(payload []byte) (serverStatus, error) {
	var m serverStatus
	err := decode(payload, func(r *graph.Reader) {
		m.ActiveJobs = r.Int32()
		m.Capacity = r.Int32()
	})
	return m, err
}

// manifestFile is one entry of a toolchain manifest: a file relative to the
// toolchain root, its 32-bit content hash, mtime and size, per spec.md
// §4.6's "for every file, {relative-path, mtime, 32-bit content hash,
// size}." This mirrors graph/nodes.ToolchainFile exactly; kept as its own
// type so this package never needs graph/nodes for wire encoding.
type manifestFile struct {
	RelPath     string
	ContentHash uint32
	ModTime     int64
	Size        int64
}

// requestManifest asks the worker which files it already has for a
// toolchain id.
type requestManifest struct {
	ToolchainID uint64
}

func (m requestManifest) encode() []byte {
	return encode(func(w *graph.Writer) { w.Uint64(m.ToolchainID) })
}

func decodeRequestManifest(payload []byte) (requestManifest, error) {
	var m requestManifest
	err := decode(payload, func(r *graph.Reader) { m.ToolchainID = r.Uint64() })
	return m, err
}

// manifestMsg is the worker's answer to requestManifest: the files it
// already holds for that toolchain.
type manifestMsg struct {
	ToolchainID uint64
	Files       []manifestFile
}

func (m manifestMsg) encode() []byte {
	return encode(func(w *graph.Writer) {
		w.Uint64(m.ToolchainID)
		w.Uint32(uint32(len(m.Files)))
		for _, f := range m.Files {
			w.String(f.RelPath)
			w.Uint32(f.ContentHash)
			w.Int64(f.ModTime)
			w.Int64(f.Size)
		}
	})
}

func decodeManifestMsg(payload []byte) (manifestMsg, error) {
	var m manifestMsg
	err := decode(payload, func(r *graph.Reader) {
		m.ToolchainID = r.Uint64()
		n := r.Uint32()
		m.Files = make([]manifestFile, n)
		for i := range m.Files {
			m.Files[i] = manifestFile{
				RelPath:     r.String(),
				ContentHash: r.Uint32(),
				ModTime:     r.Int64(),
				Size:        r.Int64(),
			}
		}
	})
	return m, err
}

// fileMsg carries one toolchain file's content to the worker, per spec.md
// §4.6's manifest synchronization.
type fileMsg struct {
	ToolchainID uint64
	RelPath     string
	Data        []byte
}

func (m fileMsg) encode() []byte {
	return encode(func(w *graph.Writer) {
		w.Uint64(m.ToolchainID)
		w.String(m.RelPath)
		w.Bytes(m.Data)
	})
}

func decodeFileMsg(payload []byte) (fileMsg, error) {
	var m fileMsg
	err := decode(payload, func(r *graph.Reader) {
		m.ToolchainID = r.Uint64()
		m.RelPath = r.String()
		m.Data = r.Bytes()
	})
	return m, err
}

// jobMsg is a dispatched compile job, per spec.md §4.6's "Job dispatch":
// "{node-name, source-name, flags, compiler-args, compressed-preprocessed-
// data, toolchain-id}". CompilerArgs is a %1/%2 template rather than the
// client's own expanded argument list, since the worker's temp paths differ
// from the client's — see client.go's templateArgs.
type jobMsg struct {
	NodeName     string
	SourceName   string
	CompilerArgs []string
	Preprocessed []byte // already compressed by the caller
	ToolchainID  uint64
}

func (m jobMsg) encode() []byte {
	return encode(func(w *graph.Writer) {
		w.String(m.NodeName)
		w.String(m.SourceName)
		w.Uint32(uint32(len(m.CompilerArgs)))
		for _, a := range m.CompilerArgs {
			w.String(a)
		}
		w.Bytes(m.Preprocessed)
		w.Uint64(m.ToolchainID)
	})
}

func decodeJobMsg(payload []byte) (jobMsg, error) {
	var m jobMsg
	err := decode(payload, func(r *graph.Reader) {
		m.NodeName = r.String()
		m.SourceName = r.String()
		n := r.Uint32()
		m.CompilerArgs = make([]string, n)
		for i := range m.CompilerArgs {
			m.CompilerArgs[i] = r.String()
		}
		m.Preprocessed = r.Bytes()
		m.ToolchainID = r.Uint64()
	})
	return m, err
}

// jobResultMsg is the worker's reply: either a successful object (and
// optional PDB), or a nonzero return code with captured output, per
// spec.md §4.6.
type jobResultMsg struct {
	ReturnCode  int32
	Stdout      string
	Stderr      string
	ObjectBytes []byte // compressed when Compressed is true
	PDBBytes    []byte
	Compressed  bool
}

func (m jobResultMsg) encode() []byte {
	return encode(func(w *graph.Writer) {
		w.Int32(m.ReturnCode)
		w.String(m.Stdout)
		w.String(m.Stderr)
		w.Bytes(m.ObjectBytes)
		w.Bytes(m.PDBBytes)
		w.Bool(m.Compressed)
	})
}

func decodeJobResultMsg(payload []byte) (jobResultMsg, error) {
	var m jobResultMsg
	err := decode(payload, func(r *graph.Reader) {
		m.ReturnCode = r.Int32()
		m.Stdout = r.String()
		m.Stderr = r.String()
		m.ObjectBytes = r.Bytes()
		m.PDBBytes = r.Bytes()
		m.Compressed = r.Bool()
	})
	return m, err
}
