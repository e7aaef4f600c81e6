package graph

import (
	"bufio"
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// DatabaseMagic and DatabaseVersion identify the binary database file
// format (§6 "Database file... Header: magic + version word; mismatched
// version triggers a warning and a full reparse"). Bumping DatabaseVersion
// is the only sanctioned way to change the on-disk layout (§9 open
// question: "bumping the numeric version must be treated as a clean
// rebuild").
const (
	DatabaseMagic   uint32 = 0x46524247 // "FRBG"
	DatabaseVersion uint32 = 1
)

// Writer is a small buffered binary encoder used by both the graph's own
// header/footer and every Kind.Save implementation, in the style of the
// teacher's squashfs writer (internal/squashfs/writer.go): a bufio.Writer
// plus narrow fixed-width helpers, no reflection.
type Writer struct {
	w   *bufio.Writer
	err error
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: bufio.NewWriter(w)} }

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) Uint32(v uint32) {
	if w.err != nil {
		return
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	if _, err := w.w.Write(b[:]); err != nil {
		w.fail(err)
	}
}

func (w *Writer) Uint64(v uint64) {
	if w.err != nil {
		return
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	if _, err := w.w.Write(b[:]); err != nil {
		w.fail(err)
	}
}

func (w *Writer) Int32(v int32) { w.Uint32(uint32(v)) }
func (w *Writer) Int64(v int64) { w.Uint64(uint64(v)) }
func (w *Writer) Bool(v bool) {
	if v {
		w.Uint32(1)
	} else {
		w.Uint32(0)
	}
}

func (w *Writer) String(s string) {
	w.Uint32(uint32(len(s)))
	if w.err != nil {
		return
	}
	if _, err := w.w.WriteString(s); err != nil {
		w.fail(err)
	}
}

func (w *Writer) Bytes(b []byte) {
	w.Uint32(uint32(len(b)))
	if w.err != nil {
		return
	}
	if _, err := w.w.Write(b); err != nil {
		w.fail(err)
	}
}

func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

// Reader is Writer's counterpart.
type Reader struct {
	r   *bufio.Reader
	err error
}

func NewReader(r io.Reader) *Reader { return &Reader{r: bufio.NewReader(r)} }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) Err() error { return r.err }

func (r *Reader) Uint32() uint32 {
	if r.err != nil {
		return 0
	}
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		r.fail(err)
		return 0
	}
	return binary.LittleEndian.Uint32(b[:])
}

func (r *Reader) Uint64() uint64 {
	if r.err != nil {
		return 0
	}
	var b [8]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		r.fail(err)
		return 0
	}
	return binary.LittleEndian.Uint64(b[:])
}

func (r *Reader) Int32() int32 { return int32(r.Uint32()) }
func (r *Reader) Int64() int64 { return int64(r.Uint64()) }
func (r *Reader) Bool() bool   { return r.Uint32() != 0 }

func (r *Reader) String() string {
	n := r.Uint32()
	if r.err != nil || n == 0 {
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		r.fail(err)
		return ""
	}
	return string(b)
}

func (r *Reader) Bytes() []byte {
	n := r.Uint32()
	if r.err != nil || n == 0 {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		r.fail(err)
		return nil
	}
	return b
}

// KindRegistry maps a kind's KindName to a zero-value constructor, so Load
// can reconstruct the right concrete Kind before calling its Load method.
// graph/nodes registers its kinds here in an init function, keeping this
// package ignorant of concrete node types (§9: replace reflection with a
// small per-kind table).
var KindRegistry = map[string]func() Kind{}

// Save writes the full database file: header, then every node in
// reverse-topological order with its common header fields and kind tag,
// followed by the kind's own Save payload.
func (g *Graph) Save(w io.Writer) error {
	order, err := g.TopoOrder()
	if err != nil {
		return xerrors.Errorf("graph: save: %w", err)
	}
	bw := NewWriter(w)
	bw.Uint32(DatabaseMagic)
	bw.Uint32(DatabaseVersion)
	bw.Uint32(uint32(len(order)))
	for _, idx := range order {
		n := g.Node(idx)
		bw.Int32(int32(n.Index))
		bw.String(n.Name)
		bw.String(n.Kind.KindName())
		bw.Uint64(n.Stamp)
		bw.Int64(n.LastBuildDuration)
		bw.Uint32(uint32(n.State))
		writeIndexSlice(bw, n.PreBuild)
		writeEdgeSlice(bw, n.Static)
		writeEdgeSlice(bw, n.Dynamic)
		if err := n.Kind.Save(n, bw); err != nil {
			return xerrors.Errorf("graph: save node %q: %w", n.Name, err)
		}
	}
	return bw.Flush()
}

func writeIndexSlice(w *Writer, s []NodeIndex) {
	w.Uint32(uint32(len(s)))
	for _, idx := range s {
		w.Int32(int32(idx))
	}
}

func writeEdgeSlice(w *Writer, s []Edge) {
	w.Uint32(uint32(len(s)))
	for _, e := range s {
		w.Int32(int32(e.To))
		w.Bool(e.Weak)
	}
}

// Load reconstructs a graph previously written by Save. A mismatched magic
// or version returns an error that callers should treat as "do a full
// reparse instead", per §6.
func Load(wd string, r io.Reader) (*Graph, error) {
	br := NewReader(r)
	magic := br.Uint32()
	version := br.Uint32()
	if br.Err() != nil {
		return nil, xerrors.Errorf("graph: load: %w", br.Err())
	}
	if magic != DatabaseMagic {
		return nil, xerrors.Errorf("graph: load: bad magic %#x, want %#x", magic, DatabaseMagic)
	}
	if version != DatabaseVersion {
		return nil, xerrors.Errorf("graph: load: database version %d, want %d (treat as stale, reparse)", version, DatabaseVersion)
	}
	count := br.Uint32()
	g := New(wd)
	g.nodes = make([]*Node, count)
	// Reconstruct common header fields plus kind-specific payload, and add
	// each node to its name bucket as it is read. Edges reference indices
	// directly, so nothing needs resolving after the loop.
	for i := uint32(0); i < count; i++ {
		idx := NodeIndex(br.Int32())
		name := br.String()
		kindName := br.String()
		stamp := br.Uint64()
		lastDur := br.Int64()
		state := BuildState(br.Uint32())
		preBuild := readIndexSlice(br)
		static := readEdgeSlice(br)
		dynamic := readEdgeSlice(br)

		ctor, ok := KindRegistry[kindName]
		if !ok {
			return nil, xerrors.Errorf("graph: load: unknown node kind %q", kindName)
		}
		kind := ctor()
		n := &Node{
			Index:             idx,
			Name:              name,
			Kind:              kind,
			Stamp:             stamp,
			LastBuildDuration: lastDur,
			State:             state,
			PreBuild:          preBuild,
			Static:            static,
			Dynamic:           dynamic,
		}
		if err := kind.Load(n, br); err != nil {
			return nil, xerrors.Errorf("graph: load node %q: %w", name, err)
		}
		if br.Err() != nil {
			return nil, xerrors.Errorf("graph: load: %w", br.Err())
		}
		g.nodes[idx] = n
		key := g.bucketKey(name)
		g.buckets[key] = append(g.buckets[key], idx)
	}
	return g, nil
}

func readIndexSlice(r *Reader) []NodeIndex {
	n := r.Uint32()
	if n == 0 {
		return nil
	}
	out := make([]NodeIndex, n)
	for i := range out {
		out[i] = NodeIndex(r.Int32())
	}
	return out
}

func readEdgeSlice(r *Reader) []Edge {
	n := r.Uint32()
	if n == 0 {
		return nil
	}
	out := make([]Edge, n)
	for i := range out {
		out[i] = Edge{To: NodeIndex(r.Int32()), Weak: r.Bool()}
	}
	return out
}
