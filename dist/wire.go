package dist

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"

	"github.com/forgebuild/forge/graph"
)

// kind identifies a wire message, per spec.md §6's "Message kinds:
// ConnectionAck, ServerStatus, RequestJob, Job, JobResult, RequestManifest,
// Manifest, RequestFile, File."
type kind byte

const (
	kindConnectionAck kind = iota + 1
	kindServerStatus
	kindRequestJob
	kindJob
	kindJobResult
	kindRequestManifest
	kindManifest
	kindRequestFile
	kindFile
)

// maxFrame bounds a single message's payload size, guarding against a
// corrupt or hostile length prefix driving an unbounded allocation.
const maxFrame = 512 * 1024 * 1024

// writeFrame writes one length-prefixed message: a 4-byte little-endian
// payload length, a 1-byte kind tag, then the payload itself. Per spec.md
// §6, "Payload framing within a Job/JobResult uses 4-byte little-endian
// length prefixes" — the same discipline applies to the outer frame.
func writeFrame(w io.Writer, k kind, payload []byte) error {
	var header [5]byte
	binary.LittleEndian.PutUint32(header[:4], uint32(len(payload)))
	header[4] = byte(k)
	if _, err := w.Write(header[:]); err != nil {
		return xerrors.Errorf("dist: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return xerrors.Errorf("dist: write frame payload: %w", err)
	}
	return nil
}

// readFrame reads one frame written by writeFrame.
func readFrame(r *bufio.Reader) (kind, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err // propagate io.EOF as-is, callers check for it
	}
	n := binary.LittleEndian.Uint32(header[:4])
	if n > maxFrame {
		return 0, nil, xerrors.Errorf("dist: frame of %d bytes exceeds max %d", n, maxFrame)
	}
	k := kind(header[4])
	if n == 0 {
		return k, nil, nil
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, xerrors.Errorf("dist: read frame payload: %w", err)
	}
	return k, payload, nil
}

// encode runs fn against a graph.Writer over an in-memory buffer and
// returns the encoded bytes, reusing the database file's binary encoder as
// the wire protocol's codec instead of inventing a second one.
func encode(fn func(w *graph.Writer)) []byte {
	var buf bytes.Buffer
	w := graph.NewWriter(&buf)
	fn(w)
	// buf is a bytes.Buffer: Flush can only fail propagating a write error,
	// which cannot happen against an in-memory buffer.
	_ = w.Flush()
	return buf.Bytes()
}

// decode runs fn against a graph.Reader over payload and returns any
// decode error (a short or malformed payload).
func decode(payload []byte, fn func(r *graph.Reader)) error {
	r := graph.NewReader(bytes.NewReader(payload))
	fn(r)
	return r.Err()
}
