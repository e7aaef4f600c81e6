package fingerprint

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Compression is a block codec with a self-describing header, used for
// cache payloads (spec.md §4.4 "Retrieve") and distribution-protocol
// payloads (spec.md §4.6 "the client compresses the preprocessed text").
// zstd's frame format already carries a magic number and a content-size
// field, satisfying the "self-describing header" requirement without forge
// needing to invent its own framing on top.

var encoderPool = sync.Pool{
	New: func() interface{} {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(err) // zstd.NewWriter(nil, ...) cannot fail with a static level
		}
		return enc
	},
}

var decoderPool = sync.Pool{
	New: func() interface{} {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(err)
		}
		return dec
	},
}

// Compress block-compresses src, returning a self-framed payload suitable
// for Decompress.
func Compress(src []byte) []byte {
	enc := encoderPool.Get().(*zstd.Encoder)
	defer encoderPool.Put(enc)
	var buf bytes.Buffer
	enc.Reset(&buf)
	if _, err := enc.Write(src); err != nil {
		panic(err) // writes to a bytes.Buffer never fail
	}
	if err := enc.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Decompress reverses Compress. It verifies the zstd frame header as part
// of decoding; a corrupt or truncated payload returns an error rather than
// partial data, matching spec.md's "verify the block-compression framing"
// requirement.
func Decompress(src []byte) ([]byte, error) {
	dec := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)
	return dec.DecodeAll(src, nil)
}
