package fingerprint

import (
	"bytes"
	"testing"
)

// Cache round-trip (testable property 4): retrieve(publish(key, bytes)) ==
// bytes, checked here at the compression layer in isolation from the
// filesystem.
func TestCompressRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("int foo(void) { return 42; }\n"), 512)
	compressed := Compress(src)
	if bytes.Equal(compressed, src) {
		t.Fatalf("Compress did not transform input")
	}
	got, err := Decompress(compressed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(src))
	}
}

func TestDecompressRejectsCorruptFrame(t *testing.T) {
	compressed := Compress([]byte("hello"))
	corrupt := append([]byte{}, compressed...)
	corrupt[0] ^= 0xff // corrupt the zstd magic number
	if _, err := Decompress(corrupt); err == nil {
		t.Fatalf("Decompress accepted a corrupt frame header")
	}
}

func TestCompressEmpty(t *testing.T) {
	got, err := Decompress(Compress(nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("round trip of empty input produced %d bytes", len(got))
	}
}
