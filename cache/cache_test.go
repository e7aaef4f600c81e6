package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgebuild/forge/fingerprint"
)

func TestFilesystemCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	src := filepath.Join(dir, "obj.o")
	want := []byte("compiled object bytes")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	a := fingerprint.Hash128Bytes([]byte("preprocessed source"))
	b := fingerprint.Hash32([]byte("-O2 -Wall"))
	cc := fingerprint.Hash64([]byte("clang-17"))

	if err := c.Publish(a, b, cc, src); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	dest := filepath.Join(dir, "out", "obj.o")
	hit, err := c.Retrieve(a, b, cc, dest)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !hit {
		t.Fatal("expected cache hit after publish")
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFilesystemCacheMissBeforePublish(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := fingerprint.Hash128Bytes([]byte("never published"))
	hit, err := c.Retrieve(a, 0, 0, filepath.Join(dir, "out.o"))
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if hit {
		t.Fatal("expected miss for unpublished key")
	}
}

func TestFilesystemCacheFilenameEncoding(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := fingerprint.Hash128Bytes([]byte("x"))
	p := c.path(a, 7, 9)
	hex := fmtHex(a)
	want := filepath.Join(dir, hex[0:2], hex[2:4])
	if filepath.Dir(p) != want {
		t.Fatalf("got dir %q, want %q", filepath.Dir(p), want)
	}
}

func TestFilesystemCachePublishOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := filepath.Join(dir, "obj.o")
	a := fingerprint.Hash128Bytes([]byte("key"))

	os.WriteFile(src, []byte("first"), 0o644)
	if err := c.Publish(a, 0, 0, src); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	os.WriteFile(src, []byte("second"), 0o644)
	if err := c.Publish(a, 0, 0, src); err != nil {
		t.Fatalf("second Publish: %v", err)
	}

	dest := filepath.Join(dir, "dest.o")
	if _, err := c.Retrieve(a, 0, 0, dest); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "second" {
		t.Fatalf("got %q, want %q (publish should overwrite)", got, "second")
	}
}

func fmtHex(a fingerprint.Hash128) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(a)*2)
	for i, b := range a {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}
