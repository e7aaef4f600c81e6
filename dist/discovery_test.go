package dist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAdvertiseAndDiscoverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	stop, err := Advertise(dir, "203.0.113.5:9000")
	if err != nil {
		t.Fatalf("Advertise: %v", err)
	}
	defer stop()

	got, err := Discover([]string{dir})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 1 || got[0] != "203.0.113.5:9000" {
		t.Fatalf("got %v, want [203.0.113.5:9000]", got)
	}
}

func TestDiscoverExcludesLocalAddresses(t *testing.T) {
	dir := t.TempDir()
	for _, addr := range []string{"localhost:9000", "127.0.0.1:9001", "203.0.113.5:9000"} {
		stop, err := Advertise(dir, addr)
		if err != nil {
			t.Fatalf("Advertise(%s): %v", addr, err)
		}
		defer stop()
	}

	got, err := Discover([]string{dir})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 1 || got[0] != "203.0.113.5:9000" {
		t.Fatalf("got %v, want only the non-local address", got)
	}
}

func TestDiscoverIgnoresMissingDirectory(t *testing.T) {
	got, err := Discover([]string{filepath.Join(t.TempDir(), "does-not-exist")})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestAdvertiseStopRemovesFile(t *testing.T) {
	dir := t.TempDir()
	stop, err := Advertise(dir, "203.0.113.9:9000")
	if err != nil {
		t.Fatalf("Advertise: %v", err)
	}
	if err := stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d leftover files after stop, want 0", len(entries))
	}
}
