package lightcache

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestHashQuotedIncludeSameDirectory(t *testing.T) {
	ClearCachedFiles()
	dir := t.TempDir()
	writeFile(t, dir, "header.h", "int x;\n")
	src := writeFile(t, dir, "main.c", "#include \"header.h\"\nint main(){}\n")

	hash, ok, err := New().Hash(src, nil)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !ok {
		t.Fatal("expected a successful fingerprint")
	}
	if hash == 0 {
		t.Fatal("expected a nonzero hash")
	}
}

func TestHashDeterministicAcrossRuns(t *testing.T) {
	ClearCachedFiles()
	dir := t.TempDir()
	writeFile(t, dir, "header.h", "int x;\n")
	src := writeFile(t, dir, "main.c", "#include \"header.h\"\nint main(){}\n")

	h1, ok1, err := New().Hash(src, nil)
	if err != nil || !ok1 {
		t.Fatalf("first Hash: ok=%v err=%v", ok1, err)
	}
	h2, ok2, err := New().Hash(src, nil)
	if err != nil || !ok2 {
		t.Fatalf("second Hash: ok=%v err=%v", ok2, err)
	}
	if h1 != h2 {
		t.Fatalf("hash changed across runs: %x vs %x", h1, h2)
	}
}

func TestHashChangesWhenIncludedContentChanges(t *testing.T) {
	ClearCachedFiles()
	dir := t.TempDir()
	writeFile(t, dir, "header.h", "int x;\n")
	src := writeFile(t, dir, "main.c", "#include \"header.h\"\nint main(){}\n")

	h1, _, _ := New().Hash(src, nil)

	ClearCachedFiles()
	writeFile(t, dir, "header.h", "int x; int y;\n")
	h2, _, _ := New().Hash(src, nil)

	if h1 == h2 {
		t.Fatal("expected hash to change when an included file's content changes")
	}
}

func TestHashAngleIncludeSearchesIncludePath(t *testing.T) {
	ClearCachedFiles()
	dir := t.TempDir()
	incDir := filepath.Join(dir, "inc")
	writeFile(t, incDir, "sys.h", "typedef int sys_t;\n")
	src := writeFile(t, dir, "main.c", "#include <sys.h>\nint main(){}\n")

	_, ok, err := New().Hash(src, []string{incDir})
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !ok {
		t.Fatal("expected angle-bracket include to resolve via the include path")
	}
}

func TestHashMacroizedIncludeFallsBack(t *testing.T) {
	ClearCachedFiles()
	dir := t.TempDir()
	src := writeFile(t, dir, "main.c", "#include HEADER_NAME\nint main(){}\n")

	_, ok, err := New().Hash(src, nil)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if ok {
		t.Fatal("expected fallback (ok=false) for a macroized include path")
	}
}

func TestHashMissingRootFileFallsBack(t *testing.T) {
	ClearCachedFiles()
	dir := t.TempDir()
	_, ok, err := New().Hash(filepath.Join(dir, "nope.c"), nil)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if ok {
		t.Fatal("expected fallback for a missing root file")
	}
}

func TestScanIncludesSkipsBlockComments(t *testing.T) {
	src := "/* #include \"ignored.h\" */\n#include \"real.h\"\n"
	includes, problem := scanIncludes(src)
	if problem {
		t.Fatal("unexpected problem parsing")
	}
	if len(includes) != 1 || includes[0].text != "real.h" {
		t.Fatalf("got %+v", includes)
	}
}

func TestScanIncludesPreservesAngleVsQuotedForm(t *testing.T) {
	src := "#include <sys.h>\n#include \"local.h\"\n"
	includes, problem := scanIncludes(src)
	if problem {
		t.Fatal("unexpected problem parsing")
	}
	if len(includes) != 2 {
		t.Fatalf("got %d includes", len(includes))
	}
	if !includes[0].angleForm || includes[1].angleForm {
		t.Fatalf("got %+v", includes)
	}
}

func TestAcceleratorSatisfiesFingerprint(t *testing.T) {
	ClearCachedFiles()
	dir := t.TempDir()
	src := writeFile(t, dir, "main.c", "int main(){}\n")
	a := NewAccelerator()
	_, ok, err := a.Fingerprint(src, nil)
	if err != nil || !ok {
		t.Fatalf("Fingerprint: ok=%v err=%v", ok, err)
	}
}
