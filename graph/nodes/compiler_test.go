package nodes

import "testing"

// TestComputeToolchainIDIsOrderIndependent grounds testable property 5: the
// same set of (path, content-hash) pairs produces the same toolchain id
// regardless of the order the files were enumerated in.
func TestComputeToolchainIDIsOrderIndependent(t *testing.T) {
	a := []ToolchainFile{
		{RelPath: "cl.exe", ContentHash: 111},
		{RelPath: "mspdb140.dll", ContentHash: 222},
	}
	b := []ToolchainFile{
		{RelPath: "mspdb140.dll", ContentHash: 222},
		{RelPath: "cl.exe", ContentHash: 111},
	}
	if ComputeToolchainID(a) != ComputeToolchainID(b) {
		t.Fatal("toolchain id must not depend on manifest enumeration order")
	}
}

func TestComputeToolchainIDChangesWithContent(t *testing.T) {
	a := []ToolchainFile{{RelPath: "cl.exe", ContentHash: 111}}
	b := []ToolchainFile{{RelPath: "cl.exe", ContentHash: 112}}
	if ComputeToolchainID(a) == ComputeToolchainID(b) {
		t.Fatal("toolchain id must change when a file's content hash changes")
	}
}

func TestComputeToolchainIDChangesWithPath(t *testing.T) {
	a := []ToolchainFile{{RelPath: "cl.exe", ContentHash: 111}}
	b := []ToolchainFile{{RelPath: "cl64.exe", ContentHash: 111}}
	if ComputeToolchainID(a) == ComputeToolchainID(b) {
		t.Fatal("toolchain id must change when a file's relative path changes")
	}
}

func TestDetectCompilerFamily(t *testing.T) {
	cases := map[string]CompilerFamily{
		`C:\VC\bin\cl.exe`:          CompilerMSVC,
		"/usr/bin/clang++":         CompilerClang,
		"/usr/bin/gcc":             CompilerGCC,
		"/usr/bin/g++":             CompilerGCC,
		"/opt/tool/strange-cc-1.0": CompilerUnknown,
	}
	for path, want := range cases {
		if got := DetectCompilerFamily(path); got != want {
			t.Errorf("DetectCompilerFamily(%q) = %v, want %v", path, got, want)
		}
	}
}
