package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgebuild/forge/graph"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadRegistersNodesFromConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.bff", `
.Src = "in.c"
Copy("mycopy")
{
	.Source = .Src
	.Dest = "out.c"
}
`)
	writeFile(t, dir, "in.c", "int main(){}")

	g := graph.New(dir)
	if err := Load(filepath.Join(dir, "main.bff"), g, nil, nil, nil); err != nil {
		t.Fatalf("load error: %v", err)
	}
	if _, ok := g.FindNode("mycopy"); !ok {
		t.Fatal("expected 'mycopy' node to be registered")
	}
}

func TestLoadIncludeSplicesStatements(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "included.bff", `.FromInclude = "hello"`)
	writeFile(t, dir, "main.bff", `
#include "included.bff"
TextFile("greeting")
{
	.TextFileOutputPath = "out.txt"
	.TextFileContents = .FromInclude
}
`)

	g := graph.New(dir)
	if err := Load(filepath.Join(dir, "main.bff"), g, nil, nil, nil); err != nil {
		t.Fatalf("load error: %v", err)
	}
	n, ok := g.FindNode("greeting")
	if !ok {
		t.Fatal("expected 'greeting' node to be registered")
	}
	if n.Kind.KindName() != "TextFileNode" {
		t.Fatalf("got kind %s", n.Kind.KindName())
	}
}

func TestLoadUnterminatedIfReportsRowCol(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.bff", "#if SOMETHING\n.A = \"x\"\n")

	g := graph.New(dir)
	err := Load(filepath.Join(dir, "bad.bff"), g, nil, nil, nil)
	if err == nil {
		t.Fatal("expected parse error for unterminated #if")
	}
	if err.Code != ErrUnterminatedIfDirective {
		t.Fatalf("got code %d, want %d", err.Code, ErrUnterminatedIfDirective)
	}
	if err.Row == 0 {
		t.Fatal("expected a nonzero row in the error")
	}
}

func TestLoadUnknownFunctionReportsNumericCode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.bff", `NotARealFunction("x") {}`)

	g := graph.New(dir)
	err := Load(filepath.Join(dir, "bad.bff"), g, nil, nil, nil)
	if err == nil || err.Code != ErrUnknownFunction {
		t.Fatalf("expected ErrUnknownFunction, got %v", err)
	}
}
