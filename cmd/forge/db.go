package main

import (
	"fmt"
	"os"

	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/pathutil"
)

// loadOrCreateGraph loads *dbPath if it parses cleanly, per spec.md §6's
// "mismatched version triggers a warning and a full reparse." Any read or
// format error (including a missing file on the first run) falls back to
// a fresh graph silently for ENOENT, with a warning otherwise.
func loadOrCreateGraph(wd string) (*graph.Graph, error) {
	f, err := os.Open(*dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return graph.New(wd), nil
		}
		fmt.Fprintf(os.Stderr, "warning: cannot open database %s: %v; doing a full reparse\n", *dbPath, err)
		return graph.New(wd), nil
	}
	defer f.Close()

	g, err := graph.Load(wd, f)
	if err != nil {
		// Stale or corrupt database: per §6, treat as "do a full reparse"
		// rather than failing the build.
		fmt.Fprintf(os.Stderr, "warning: ignoring database %s: %v; doing a full reparse\n", *dbPath, err)
		return graph.New(wd), nil
	}
	return g, nil
}

// saveGraph writes the database atomically so a crash mid-write never
// corrupts the prior, still-valid database.
func saveGraph(g *graph.Graph, wd string) error {
	return pathutil.AtomicWriteFileFunc(*dbPath, 0644, func(f *os.File) error {
		return g.Save(f)
	})
}

func writeCompileDB(g *graph.Graph, path string) error {
	return pathutil.AtomicWriteFileFunc(path, 0644, func(f *os.File) error {
		return graph.WriteCompilationDatabase(g, f)
	})
}
