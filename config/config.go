// Package config implements the declarative build-description DSL: a
// lexer, a recursive-descent parser, and a scoped evaluator that drives
// graph/nodes' builders, per spec.md §4.1. Load is the package's single
// entrypoint: it reads a root file, resolves #include/#import/#if/#define
// directives, parses the resulting statement list, and evaluates it
// against a fresh root scope, registering nodes into g as it goes.
package config

import (
	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/graph/nodes"
)

// Load parses and evaluates the DSL file at path, registering every node
// the configuration describes into g. cache/lightCache/dist may be nil;
// ObjectNode falls back to direct local compilation when they are.
func Load(path string, g *graph.Graph, cache nodes.Cache, lightCache nodes.LightCache, dist nodes.Distributor) *ParseError {
	loader := NewLoader()
	stmts, err := loader.load(path)
	if err != nil {
		return err
	}

	ev := NewEvaluator()
	ctx := &Context{Graph: g, Cache: cache, LightCache: lightCache, Distributor: dist}
	RegisterBuilders(ev, ctx)

	return ev.Run(stmts, NewScope())
}
