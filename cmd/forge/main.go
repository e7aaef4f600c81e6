// Command forge is the build coordinator (spec component, CLI surface
// §6): it parses a configuration file into a dependency graph, loads the
// prior database for incrementality, drives the graph to completion
// through the scheduler, and writes the database back out regardless of
// outcome so the next run stays incremental.
//
// Grounded on cmd/distri/distri.go's funcmain: flag parsing, an
// interruptible root context, and RunAtExit on the way out — generalized
// from distri's verb-dispatch table to fbuild's own flag surface, since
// the original tool takes target names as positional arguments rather
// than a subcommand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"

	forge "github.com/forgebuild/forge"
	"github.com/forgebuild/forge/cache"
	"github.com/forgebuild/forge/cache/lightcache"
	"github.com/forgebuild/forge/config"
	"github.com/forgebuild/forge/dist"
	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/sched"
)

var (
	configPath  = flag.String("config", "fbuild.bff", "root configuration file to parse")
	dbPath      = flag.String("db", "fbuild.fdb", "database file path, for incremental builds")
	workers     = flag.Int("j", runtime.NumCPU(), "number of local worker threads")
	cacheRead   = flag.Bool("cache-read", false, "consult the compile-result cache before building")
	cacheWrite  = flag.Bool("cache-write", false, "publish compile results to the cache")
	cachePath   = flag.String("cache-path", "", "compile-result cache root (overridden by FASTBUILD_CACHE_PATH)")
	distEnabled = flag.Bool("dist", false, "enable distributed compilation")
	race        = flag.Bool("dist-race", false, "race distributed jobs against local compiles instead of falling back sequentially")
	workerList  = flag.String("workers", "", "\";\"-separated worker addresses (overrides brokerage discovery)")
	brokerage   = flag.String("brokerage", "", "\";\"-separated brokerage directories for worker discovery")
	lightCache  = flag.Bool("light-cache", true, "fingerprint includes without invoking the preprocessor when possible")
	forceClean  = flag.Bool("clean", false, "ignore all cached state and rebuild everything")
	stopOnError = flag.Bool("stop-on-error", false, "accepted; a build failure does not stop other work from being dispatched")
	summary     = flag.Bool("summary", false, "print a build summary on completion")
	graphOut    = flag.String("write-graph", "", "write a compile_commands.json database to this path")
)

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ";")
}

func run(ctx context.Context) error {
	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	resolvedCachePath := envOr("FASTBUILD_CACHE_PATH", *cachePath)
	resolvedWorkers := splitList(envOr("FASTBUILD_WORKERS", *workerList))
	resolvedBrokerage := splitList(envOr("FASTBUILD_BROKERAGE_PATH", *brokerage))

	g, err := loadOrCreateGraph(wd)
	if err != nil {
		return fmt.Errorf("load database: %w", err)
	}

	var fsCache *cache.FilesystemCache
	if *cacheRead || *cacheWrite {
		if resolvedCachePath == "" {
			resolvedCachePath = filepath.Join(wd, ".forge-cache")
		}
		fsCache, err = cache.New(resolvedCachePath)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
	}

	var lc *lightcache.Accelerator
	if *lightCache {
		lc = lightcache.NewAccelerator()
	}

	client, err := resolveDistClient(resolvedWorkers, resolvedBrokerage, g)
	if err != nil {
		return fmt.Errorf("distribution setup: %w", err)
	}

	var distributor = distributorSeam(client)
	if perr := config.Load(*configPath, g, cacheSeam(fsCache), lightCacheSeam(lc), distributor); perr != nil {
		return fmt.Errorf("parse %s: %w", *configPath, perr)
	}

	if *forceClean {
		resetGraph(g)
	}

	sc := sched.New(g, *workers)
	sc.Log = newLogger()
	if *race && client != nil {
		sc.Racer = client
	}

	buildErr := sc.Run(ctx)

	if err := saveGraph(g, wd); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save database: %v\n", err)
	}

	if *graphOut != "" {
		if err := writeCompileDB(g, *graphOut); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write %s: %v\n", *graphOut, err)
		}
	}

	if *summary {
		printSummary(g)
	}

	if buildErr != nil {
		return buildErr
	}
	if failedCount(g) > 0 {
		return fmt.Errorf("build failed")
	}
	return nil
}

func main() {
	ctx, cancel := forge.InterruptibleContext()
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if aerr := forge.RunAtExit(); aerr != nil {
			fmt.Fprintln(os.Stderr, aerr)
		}
		os.Exit(1)
	}
	if err := forge.RunAtExit(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger returns a progress sink that repaints a single terminal line
// when stdout is a tty (per mattn/go-isatty) and falls back to plain
// appended lines otherwise, e.g. when output is redirected to a CI log.
func newLogger() func(string) {
	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return func(line string) {
		if tty {
			fmt.Fprintf(os.Stderr, "\r\033[K%s", line)
			return
		}
		fmt.Fprintln(os.Stderr, line)
	}
}

func resolveDistClient(workers, brokerage []string, g *graph.Graph) (*dist.Client, error) {
	if !*distEnabled {
		return nil, nil
	}
	addrs := workers
	if len(addrs) == 0 && len(brokerage) > 0 {
		discovered, err := dist.Discover(brokerage)
		if err != nil {
			return nil, err
		}
		addrs = discovered
	}
	if len(addrs) == 0 {
		return nil, nil
	}
	c := dist.NewClient(addrs)
	c.Graph = g
	return c, nil
}

func failedCount(g *graph.Graph) int {
	n := 0
	for _, node := range g.Nodes() {
		if node.State == graph.Failed {
			n++
		}
	}
	return n
}

func printSummary(g *graph.Graph) {
	var built, upToDate, failed int
	for _, n := range g.Nodes() {
		switch n.State {
		case graph.UpToDate:
			upToDate++
			if n.LastBuildDuration > 0 {
				built++
			}
		case graph.Failed:
			failed++
		}
	}
	fmt.Printf("forge: %d nodes, %d built, %d up to date, %d failed\n", g.Len(), built, upToDate, failed)
}

func resetGraph(g *graph.Graph) {
	for _, n := range g.Nodes() {
		n.Stamp = 0
		n.State = graph.NotProcessed
	}
}
