package sched

import "github.com/forgebuild/forge/graph"

// progressTracker recomputes a weighted completion ratio from per-node
// last-build durations every tick, per spec.md §4.5's "Progress" rule:
// "every ~5s the scheduler walks the graph and re-computes a weighted
// completion ratio from per-node last-build durations; progress never
// decreases."
type progressTracker struct {
	g    *graph.Graph
	log  func(format string, args ...interface{})
	best float64
}

func newProgressTracker(g *graph.Graph, log func(format string, args ...interface{})) *progressTracker {
	return &progressTracker{g: g, log: log}
}

// tick walks the graph, weighting each node by its last known build
// duration (falling back to an equal weight of 1 for nodes that have never
// finished a build, e.g. on a from-scratch invocation), and reports the
// fraction of total weight represented by UpToDate nodes. The reported
// ratio is clamped to never regress below a previously reported value,
// since a node's total weight estimate can shift as more durations become
// known over the course of a build.
func (p *progressTracker) tick() {
	ratio := p.ratio()
	if ratio < p.best {
		ratio = p.best
	}
	p.best = ratio
	if p.log != nil {
		p.log("progress: %.1f%%", ratio*100)
	}
}

func (p *progressTracker) ratio() float64 {
	var total, done float64
	for _, n := range p.g.Nodes() {
		weight := float64(n.LastBuildDuration)
		if weight <= 0 {
			weight = 1
		}
		total += weight
		if n.State == graph.UpToDate {
			done += weight
		}
	}
	if total == 0 {
		return 0
	}
	return done / total
}
