// Package sched implements the job scheduler and worker pool (spec
// component C9): one coordinator goroutine drives every node through the
// graph package's build-state machine (NotProcessed → PreDepsReady →
// StaticDepsReady → DynamicDepsDone → Building → UpToDate/Failed), handing
// only the blocking "Building" step to a fixed pool of worker goroutines.
// Grounded on the teacher's internal/batch package (errgroup worker pool,
// a ready-queue seeded from nodes with no unbuilt dependency, status-line
// progress reporting) generalized from "build a distri package" to "run
// one graph node's DoBuild", and wired onto forge's own graph.Graph state
// machine instead of batch's ad hoc gonum-based dependency count.
package sched

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forgebuild/forge/graph"
)

// highPriority is implemented by node kinds that want to jump the queue,
// e.g. a PCH-creating ObjectNode so it unblocks the most downstream work
// (spec.md §4.5 "Ordering"). Kinds that don't implement it get normal
// priority.
type highPriority interface {
	HighPriority() bool
}

// Racer dispatches a distributable node's job to a remote worker, racing
// it against the local compile. A nil Racer disables distribution
// entirely: every job runs locally.
type Racer interface {
	// TryRemote starts a remote attempt for n and returns a channel
	// delivering its result, or nil if n is not eligible for
	// distribution (the racer decides, e.g. by inspecting n's Kind).
	TryRemote(ctx context.Context, n *graph.Node) <-chan graph.Result
}

type completion struct {
	node graph.NodeIndex
	tag  string
	res  graph.Result
}

// Scheduler runs a Graph's nodes to completion across a fixed worker pool,
// per spec.md §4.5.
type Scheduler struct {
	Graph   *graph.Graph
	Workers int
	Racer   Racer

	// Log receives human-readable progress lines; defaults to stdout when
	// nil.
	Log func(string)

	q        *queue
	doneCh   chan completion
	stop     chan struct{}
	stopOnce sync.Once

	reverseMu sync.Mutex
	reverse   map[graph.NodeIndex][]graph.NodeIndex

	gatheredMu sync.Mutex
	gathered   map[graph.NodeIndex]bool

	inFlightMu sync.Mutex
	inFlight   map[graph.NodeIndex]*inflightEntry

	progress *progressTracker
}

type inflightEntry struct {
	tag       string
	cancelled bool
}

// New returns a Scheduler for g, with workers goroutines standing in for
// the original's OS threads.
func New(g *graph.Graph, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		Graph:    g,
		Workers:  workers,
		q:        newQueue(),
		doneCh:   make(chan completion, workers*2+1),
		stop:     make(chan struct{}),
		reverse:  map[graph.NodeIndex][]graph.NodeIndex{},
		gathered: map[graph.NodeIndex]bool{},
		inFlight: map[graph.NodeIndex]*inflightEntry{},
	}
}

func (s *Scheduler) log(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if s.Log != nil {
		s.Log(line)
		return
	}
	fmt.Println(line)
}

// Run drives every node in the graph to a terminal state (UpToDate or
// Failed), per spec.md §4.5. It returns the first worker-pool error (e.g.
// context cancellation); per-node build failures are recorded on the graph
// itself (Node.State == Failed) rather than returned, since one node
// failing does not necessarily abort the whole run — dependents simply
// also end up Failed via the state machine's propagation.
func (s *Scheduler) Run(ctx context.Context) error {
	s.buildReverseIndex()
	s.progress = newProgressTracker(s.Graph, s.log)

	if s.Graph.Len() == 0 {
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.Workers; i++ {
		eg.Go(func() error { return s.worker(ctx) })
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	coordErr := make(chan error, 1)
	go func() { coordErr <- s.coordinate(ctx) }()

	for {
		select {
		case <-ticker.C:
			s.progress.tick()
		case err := <-coordErr:
			s.Stop()
			waitErr := eg.Wait()
			if err != nil {
				return err
			}
			return waitErr
		case <-ctx.Done():
			s.Stop()
			eg.Wait()
			return ctx.Err()
		}
	}
}

// Stop signals every worker and the coordinator to exit once they observe
// the signal, per spec.md §4.5's "Stop" semantics.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Scheduler) buildReverseIndex() {
	for _, n := range s.Graph.Nodes() {
		s.addReverseEdges(n)
	}
}

func (s *Scheduler) addReverseEdges(n *graph.Node) {
	s.reverseMu.Lock()
	defer s.reverseMu.Unlock()
	for _, idx := range n.PreBuild {
		s.reverse[idx] = append(s.reverse[idx], n.Index)
	}
	for _, e := range n.Static {
		s.reverse[e.To] = append(s.reverse[e.To], n.Index)
	}
	for _, e := range n.Dynamic {
		s.reverse[e.To] = append(s.reverse[e.To], n.Index)
	}
}

func (s *Scheduler) dependents(idx graph.NodeIndex) []graph.NodeIndex {
	s.reverseMu.Lock()
	defer s.reverseMu.Unlock()
	return append([]graph.NodeIndex(nil), s.reverse[idx]...)
}

// coordinate is the single goroutine that advances every node through the
// graph's state machine, handing "ready to build" nodes to the worker pool
// and consuming their completions. It never blocks on I/O itself, matching
// spec.md §4.5's "no user-visible callback or coroutine" on the
// coordination path.
func (s *Scheduler) coordinate(ctx context.Context) error {
	worklist := make([]graph.NodeIndex, s.Graph.Len())
	for i := range worklist {
		worklist[i] = graph.NodeIndex(i)
	}
	pendingBuild := 0

	for len(worklist) > 0 || pendingBuild > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		default:
		}

		if len(worklist) > 0 {
			idx := worklist[0]
			worklist = worklist[1:]
			n := s.Graph.Node(idx)
			advanced, startedBuild := s.advance(n)
			if startedBuild {
				pendingBuild++
			}
			if advanced {
				// idx may have more transitions available immediately
				// (e.g. NotProcessed -> PreDepsReady -> StaticDepsReady
				// in the same pass when it has no unmet dependencies), so
				// requeue it alongside its dependents. Also requeue n's
				// own dynamic dependency targets: a kind's
				// GatherDynamicDeps (e.g. ObjectListNode expanding a
				// DirectoryListNode/UnityNode into per-file ObjectNodes)
				// may register brand new nodes past the end of the
				// worklist captured at the start of this run, and those
				// nodes have no other path into the worklist until
				// something lists them as a dependent.
				worklist = append(worklist, idx)
				worklist = append(worklist, s.dependents(idx)...)
				for _, e := range n.Dynamic {
					worklist = append(worklist, e.To)
				}
			}
			continue
		}

		select {
		case c := <-s.doneCh:
			pendingBuild--
			n := s.Graph.Node(c.node)
			s.applyCompletion(n, c)
			worklist = append(worklist, s.dependents(c.node)...)
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		}
	}
	return nil
}

// advance pushes n as far through the state machine as it can go without
// blocking, returning whether any transition happened and whether n was
// just handed to a worker for DoBuild.
func (s *Scheduler) advance(n *graph.Node) (advanced, startedBuild bool) {
	switch n.State {
	case graph.NotProcessed:
		return s.Graph.AdvanceToPreDepsReady(n), false
	case graph.PreDepsReady:
		return s.Graph.AdvanceToStaticDepsReady(n), false
	case graph.StaticDepsReady:
		s.gatheredMu.Lock()
		already := s.gathered[n.Index]
		if !already {
			s.gathered[n.Index] = true
		}
		s.gatheredMu.Unlock()
		if !already {
			if err := n.Kind.GatherDynamicDeps(n, s.Graph); err != nil {
				n.State = graph.Failed
				s.log("gather dynamic deps failed: %s: %v", n.Name, err)
				return true, false
			}
			s.addReverseEdges(n)
			return true, false
		}
		return s.Graph.AdvanceToDynamicDepsDone(n), false
	case graph.DynamicDepsDone:
		if !s.Graph.NeedToBuild(n) {
			n.State = graph.UpToDate
			return true, false
		}
		n.State = graph.Building
		s.enqueue(n, "")
		return true, true
	default: // Building, UpToDate, Failed: nothing left to do here
		return false, false
	}
}

func (s *Scheduler) enqueue(n *graph.Node, tag string) {
	high := false
	if hp, ok := n.Kind.(highPriority); ok {
		high = hp.HighPriority()
	}
	s.q.push(job{node: n.Index, tag: tag}, high)
}

func (s *Scheduler) applyCompletion(n *graph.Node, c completion) {
	s.inFlightMu.Lock()
	entry := s.inFlight[c.node]
	delete(s.inFlight, c.node)
	s.inFlightMu.Unlock()

	if entry != nil && entry.cancelled {
		// Cancelled in flight: discard the result regardless of outcome,
		// per spec.md §4.5's "in-flight entries have their user-data
		// zeroed so that their completion is discarded."
		n.State = graph.NotProcessed
		return
	}

	if c.res.Outcome == graph.OutcomeFailed {
		n.State = graph.Failed
		s.log("build failed: %s: %v", n.Name, c.res.Err)
		return
	}
	n.State = graph.UpToDate
}

func (s *Scheduler) worker(ctx context.Context) error {
	for {
		j, ok := s.q.pop(s.stop)
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		n := s.Graph.Node(j.node)

		s.inFlightMu.Lock()
		s.inFlight[j.node] = &inflightEntry{tag: j.tag}
		s.inFlightMu.Unlock()

		start := time.Now()
		res := s.execute(ctx, n)
		n.LastBuildDuration = time.Since(start).Nanoseconds()

		select {
		case s.doneCh <- completion{node: j.node, tag: j.tag, res: res}:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		}
	}
}

// execute races a distributable node locally against Racer.TryRemote, when
// configured. The first to complete wins; the loser is ignored (and, for a
// still-running local goroutine, its result is discarded once it finishes
// since the node is already marked built by the winner).
func (s *Scheduler) execute(ctx context.Context, n *graph.Node) graph.Result {
	if s.Racer == nil {
		return n.Kind.DoBuild(n, s.Graph)
	}
	remoteCh := s.Racer.TryRemote(ctx, n)
	if remoteCh == nil {
		return n.Kind.DoBuild(n, s.Graph)
	}

	localCh := make(chan graph.Result, 1)
	go func() { localCh <- n.Kind.DoBuild(n, s.Graph) }()

	select {
	case res := <-remoteCh:
		return res
	case res := <-localCh:
		return res
	}
}

// Cancel scans the pending and in-flight sets for tag, per spec.md §4.5.
// Queued entries are deleted outright; in-flight entries are marked so
// their eventual completion is discarded rather than recorded. It returns
// the number of queued jobs removed.
func (s *Scheduler) Cancel(tag string) int {
	removed := s.q.removeTag(tag)

	s.inFlightMu.Lock()
	for _, entry := range s.inFlight {
		if entry.tag == tag {
			entry.cancelled = true
		}
	}
	s.inFlightMu.Unlock()

	return removed
}

// statusLine joins per-worker status strings the way the teacher's
// batch.refreshStatus does, for a Log implementation that wants a single
// multi-line terminal repaint.
func statusLine(lines []string) string {
	return strings.Join(lines, "\n")
}
