// Package graph is the dependency graph: an arena of typed build nodes,
// indexed for O(1) name lookup, with the up-to-date state machine and
// binary persistence described by the build system's data model.
package graph

import "golang.org/x/xerrors"

// NodeIndex is a stable reference to a node within one Graph instance. It
// survives save/load, matching the data model's "a stable index assigned on
// creation (survives save/load)".
type NodeIndex int32

// InvalidIndex marks the absence of a node reference.
const InvalidIndex NodeIndex = -1

// BuildState is a node's position in the build-state machine.
type BuildState int8

const (
	NotProcessed BuildState = iota
	PreDepsReady
	StaticDepsReady
	DynamicDepsDone
	Building
	UpToDate
	Failed
)

func (s BuildState) String() string {
	switch s {
	case NotProcessed:
		return "NOT_PROCESSED"
	case PreDepsReady:
		return "PRE_DEPS_READY"
	case StaticDepsReady:
		return "STATIC_DEPS_READY"
	case DynamicDepsDone:
		return "DYNAMIC_DEPS_DONE"
	case Building:
		return "BUILDING"
	case UpToDate:
		return "UP_TO_DATE"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the structured result of one node's build action, replacing
// the exception-free result enum from the design notes
// (Ok | Failed | NeedSecondPass | OkFromCache).
type Outcome int8

const (
	Ok Outcome = iota
	OkFromCache
	NeedSecondPass
	OutcomeFailed
)

// Result pairs an Outcome with a wrapped cause, never a bare panic across a
// worker boundary.
type Result struct {
	Outcome Outcome
	Err     error
}

func (r Result) String() string {
	if r.Err != nil {
		return xerrors.Errorf("outcome=%d: %w", r.Outcome, r.Err).Error()
	}
	return "ok"
}

// Edge is a dependency edge annotated with its weakness: a weak edge is
// informational only and never triggers DetermineNeedToBuild on its own
// (spec data model, "weak edges are informational only").
type Edge struct {
	To   NodeIndex
	Weak bool
}

// Kind is the capability set every node kind implements, replacing virtual
// dispatch with a plain interface per the design notes' "tagged variant
// over node kinds plus a per-kind vtable of plain functions."
type Kind interface {
	// KindName identifies the concrete kind for diagnostics and the
	// database file's type tag, e.g. "ObjectNode".
	KindName() string

	// IsFile reports whether this kind represents an on-disk file whose
	// stamp is simply its mtime (FileNode and file-producing kinds).
	IsFile() bool

	// DetermineNeedToBuild decides whether n must rebuild, given its
	// already-populated static and dynamic dependency stamps.
	DetermineNeedToBuild(n *Node, g *Graph) bool

	// GatherDynamicDeps is invoked once a node's static deps are ready; it
	// may register new nodes into g and append edges to n's dynamic list.
	GatherDynamicDeps(n *Node, g *Graph) error

	// DoBuild executes the node's action and returns a structured result.
	DoBuild(n *Node, g *Graph) Result

	// Save/Load (de)serialize kind-specific fields to the database stream.
	Save(n *Node, w *Writer) error
	Load(n *Node, r *Reader) error
}

// Node is the unit of work: common header fields plus a Kind implementing
// the behaviors specific to what the node actually does.
type Node struct {
	Index NodeIndex
	Name  string // canonical name, usually a path; sometimes synthetic ("*proxy*")
	Kind  Kind

	Stamp uint64 // 64-bit output stamp; zero means unknown/does not exist

	PreBuild []NodeIndex // must be satisfied before any dependency discovery
	Static   []Edge      // declared, constant after parsing
	Dynamic  []Edge      // discovered at build time by the node itself

	State BuildState

	LastBuildDuration int64 // nanoseconds, used to estimate progress

	passTag uint32 // last pass that visited this node; prevents re-visits within one pass
}

// AddStatic appends a static (non-weak) dependency edge.
func (n *Node) AddStatic(to NodeIndex) {
	n.Static = append(n.Static, Edge{To: to})
}

// AddWeakStatic appends an informational static edge.
func (n *Node) AddWeakStatic(to NodeIndex) {
	n.Static = append(n.Static, Edge{To: to, Weak: true})
}

// AddDynamic appends a dynamic dependency edge discovered at build time.
func (n *Node) AddDynamic(to NodeIndex) {
	n.Dynamic = append(n.Dynamic, Edge{To: to})
}
