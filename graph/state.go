package graph

// NeedToBuild implements DetermineNeedToBuild (§4.2): a node needs to
// rebuild if it has never built, if its kind's own DetermineNeedToBuild
// says so (every file-producing kind re-stats its own output there,
// mirroring Node::DetermineNeedToBuild in the original, whose base
// implementation checks GetFileLastWriteTime for any node that IsAFile()),
// or if any non-weak dependency (static or dynamic) has a later stamp than
// this node. Directory-list and unity dependencies participate only via
// their own stamp, computed during dynamic-dep gathering, not specially
// here; weak edges never force a rebuild on their own.
func (g *Graph) NeedToBuild(n *Node) bool {
	if n.Kind.DetermineNeedToBuild(n, g) {
		return true
	}
	if n.Stamp == 0 && !n.Kind.IsFile() {
		return true
	}
	for _, e := range n.Static {
		if e.Weak {
			continue
		}
		if dep := g.Node(e.To); dep.Stamp > n.Stamp {
			return true
		}
	}
	for _, e := range n.Dynamic {
		if e.Weak {
			continue
		}
		if dep := g.Node(e.To); dep.Stamp > n.Stamp {
			return true
		}
	}
	return false
}

// AdvanceToPreDepsReady transitions n out of NOT_PROCESSED once every
// pre-build edge has reached UP_TO_DATE.
func (g *Graph) AdvanceToPreDepsReady(n *Node) bool {
	if n.State != NotProcessed {
		return n.State != Building && n.State != Failed
	}
	for _, idx := range n.PreBuild {
		if g.Node(idx).State != UpToDate {
			return false
		}
	}
	n.State = PreDepsReady
	return true
}

// AdvanceToStaticDepsReady transitions n once every static dependency has
// reached UP_TO_DATE (or FAILED, in which case n is marked FAILED too,
// propagating dependency failure to consumers per the error-handling
// design).
func (g *Graph) AdvanceToStaticDepsReady(n *Node) bool {
	if n.State != PreDepsReady {
		return n.State == StaticDepsReady || n.State == DynamicDepsDone
	}
	for _, e := range n.Static {
		dep := g.Node(e.To)
		if dep.State == Failed && !e.Weak {
			n.State = Failed
			return false
		}
		if dep.State != UpToDate {
			return false
		}
	}
	n.State = StaticDepsReady
	return true
}

// AdvanceToDynamicDepsDone transitions n once every dynamic dependency (as
// gathered so far) has reached UP_TO_DATE.
func (g *Graph) AdvanceToDynamicDepsDone(n *Node) bool {
	if n.State != StaticDepsReady {
		return n.State == DynamicDepsDone
	}
	for _, e := range n.Dynamic {
		dep := g.Node(e.To)
		if dep.State == Failed && !e.Weak {
			n.State = Failed
			return false
		}
		if dep.State != UpToDate {
			return false
		}
	}
	n.State = DynamicDepsDone
	return true
}
