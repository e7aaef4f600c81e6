package lightcache

// Accelerator adapts Cache to the nodes.LightCache shape used by the
// dependency graph's ObjectNode: one Fingerprint call per translation
// unit, each running its own scan with fresh per-call state while sharing
// the process-wide file memo underneath.
type Accelerator struct{}

// NewAccelerator returns a LightCache-compatible accelerator. It carries no
// state of its own; the expensive memoization lives in the package-level
// shared buckets so every Accelerator (and every goroutine) benefits from
// it equally.
func NewAccelerator() *Accelerator {
	return &Accelerator{}
}

// Fingerprint satisfies graph/nodes.LightCache.
func (a *Accelerator) Fingerprint(path string, includeDirs []string) (uint64, bool, error) {
	return New().Hash(path, includeDirs)
}
