package cache

import (
	"fmt"
	"plugin"

	"github.com/forgebuild/forge/fingerprint"
)

// pluginSymbols names the C-style entry points a cache plugin must (and may)
// export, per spec.md §4.4's "Pluggability" section. Mangled names are
// platform-conditional in the original tool; forge instead loads a Go
// plugin (built with `go build -buildmode=plugin`) exporting these exact Go
// identifiers, since cgo-based dynamic symbol mangling has no portable
// stdlib equivalent.
type pluginSymbols struct {
	init        func(settings string) bool
	shutdown    func()
	publish     func(key string, data []byte) bool
	retrieve    func(key string) ([]byte, bool)
	freeMemory  func([]byte)
	outputInfo  func() string
	trim        func(sizeMiB int) bool
}

// PluginCache adapts a dynamically loaded backend to the nodes.Cache shape.
// It degrades to a FilesystemCache transparently if the plugin is missing
// any required symbol.
type PluginCache struct {
	syms     pluginSymbols
	fallback *FilesystemCache
}

// LoadPlugin opens the shared object at path and resolves its five required
// symbols (init, shutdown, publish, retrieve, free_memory) plus its two
// optional ones (output_info, trim). fallbackDir is the root of the built-in
// filesystem cache that serves every call if required symbols are missing;
// payloads retrieved from a loaded plugin are written straight to their
// destination path.
func LoadPlugin(path, fallbackDir string) (*PluginCache, error) {
	fallback, err := New(fallbackDir)
	if err != nil {
		return nil, err
	}
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cache: open plugin %s: %w", path, err)
	}

	pc := &PluginCache{fallback: fallback}
	required := map[string]interface{}{
		"CacheInit":       &pc.syms.init,
		"CacheShutdown":   &pc.syms.shutdown,
		"CachePublish":    &pc.syms.publish,
		"CacheRetrieve":   &pc.syms.retrieve,
		"CacheFreeMemory": &pc.syms.freeMemory,
	}
	for name, slot := range required {
		sym, err := p.Lookup(name)
		if err != nil {
			// Missing a required entry point: degrade to the built-in
			// filesystem cache entirely, per spec.md §4.4.
			pc.syms = pluginSymbols{}
			return pc, nil
		}
		assignSymbol(slot, sym)
	}
	if sym, err := p.Lookup("CacheOutputInfo"); err == nil {
		if fn, ok := sym.(func() string); ok {
			pc.syms.outputInfo = fn
		}
	}
	if sym, err := p.Lookup("CacheTrim"); err == nil {
		if fn, ok := sym.(func(int) bool); ok {
			pc.syms.trim = fn
		}
	}
	if pc.syms.init != nil {
		pc.syms.init("")
	}
	return pc, nil
}

// assignSymbol copies a resolved plugin symbol into its typed slot, or
// leaves the slot nil (keeping loaded() false) if the exported symbol's
// type doesn't match what forge expects.
func assignSymbol(slot interface{}, sym plugin.Symbol) {
	switch s := slot.(type) {
	case *func(string) bool:
		if fn, ok := sym.(func(string) bool); ok {
			*s = fn
		}
	case *func():
		if fn, ok := sym.(func()); ok {
			*s = fn
		}
	case *func(string, []byte) bool:
		if fn, ok := sym.(func(string, []byte) bool); ok {
			*s = fn
		}
	case *func(string) ([]byte, bool):
		if fn, ok := sym.(func(string) ([]byte, bool)); ok {
			*s = fn
		}
	case *func([]byte):
		if fn, ok := sym.(func([]byte)); ok {
			*s = fn
		}
	}
}

func (pc *PluginCache) loaded() bool {
	return pc.syms.publish != nil && pc.syms.retrieve != nil
}

func (pc *PluginCache) keyString(a fingerprint.Hash128, b uint32, c uint64) string {
	return fmt.Sprintf("%x_%x_%x", a, b, c)
}

// Publish satisfies nodes.Cache, routing to the loaded plugin when present
// and to the built-in filesystem store otherwise.
func (pc *PluginCache) Publish(a fingerprint.Hash128, b uint32, c uint64, srcPath string) error {
	if !pc.loaded() {
		return pc.fallback.Publish(a, b, c, srcPath)
	}
	raw, err := readAll(srcPath)
	if err != nil {
		return err
	}
	if !pc.syms.publish(pc.keyString(a, b, c), fingerprint.Compress(raw)) {
		return fmt.Errorf("cache: plugin publish miss for %s", srcPath)
	}
	return nil
}

// Retrieve satisfies nodes.Cache.
func (pc *PluginCache) Retrieve(a fingerprint.Hash128, b uint32, c uint64, destPath string) (bool, error) {
	if !pc.loaded() {
		return pc.fallback.Retrieve(a, b, c, destPath)
	}
	data, ok := pc.syms.retrieve(pc.keyString(a, b, c))
	if !ok {
		return false, nil
	}
	if pc.syms.freeMemory != nil {
		defer pc.syms.freeMemory(data)
	}
	raw, err := fingerprint.Decompress(data)
	if err != nil {
		return false, nil
	}
	if err := writeAll(destPath, raw); err != nil {
		return false, err
	}
	return true, nil
}

// Shutdown releases the plugin backend, if one is loaded.
func (pc *PluginCache) Shutdown() {
	if pc.syms.shutdown != nil {
		pc.syms.shutdown()
	}
}

// OutputInfo reports the plugin's diagnostic string, if it exposes one.
func (pc *PluginCache) OutputInfo() string {
	if pc.syms.outputInfo != nil {
		return pc.syms.outputInfo()
	}
	return ""
}

// Trim asks the plugin backend to shrink to sizeMiB, if it supports
// trimming. It is a no-op (returning false) against the filesystem
// fallback, which has no configured size bound.
func (pc *PluginCache) Trim(sizeMiB int) bool {
	if pc.syms.trim != nil {
		return pc.syms.trim(sizeMiB)
	}
	return false
}
