package main

import (
	"github.com/forgebuild/forge/cache"
	"github.com/forgebuild/forge/cache/lightcache"
	"github.com/forgebuild/forge/dist"
	"github.com/forgebuild/forge/graph/nodes"
)

// cacheSeam, lightCacheSeam and distributorSeam convert a possibly-nil
// concrete pointer into a possibly-nil interface value. Passing a nil
// *cache.FilesystemCache straight through as a nodes.Cache would produce a
// non-nil interface wrapping a nil pointer, which ObjectNode's "o.Cache !=
// nil" checks would then treat as present.

func cacheSeam(c *cache.FilesystemCache) nodes.Cache {
	if c == nil {
		return nil
	}
	return c
}

func lightCacheSeam(c *lightcache.Accelerator) nodes.LightCache {
	if c == nil {
		return nil
	}
	return c
}

func distributorSeam(c *dist.Client) nodes.Distributor {
	if c == nil || *race {
		// Racing mode dispatches remotely through the scheduler's Racer
		// instead, so ObjectNode must not also hold a Distributor or it
		// would dispatch the same job remotely twice per build.
		return nil
	}
	return c
}
