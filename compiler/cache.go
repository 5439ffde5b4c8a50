package compiler

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// unitCache holds the compiled unit of every file by absolute path. Only
// the most recent fingerprint of a path is kept.
type unitCache struct {
	mu    sync.RWMutex
	units map[string]*CompiledUnit
	group singleflight.Group
}

func newUnitCache() *unitCache {
	return &unitCache{units: make(map[string]*CompiledUnit)}
}

func (c *unitCache) lookup(path, fingerprint string) *CompiledUnit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if u, ok := c.units[path]; ok && u.Fingerprint == fingerprint {
		return u
	}
	return nil
}

func (c *unitCache) store(u *CompiledUnit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units[u.Path] = u
}

// do returns the cached unit for (path, fingerprint), building it with fn
// on a miss. Concurrent callers for the same key share one build; the unit
// is visible to readers only once it is complete.
func (c *unitCache) do(path, fingerprint string, fn func() (*CompiledUnit, error)) (*CompiledUnit, bool, error) {
	if u := c.lookup(path, fingerprint); u != nil {
		return u, true, nil
	}
	v, err, _ := c.group.Do(path+"\x00"+fingerprint, func() (interface{}, error) {
		if u := c.lookup(path, fingerprint); u != nil {
			return u, nil
		}
		u, err := fn()
		if err != nil {
			return nil, err
		}
		c.store(u)
		return u, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*CompiledUnit), false, nil
}

func (c *unitCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.units, path)
}

func (c *unitCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.units)
}
