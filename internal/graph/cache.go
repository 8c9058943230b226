package graph

import "sync"

// calcCache is the two-level memo store: node name -> period -> value.
// It carries its own RWMutex so concurrent Calculate calls (which hold the
// graph's read lock) can fill it safely.
type calcCache struct {
	mu      sync.RWMutex
	entries map[string]map[Period]float64
}

func newCalcCache() *calcCache {
	return &calcCache{entries: make(map[string]map[Period]float64)}
}

func (c *calcCache) get(name string, p Period) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	periods, ok := c.entries[name]
	if !ok {
		return 0, false
	}
	v, ok := periods[p]
	return v, ok
}

func (c *calcCache) put(name string, p Period, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	periods, ok := c.entries[name]
	if !ok {
		periods = make(map[Period]float64)
		c.entries[name] = periods
	}
	periods[p] = v
}

// clearNode removes every cached period for one node.
func (c *calcCache) clearNode(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}

// clearAll empties the cache entirely.
func (c *calcCache) clearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]map[Period]float64)
}

// len reports the number of cached (node, period) pairs.
func (c *calcCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, periods := range c.entries {
		n += len(periods)
	}
	return n
}

// snapshot returns a deep copy of the cache contents, used by tests and by
// atomicity checks that need byte-for-byte comparison of engine state.
func (c *calcCache) snapshot() map[string]map[Period]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]map[Period]float64, len(c.entries))
	for name, periods := range c.entries {
		ps := make(map[Period]float64, len(periods))
		for p, v := range periods {
			ps[p] = v
		}
		out[name] = ps
	}
	return out
}
