package browser

import "sync"

// ScanCache memoizes driver scan results between mutations. The agent
// invalidates it whenever the mutation observer fires, so entries never
// outlive the DOM state they describe.
type ScanCache struct {
	mu      sync.Mutex
	entries map[string]any
}

// NewScanCache creates an empty cache.
func NewScanCache() *ScanCache {
	return &ScanCache{entries: make(map[string]any)}
}

// CachedScan implements schemas.QueryCache.
func (c *ScanCache) CachedScan(key string, producer func() (any, error)) (any, error) {
	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	// Producers hit the browser; holding the lock across the call would
	// serialize unrelated scans.
	v, err := producer()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = v
	c.mu.Unlock()
	return v, nil
}

// Invalidate implements schemas.QueryCache.
func (c *ScanCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]any)
	c.mu.Unlock()
}
