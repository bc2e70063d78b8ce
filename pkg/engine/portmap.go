package engine

import (
	"sort"
	"sync"
)

// PortMap remembers which VIP port was plugged for each deployed pool, so
// teardown knows which device to detach. It lives as long as the engine and
// is not persisted.
type PortMap struct {
	mu    sync.RWMutex
	ports map[string]string
}

// NewPortMap creates an empty map
func NewPortMap() *PortMap {
	return &PortMap{ports: make(map[string]string)}
}

// Set records the port of a pool
func (p *PortMap) Set(poolID, portID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ports[poolID] = portID
}

// Get returns the port recorded for a pool
func (p *PortMap) Get(poolID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	portID, ok := p.ports[poolID]
	return portID, ok
}

// Delete forgets a pool
func (p *PortMap) Delete(poolID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.ports, poolID)
}

// Len returns the number of pools recorded
func (p *PortMap) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.ports)
}

// Pools returns the recorded pool ids in sorted order
func (p *PortMap) Pools() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.ports))
	for id := range p.ports {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
