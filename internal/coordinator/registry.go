package coordinator

import "sync"

// Registry tracks the running coordinators, one per configured account.
// Service calls address a feeder by id; the registry finds the coordinator
// that owns it.
type Registry struct {
	mu           sync.RWMutex
	coordinators []*Coordinator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a coordinator.
func (r *Registry) Add(c *Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coordinators = append(r.coordinators, c)
}

// All returns the registered coordinators.
func (r *Registry) All() []*Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Coordinator, len(r.coordinators))
	copy(out, r.coordinators)
	return out
}

// Lookup returns the coordinator owning the given feeder. When no
// coordinator claims the id, the first registered one is returned so a
// postcard collect can still be attempted against the account that most
// likely produced it.
func (r *Registry) Lookup(feederID string) (*Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.coordinators {
		if _, ok := c.Feeder(feederID); ok {
			return c, true
		}
	}
	if len(r.coordinators) > 0 {
		return r.coordinators[0], false
	}
	return nil, false
}
