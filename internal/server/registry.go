package server

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"geolayer/internal/layer"
)

// entry guards one layer. Readers share the lock; edits, classification
// and selection take it exclusively.
type entry struct {
	mu    sync.RWMutex
	layer *layer.VectorLayer
}

// Registry holds the layers served over HTTP, keyed by layer ID.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[uuid.UUID]*entry)}
}

// Add registers v under its own ID.
func (r *Registry) Add(v *layer.VectorLayer) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[v.ID] = &entry{layer: v}
	return v.ID
}

func (r *Registry) get(id uuid.UUID) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// IDs returns the registered IDs in string order.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
