// Package registry owns the set of tracked entities.
package registry

import (
	"sort"
	"sync"

	"github.com/m0rik/panenap/internal/model"
)

// Registry is the mutable home of tracked entities. The observer is its only
// writer; the engine reads point-in-time snapshots through List.
type Registry struct {
	mu       sync.Mutex
	entities map[string]model.TrackedEntity
}

func New() *Registry {
	return &Registry{entities: make(map[string]model.TrackedEntity)}
}

// Register inserts or replaces an entity.
func (r *Registry) Register(e model.TrackedEntity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[e.EntityID] = e
}

// Unregister removes an entity, returning it so the caller can resume its
// related processes before it is forgotten.
func (r *Registry) Unregister(id string) (model.TrackedEntity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if ok {
		delete(r.entities, id)
	}
	return e, ok
}

// Get returns the tracked entity for id, if any.
func (r *Registry) Get(id string) (model.TrackedEntity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	return e, ok
}

// SetVisible updates an entity's visibility flag and reports whether the
// flag actually changed. Unknown ids change nothing.
func (r *Registry) SetVisible(id string, visible bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok || e.Visible == visible {
		return false
	}
	e.Visible = visible
	r.entities[id] = e
	return true
}

func (r *Registry) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entities) == 0
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entities)
}

// List returns a snapshot copy sorted by entity id. Mutating the returned
// slice never affects the registry.
func (r *Registry) List() []model.TrackedEntity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.TrackedEntity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}
