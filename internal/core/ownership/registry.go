// Package ownership tracks which client holds write authority over each
// networked entity.
package ownership

import (
	"maps"
	"slices"
	"sync"
)

// Transfer describes the outcome of a claim.
type Transfer struct {
	Previous  int64
	HadHolder bool
}

// Changed reports whether the claim moved authority away from another client.
func (t Transfer) Changed(claimant int64) bool {
	return t.HadHolder && t.Previous != claimant
}

// Registry maps entity ids to the client holding them. Each id has at most
// one holder; a missing entry means the entity is unowned.
type Registry struct {
	mu      sync.Mutex
	holders map[int64]int64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{holders: make(map[int64]int64)}
}

// Claim makes client the holder of id, overwriting any previous holder.
func (r *Registry) Claim(id, client int64) Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, had := r.holders[id]
	r.holders[id] = client
	return Transfer{Previous: prev, HadHolder: had}
}

// Owner returns the holder of id, if any.
func (r *Registry) Owner(id int64) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.holders[id]
	return client, ok
}

// Release leaves id unowned. Releasing an unowned id is a no-op.
func (r *Registry) Release(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.holders, id)
}

// OwnedBy lists the ids held by client in ascending order.
func (r *Registry) OwnedBy(client int64) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownedByLocked(client)
}

func (r *Registry) ownedByLocked(client int64) []int64 {
	var ids []int64
	for id, holder := range r.holders {
		if holder == client {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Migrate hands every id held by from over to to and returns them.
func (r *Registry) Migrate(from, to int64) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.ownedByLocked(from)
	for _, id := range ids {
		r.holders[id] = to
	}
	return ids
}

// Clear drops every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.holders)
}

// Len returns the number of owned entities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.holders)
}

// Snapshot copies the id to holder table.
func (r *Registry) Snapshot() map[int64]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.holders)
}
