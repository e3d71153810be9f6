// Package entity holds the authoritative network records for players, items
// and creatures.
package entity

import (
	"maps"
	"slices"
	"sync"
)

// Table maps network ids to records and hands out fresh ids. Ids are never
// reused, even after Clear.
type Table[T any] struct {
	mu   sync.RWMutex
	last int64
	rows map[int64]T
}

func NewTable[T any]() *Table[T] {
	return &Table[T]{rows: make(map[int64]T)}
}

// NextID reserves the next network id.
func (t *Table[T]) NextID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last++
	return t.last
}

// Put stores v under id, replacing any previous record.
func (t *Table[T]) Put(id int64, v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[id] = v
}

func (t *Table[T]) Get(id int64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.rows[id]
	return v, ok
}

// Delete removes id and reports whether it was present.
func (t *Table[T]) Delete(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.rows[id]
	delete(t.rows, id)
	return ok
}

func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Values returns the records ordered by id.
func (t *Table[T]) Values() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(t.rows))
	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = t.rows[id]
	}
	return out
}

// Find returns the lowest-id record accepted by match.
func (t *Table[T]) Find(match func(T) bool) (T, bool) {
	for _, v := range t.Values() {
		if match(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Clear drops every record. The id sequence keeps counting.
func (t *Table[T]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.rows)
}
