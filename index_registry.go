package binquery

import (
	"sync"
	"sync/atomic"
)

// indexSnapshot is an immutable view of the cache: field -> index name
// -> descriptor. Snapshots are never mutated after publication.
type indexSnapshot map[IndexedField]map[string]IndexDescriptor

// IndexRegistry is the in-memory cache of secondary-index metadata,
// keyed by (namespace, set, bin, context).
//
// Reads are lock-free: the current snapshot hangs off an atomic pointer
// and writers publish a fresh copy instead of mutating in place, so a
// reader never observes a partially-updated registry. Writers (the
// refresher and explicit create/drop calls) serialize on a mutex.
type IndexRegistry struct {
	snap atomic.Pointer[indexSnapshot]
	mu   sync.Mutex
}

// NewIndexRegistry creates an empty registry
func NewIndexRegistry() *IndexRegistry {
	r := &IndexRegistry{}
	empty := make(indexSnapshot)
	r.snap.Store(&empty)
	return r
}

// HasIndexFor reports whether at least one index exists for the field
func (r *IndexRegistry) HasIndexFor(field IndexedField) bool {
	snap := *r.snap.Load()
	return len(snap[field]) > 0
}

// Lookup returns all index variants for a field. A field may be served
// by multiple physical indexes (e.g. a STRING and a NUMERIC index on
// the same bin). The returned slice is a copy.
func (r *IndexRegistry) Lookup(field IndexedField) ([]IndexDescriptor, bool) {
	snap := *r.snap.Load()
	byName, ok := snap[field]
	if !ok || len(byName) == 0 {
		return nil, false
	}
	out := make([]IndexDescriptor, 0, len(byName))
	for _, d := range byName {
		out = append(out, d)
	}
	return out, true
}

// ReplaceAll atomically swaps the registry contents for the given
// descriptors. Used by the refresher to publish a full store snapshot.
func (r *IndexRegistry) ReplaceAll(descriptors []IndexDescriptor) {
	next := make(indexSnapshot, len(descriptors))
	for _, d := range descriptors {
		byName, ok := next[d.Field]
		if !ok {
			byName = make(map[string]IndexDescriptor)
			next[d.Field] = byName
		}
		byName[d.Name] = d
	}

	r.mu.Lock()
	r.snap.Store(&next)
	r.mu.Unlock()
}

// Add inserts or replaces a single descriptor, following an explicit
// create-index call.
func (r *IndexRegistry) Add(d IndexDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.cloneLocked()
	byName, ok := next[d.Field]
	if !ok {
		byName = make(map[string]IndexDescriptor)
		next[d.Field] = byName
	}
	byName[d.Name] = d
	r.snap.Store(&next)
}

// Remove drops a single descriptor by field and index name, following
// an explicit drop-index call. Returns false if no such entry existed.
func (r *IndexRegistry) Remove(field IndexedField, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.snap.Load()
	if _, ok := cur[field][name]; !ok {
		return false
	}

	next := r.cloneLocked()
	delete(next[field], name)
	if len(next[field]) == 0 {
		delete(next, field)
	}
	r.snap.Store(&next)
	return true
}

// RemoveNamed drops a descriptor located by namespace, set and index
// name, for callers that do not hold the full field key.
func (r *IndexRegistry) RemoveNamed(namespace, set, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.snap.Load()
	for field, byName := range cur {
		if field.Namespace != namespace || field.Set != set {
			continue
		}
		if _, ok := byName[name]; !ok {
			continue
		}
		next := r.cloneLocked()
		delete(next[field], name)
		if len(next[field]) == 0 {
			delete(next, field)
		}
		r.snap.Store(&next)
		return true
	}
	return false
}

// Len returns the number of descriptors currently cached
func (r *IndexRegistry) Len() int {
	snap := *r.snap.Load()
	n := 0
	for _, byName := range snap {
		n += len(byName)
	}
	return n
}

// cloneLocked deep-copies the current snapshot. Callers hold mu.
func (r *IndexRegistry) cloneLocked() indexSnapshot {
	cur := *r.snap.Load()
	next := make(indexSnapshot, len(cur))
	for field, byName := range cur {
		copied := make(map[string]IndexDescriptor, len(byName))
		for name, d := range byName {
			copied[name] = d
		}
		next[field] = copied
	}
	return next
}
