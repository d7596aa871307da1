package binquery

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and embedding. It honors
// the same contracts as a real store, including the imprecision of
// secondary-index filters: contains and range filters over collection
// bins match coarsely (any element), so callers get the false
// positives the residual predicate exists to remove.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]map[string]map[string]*Record // ns -> set -> pk
	indexes map[string]map[string]IndexDescriptor    // ns -> name
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[string]map[string]map[string]*Record),
		indexes: make(map[string]map[string]IndexDescriptor),
	}
}

// Put writes a record's bins, bumping generation and last-update-time
func (m *MemStore) Put(namespace, set, userKey string, bins map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sets, ok := m.records[namespace]
	if !ok {
		sets = make(map[string]map[string]*Record)
		m.records[namespace] = sets
	}
	recs, ok := sets[set]
	if !ok {
		recs = make(map[string]*Record)
		sets[set] = recs
	}

	var gen uint32 = 1
	if prev, ok := recs[userKey]; ok {
		gen = prev.Generation + 1
	}
	recs[userKey] = &Record{
		Bins:       bins,
		Generation: gen,
		LastUpdate: time.Now().UnixMilli(),
	}
}

// PutWithMeta writes a record with explicit TTL and last-update-time,
// for exercising metadata qualifiers.
func (m *MemStore) PutWithMeta(namespace, set, userKey string, bins map[string]interface{}, ttl, lastUpdate int64) {
	m.Put(namespace, set, userKey, bins)
	m.mu.Lock()
	rec := m.records[namespace][set][userKey]
	rec.TTL = ttl
	rec.LastUpdate = lastUpdate
	m.mu.Unlock()
}

// Delete removes a record
func (m *MemStore) Delete(namespace, set, userKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if recs, ok := m.records[namespace][set]; ok {
		delete(recs, userKey)
	}
}

// Query runs a secondary-index query. Fails with ErrUnsupportedQuery
// when no index serves the filter, as a real store would.
func (m *MemStore) Query(ctx context.Context, namespace, set string, filter *Filter) (Cursor, error) {
	if filter == nil {
		return m.Scan(ctx, namespace, set)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasIndexLocked(namespace, set, filter) {
		return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
			"namespace": namespace,
			"set":       set,
			"filter":    filter.String(),
		})
	}

	var entries []KeyRecord
	for _, userKey := range m.sortedKeysLocked(namespace, set) {
		rec := m.records[namespace][set][userKey]
		val, ok := rec.Bins[filter.Bin]
		if !ok {
			continue
		}
		if matchFilter(val, filter) {
			entries = append(entries, KeyRecord{
				Key:    Key{Namespace: namespace, Set: set, UserKey: userKey},
				Record: rec,
			})
		}
	}
	return newSliceCursor(entries), nil
}

// Scan iterates every record in the set
func (m *MemStore) Scan(ctx context.Context, namespace, set string) (Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []KeyRecord
	for _, userKey := range m.sortedKeysLocked(namespace, set) {
		entries = append(entries, KeyRecord{
			Key:    Key{Namespace: namespace, Set: set, UserKey: userKey},
			Record: m.records[namespace][set][userKey],
		})
	}
	return newSliceCursor(entries), nil
}

// MultiGet fetches records by primary key; missing keys are skipped
func (m *MemStore) MultiGet(ctx context.Context, namespace, set string, userKeys []string) ([]KeyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []KeyRecord
	for _, userKey := range userKeys {
		rec, ok := m.records[namespace][set][userKey]
		if !ok {
			continue
		}
		out = append(out, KeyRecord{
			Key:    Key{Namespace: namespace, Set: set, UserKey: userKey},
			Record: rec,
		})
	}
	return out, nil
}

// ListIndexes enumerates index metadata for a namespace
func (m *MemStore) ListIndexes(ctx context.Context, namespace string) ([]IndexDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byName := m.indexes[namespace]
	out := make([]IndexDescriptor, 0, len(byName))
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, byName[name])
	}
	return out, nil
}

// CreateIndex registers a secondary index
func (m *MemStore) CreateIndex(ctx context.Context, desc IndexDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns := desc.Field.Namespace
	byName, ok := m.indexes[ns]
	if !ok {
		byName = make(map[string]IndexDescriptor)
		m.indexes[ns] = byName
	}
	if _, exists := byName[desc.Name]; exists {
		return WithContext(ErrIndexExists, map[string]interface{}{
			"index":     desc.Name,
			"namespace": ns,
		})
	}
	byName[desc.Name] = desc
	return nil
}

// DropIndex removes a secondary index
func (m *MemStore) DropIndex(ctx context.Context, namespace, set, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byName := m.indexes[namespace]
	if d, ok := byName[name]; !ok || d.Field.Set != set {
		return WithContext(ErrIndexNotFound, map[string]interface{}{
			"index":     name,
			"namespace": namespace,
			"set":       set,
		})
	}
	delete(byName, name)
	return nil
}

// Ping always succeeds for the in-memory store
func (m *MemStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store
func (m *MemStore) Close() error { return nil }

func (m *MemStore) sortedKeysLocked(namespace, set string) []string {
	recs := m.records[namespace][set]
	keys := make([]string, 0, len(recs))
	for k := range recs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemStore) hasIndexLocked(namespace, set string, filter *Filter) bool {
	for _, d := range m.indexes[namespace] {
		if d.Field.Set == set && d.Field.Bin == filter.Bin && d.Collection == filter.Collection {
			return true
		}
	}
	return false
}

// matchFilter applies a secondary-index filter to one bin value, with
// the same coarseness a physical index has.
func matchFilter(val interface{}, f *Filter) bool {
	switch f.Kind {
	case FilterEqual:
		return equalValues(val, f.Value, false)

	case FilterRange:
		if n, ok := asFloat(val); ok {
			return n >= float64(f.Begin) && n <= float64(f.End)
		}
		// collection bins match when any element falls in range
		if list, ok := val.([]interface{}); ok {
			for _, el := range list {
				if n, ok := asFloat(el); ok && n >= float64(f.Begin) && n <= float64(f.End) {
					return true
				}
			}
		}
		if mp, ok := asMap(val); ok {
			for _, v := range mp {
				if n, ok := asFloat(v); ok && n >= float64(f.Begin) && n <= float64(f.End) {
					return true
				}
			}
		}
		return false

	case FilterContains:
		switch f.Collection {
		case CollectionList:
			list, ok := val.([]interface{})
			if !ok {
				return false
			}
			for _, el := range list {
				if equalValues(el, f.Value, false) {
					return true
				}
			}
		case CollectionMapKeys:
			mp, ok := asMap(val)
			if !ok {
				return false
			}
			for k := range mp {
				if equalValues(k, f.Value, false) {
					return true
				}
			}
		case CollectionMapValues:
			mp, ok := asMap(val)
			if !ok {
				return false
			}
			for _, v := range mp {
				if equalValues(v, f.Value, false) {
					return true
				}
			}
		}
		return false

	case FilterGeoWithin:
		region, ok := f.Value.(string)
		return ok && geoWithin(val, region)
	}
	return false
}
