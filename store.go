package binquery

import (
	"context"
	"fmt"
)

// Key identifies a record in the store
type Key struct {
	Namespace string
	Set       string
	UserKey   string
}

func (k Key) String() string {
	return k.Namespace + "/" + k.Set + "/" + k.UserKey
}

// Record is one stored record: its bins plus the metadata fields
// metadata qualifiers can target.
type Record struct {
	Bins map[string]interface{}

	// Generation counts writes to the record.
	Generation uint32

	// TTL is the remaining time to live in seconds, 0 for no expiry.
	TTL int64

	// LastUpdate is the last-update-time in milliseconds since epoch.
	LastUpdate int64
}

// KeyRecord pairs a record with its key
type KeyRecord struct {
	Key    Key
	Record *Record
}

// FilterKind is the shape of a secondary-index filter
type FilterKind int

const (
	FilterEqual FilterKind = iota + 1
	FilterRange
	FilterContains
	FilterGeoWithin
)

func (k FilterKind) String() string {
	switch k {
	case FilterEqual:
		return "equal"
	case FilterRange:
		return "range"
	case FilterContains:
		return "contains"
	case FilterGeoWithin:
		return "geo-within"
	default:
		return "unknown"
	}
}

// Filter is the single secondary-index filter a statement may carry.
// It narrows the candidate set server-side; it is never trusted as
// exact (see CompiledStatement).
type Filter struct {
	Bin        string
	Kind       FilterKind
	Collection CollectionType

	// Value holds the operand for equal/contains filters and the
	// region for geo filters.
	Value interface{}

	// Begin and End bound range filters, both inclusive.
	Begin int64
	End   int64
}

func (f *Filter) String() string {
	switch f.Kind {
	case FilterRange:
		return fmt.Sprintf("%s %s [%d..%d]", f.Bin, f.Kind, f.Begin, f.End)
	default:
		return fmt.Sprintf("%s %s %v", f.Bin, f.Kind, f.Value)
	}
}

// Cursor is a lazy, single-pass sequence of records from the store.
// After Next returns false, Err distinguishes exhaustion from a
// store-side failure. Close is idempotent and must always be called.
type Cursor interface {
	Next() bool
	Entry() KeyRecord
	Err() error
	Close() error
}

// Store is the query/scan API the core depends on. Implementations
// live outside the compiler: the engine treats these operations as
// given and owns no wire format.
type Store interface {
	// Query runs a secondary-index query. The filter narrows
	// candidates; exactness is the caller's problem.
	Query(ctx context.Context, namespace, set string, filter *Filter) (Cursor, error)

	// Scan iterates every record in the set.
	Scan(ctx context.Context, namespace, set string) (Cursor, error)

	// MultiGet fetches records by primary key. Missing keys are
	// silently absent from the result.
	MultiGet(ctx context.Context, namespace, set string, userKeys []string) ([]KeyRecord, error)

	// ListIndexes enumerates secondary-index metadata for a namespace.
	ListIndexes(ctx context.Context, namespace string) ([]IndexDescriptor, error)

	// CreateIndex builds a secondary index. Fails with ErrIndexExists
	// when an index of that name is already present.
	CreateIndex(ctx context.Context, desc IndexDescriptor) error

	// DropIndex removes a secondary index. Fails with ErrIndexNotFound
	// when no such index exists.
	DropIndex(ctx context.Context, namespace, set, name string) error

	// Ping checks store health.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// sliceCursor adapts an in-memory result slice to the Cursor interface
type sliceCursor struct {
	entries []KeyRecord
	pos     int
	closed  bool
}

func newSliceCursor(entries []KeyRecord) *sliceCursor {
	return &sliceCursor{entries: entries, pos: -1}
}

func (c *sliceCursor) Next() bool {
	if c.closed || c.pos+1 >= len(c.entries) {
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Entry() KeyRecord { return c.entries[c.pos] }
func (c *sliceCursor) Err() error       { return nil }
func (c *sliceCursor) Close() error {
	c.closed = true
	return nil
}
