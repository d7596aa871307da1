package binquery

// IndexType is the value type a secondary index covers
type IndexType string

const (
	IndexString       IndexType = "STRING"
	IndexNumeric      IndexType = "NUMERIC"
	IndexGeo2DSphere  IndexType = "GEO2DSPHERE"
	IndexBlob         IndexType = "BLOB"
)

// CollectionType is the part of a collection bin an index covers
type CollectionType string

const (
	CollectionDefault   CollectionType = "DEFAULT"
	CollectionList      CollectionType = "LIST"
	CollectionMapKeys   CollectionType = "MAPKEYS"
	CollectionMapValues CollectionType = "MAPVALUES"
)

// IndexedField identifies a candidate index target. It is the registry
// key: equality is by all four fields, with the context path in its
// canonical string form so the struct stays comparable.
type IndexedField struct {
	Namespace string
	Set       string
	Bin       string
	Context   string // canonical ContextPath form, "" for top-level bins
}

// NewIndexedField builds a registry key for a bin, optionally scoped to
// a nested context path.
func NewIndexedField(namespace, set, bin string, path ContextPath) IndexedField {
	return IndexedField{
		Namespace: namespace,
		Set:       set,
		Bin:       bin,
		Context:   path.String(),
	}
}

func (f IndexedField) String() string {
	s := f.Namespace + "." + f.Set + "." + f.Bin
	if f.Context != "" {
		s += "." + f.Context
	}
	return s
}

// IndexDescriptor describes one physical secondary index known to the
// store. Descriptors are cache entries, not authority: the store is the
// source of truth and the cache may lag briefly between refreshes.
type IndexDescriptor struct {
	// Name is unique per namespace+set.
	Name string

	Field      IndexedField
	Type       IndexType
	Collection CollectionType

	// Path is the decoded context chain, nil for top-level bins.
	Path ContextPath

	// WireContext is the serialized context blob as reported by the
	// store's metadata; decoded via DecodeWireContext on refresh.
	WireContext string
}
