package binquery

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// CompiledStatement is the result of compiling a qualifier tree: at
// most one secondary-index filter plus the residual predicate.
//
// When Filter is non-nil the residual must still be evaluated against
// every returned record: composite-bin indexes (MAPKEYS/MAPVALUES) are
// not exact, so the filter only narrows the candidate set and the
// residual stays the authority for correctness.
type CompiledStatement struct {
	// ID correlates log lines and metrics for one statement.
	ID string

	Namespace string
	Set       string

	// Filter is the single secondary-index filter, nil when no
	// indexable leaf was found.
	Filter *Filter

	// Residual is the full qualifier tree, evaluated per record.
	Residual *Qualifier

	// FullScanRequired is set when neither a filter nor an id path
	// could serve the statement.
	FullScanRequired bool

	// IDKeys is non-nil for primary-key statements, which bypass the
	// filter/scan path entirely and compile to a multi-get.
	IDKeys []string
}

// Engine compiles qualifier trees into statements and executes them
// against the store. Compile is pure and synchronous; only Execute
// touches store I/O.
type Engine struct {
	store    Store
	registry *IndexRegistry
	guard    *ScanGuard
	logger   Logger
	metrics  Metrics

	namespace string
}

// NewEngine creates an engine bound to a store, an index registry and
// a namespace, with no-op logging and metrics.
func NewEngine(store Store, registry *IndexRegistry, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		store:     store,
		registry:  registry,
		guard:     NewScanGuard(cfg.ScansEnabled),
		logger:    &NoOpLogger{},
		metrics:   &NoOpMetrics{},
		namespace: cfg.Namespace,
	}, nil
}

// WithLogger sets the logger for this engine
func (e *Engine) WithLogger(logger Logger) *Engine {
	e.logger = logger
	return e
}

// WithMetrics sets the metrics collector for this engine
func (e *Engine) WithMetrics(metrics Metrics) *Engine {
	e.metrics = metrics
	return e
}

// Guard exposes the engine's scan guard
func (e *Engine) Guard() *ScanGuard { return e.guard }

// ExecOption customizes a single Execute call
type ExecOption func(*execOptions)

type execOptions struct {
	allowFullScan bool
}

// AllowFullScan permits a full scan for this call only, overriding a
// disabled scan guard.
func AllowFullScan() ExecOption {
	return func(o *execOptions) { o.allowFullScan = true }
}

// Compile turns a qualifier tree into a statement for a set.
//
// Selection of the physical index filter: a leaf qualifies iff it is
// not a metadata or id qualifier, has no context path, its operation
// has a direct secondary-index equivalent, and the registry knows a
// compatible index for its bin. At most one leaf across the whole tree
// becomes the filter; candidates are only taken under the outermost
// AND chain (never inside an OR, whose filter would wrongly exclude
// records matching sibling branches), and the first indexable leaf in
// pre-order wins. That tie-break is a documented policy, not an
// optimizer choice.
func (e *Engine) Compile(set string, q *Qualifier) (*CompiledStatement, error) {
	if q == nil {
		return nil, WithContext(ErrInvalidQualifier, map[string]interface{}{
			"set":    set,
			"reason": "qualifier is nil",
		})
	}
	start := time.Now()

	stmt := &CompiledStatement{
		ID:        uuid.NewString(),
		Namespace: e.namespace,
		Set:       set,
		Residual:  q,
	}

	ids, hasIDs, err := collectIDKeys(q, false)
	if err != nil {
		return nil, err
	}
	if hasIDs {
		stmt.IDKeys = ids
		e.metrics.Timing(MetricCompileDuration, time.Since(start), "set", set)
		e.logger.Debug("compiled id statement",
			"statement", stmt.ID,
			"set", set,
			"keys", len(ids),
		)
		return stmt, nil
	}

	stmt.Filter = e.selectFilter(set, q)
	stmt.FullScanRequired = stmt.Filter == nil

	e.metrics.Timing(MetricCompileDuration, time.Since(start), "set", set)
	if stmt.Filter != nil {
		e.metrics.Increment(MetricIndexHits, "set", set)
		e.logger.Debug("compiled indexed statement",
			"statement", stmt.ID,
			"set", set,
			"filter", stmt.Filter.String(),
		)
	} else {
		e.metrics.Increment(MetricIndexMisses, "set", set)
		e.logger.Debug("compiled scan statement",
			"statement", stmt.ID,
			"set", set,
			"qualifier", q.String(),
		)
	}
	return stmt, nil
}

// Query compiles and executes in one step
func (e *Engine) Query(ctx context.Context, set string, q *Qualifier, opts ...ExecOption) (*ResultIterator, error) {
	stmt, err := e.Compile(set, q)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, stmt, opts...)
}

// Execute runs a compiled statement and returns a lazy result
// sequence. Records are residual-filtered before being yielded,
// regardless of execution path.
func (e *Engine) Execute(ctx context.Context, stmt *CompiledStatement, opts ...ExecOption) (*ResultIterator, error) {
	if stmt == nil {
		return nil, WithContext(ErrInvalidQualifier, map[string]interface{}{
			"reason": "statement is nil",
		})
	}
	var options execOptions
	for _, opt := range opts {
		opt(&options)
	}

	if stmt.IDKeys != nil {
		e.metrics.Increment(MetricIDQueries, "set", stmt.Set)
		entries, err := e.store.MultiGet(ctx, stmt.Namespace, stmt.Set, stmt.IDKeys)
		if err != nil {
			return nil, err
		}
		return e.newIterator(stmt, newSliceCursor(entries), "multiget"), nil
	}

	if stmt.Filter != nil {
		cur, err := e.store.Query(ctx, stmt.Namespace, stmt.Set, stmt.Filter)
		if err != nil {
			return nil, err
		}
		return e.newIterator(stmt, cur, "query"), nil
	}

	if err := e.guard.CheckAllowed(stmt, options.allowFullScan); err != nil {
		e.metrics.Increment(MetricScanRejected, "set", stmt.Set)
		e.logger.Warn("full scan rejected",
			"statement", stmt.ID,
			"set", stmt.Set,
		)
		return nil, err
	}

	e.metrics.Increment(MetricScanIssued, "set", stmt.Set)
	cur, err := e.store.Scan(ctx, stmt.Namespace, stmt.Set)
	if err != nil {
		return nil, err
	}
	return e.newIterator(stmt, cur, "scan"), nil
}

// collectIDKeys finds primary-key leaves. Id qualifiers may stand
// alone or be AND-combined with bin conditions (which become residual
// over the fetched records); under an OR they are rejected, since an
// id clause can only narrow, never broaden, the result set.
func collectIDKeys(q *Qualifier, underOr bool) ([]string, bool, error) {
	if q.IsID() {
		if underOr {
			return nil, false, WithContext(ErrIDUnderOr, map[string]interface{}{
				"qualifier": q.String(),
			})
		}
		return q.IDKeys(), true, nil
	}
	switch q.Combo() {
	case ComboAnd:
		var keys []string
		found := false
		for _, c := range q.children {
			childKeys, childFound, err := collectIDKeys(c, underOr)
			if err != nil {
				return nil, false, err
			}
			if !childFound {
				continue
			}
			if !found {
				keys, found = childKeys, true
			} else {
				keys = intersectKeys(keys, childKeys)
			}
		}
		return keys, found, nil
	case ComboOr:
		for _, c := range q.children {
			if _, _, err := collectIDKeys(c, true); err != nil {
				return nil, false, err
			}
		}
		return nil, false, nil
	}
	return nil, false, nil
}

func intersectKeys(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, k := range b {
		inB[k] = struct{}{}
	}
	out := make([]string, 0, len(a))
	for _, k := range a {
		if _, ok := inB[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// selectFilter walks the tree in pre-order looking for the first leaf
// that can be translated to a secondary-index filter. OR subtrees are
// skipped entirely.
func (e *Engine) selectFilter(set string, q *Qualifier) *Filter {
	if q.IsLeaf() {
		return e.tryBuildFilter(set, q)
	}
	if q.Combo() != ComboAnd {
		return nil
	}
	for _, c := range q.children {
		if f := e.selectFilter(set, c); f != nil {
			return f
		}
	}
	return nil
}

// tryBuildFilter translates one leaf into a filter, or nil when the
// leaf is not indexable. Context-qualified leaves never qualify, even
// when a matching context index exists in the registry; they always
// fall through to residual-only evaluation.
func (e *Engine) tryBuildFilter(set string, q *Qualifier) *Filter {
	if q.IsID() || q.Metadata() != MetaNone || len(q.path) > 0 {
		return nil
	}
	info, ok := opTable[q.op]
	if !ok || !info.indexable {
		return nil
	}
	if q.ignoreCase {
		// the store's index compares bytes; case folding is residual-only
		return nil
	}

	field := NewIndexedField(e.namespace, set, q.bin, nil)
	descriptors, ok := e.registry.Lookup(field)
	if !ok {
		return nil
	}

	for _, d := range descriptors {
		if f := buildFilter(q, d); f != nil {
			return f
		}
	}
	return nil
}

// buildFilter translates a leaf against one index descriptor, or nil
// when the descriptor cannot serve the operation/operand types.
func buildFilter(q *Qualifier, d IndexDescriptor) *Filter {
	switch q.op {
	case OpEq:
		if d.Collection != CollectionDefault {
			return nil
		}
		if s, ok := q.values[0].(string); ok && d.Type == IndexString {
			return &Filter{Bin: q.bin, Kind: FilterEqual, Collection: CollectionDefault, Value: s}
		}
		if n, ok := asInt(q.values[0]); ok && d.Type == IndexNumeric {
			return &Filter{Bin: q.bin, Kind: FilterEqual, Collection: CollectionDefault, Value: n}
		}
		return nil

	case OpGt, OpGtEq, OpLt, OpLtEq:
		if d.Collection != CollectionDefault || d.Type != IndexNumeric {
			return nil
		}
		n, ok := asInt(q.values[0])
		if !ok {
			return nil
		}
		begin, end := int64(math.MinInt64), int64(math.MaxInt64)
		switch q.op {
		case OpGt:
			if n == math.MaxInt64 {
				return nil
			}
			begin = n + 1
		case OpGtEq:
			begin = n
		case OpLt:
			if n == math.MinInt64 {
				return nil
			}
			end = n - 1
		case OpLtEq:
			end = n
		}
		return &Filter{Bin: q.bin, Kind: FilterRange, Collection: CollectionDefault, Begin: begin, End: end}

	case OpBetween:
		if d.Collection != CollectionDefault || d.Type != IndexNumeric {
			return nil
		}
		lo, okLo := asInt(q.values[0])
		hi, okHi := asInt(q.values[1])
		if !okLo || !okHi {
			return nil
		}
		return &Filter{Bin: q.bin, Kind: FilterRange, Collection: CollectionDefault, Begin: lo, End: hi}

	case OpListContains:
		return containsFilter(q, d, CollectionList)
	case OpMapKeysContain:
		return containsFilter(q, d, CollectionMapKeys)
	case OpMapValuesContain:
		return containsFilter(q, d, CollectionMapValues)

	case OpGeoWithin:
		if d.Type != IndexGeo2DSphere {
			return nil
		}
		region, ok := q.values[0].(string)
		if !ok {
			return nil
		}
		return &Filter{Bin: q.bin, Kind: FilterGeoWithin, Collection: d.Collection, Value: region}
	}
	return nil
}

func containsFilter(q *Qualifier, d IndexDescriptor, want CollectionType) *Filter {
	if d.Collection != want {
		return nil
	}
	if s, ok := q.values[0].(string); ok && d.Type == IndexString {
		return &Filter{Bin: q.bin, Kind: FilterContains, Collection: want, Value: s}
	}
	if n, ok := asInt(q.values[0]); ok && d.Type == IndexNumeric {
		return &Filter{Bin: q.bin, Kind: FilterContains, Collection: want, Value: n}
	}
	return nil
}
