// Package binquery compiles rich predicate trees into the narrow query
// surface of a bin-oriented key-value store: at most one secondary-index
// filter per statement, with everything else evaluated client-side.
//
// # Overview
//
// Stores in the Aerospike family accept exactly one index filter per
// query. Expressive repository-style predicates (AND/OR trees, nested
// map/list lookups, case-insensitive matching, metadata conditions)
// therefore have to be split into a cheap server-side filter and an
// authoritative client-side residual. binquery does that split:
//
//   - Qualifier: immutable predicate trees with 19 leaf operations,
//     AND/OR composition, nested context paths and metadata targets
//   - Engine: compiles a tree into at most one index filter plus the
//     residual, and executes it as a query, a scan, or a multi-get
//   - IndexRegistry: lock-free cache of secondary-index metadata,
//     refreshed from the store on a schedule
//   - ScanGuard: full scans are disabled by default and must be opted
//     into, globally or per call
//   - SQL front-end: SELECT statements translate directly to qualifier
//     trees
//   - Full observability (Prometheus metrics + structured logging)
//
// # Quick Start
//
// In-memory store (development and tests):
//
//	store := binquery.NewMemStore()
//	registry := binquery.NewIndexRegistry()
//	cfg := binquery.DefaultConfig("test")
//
//	engine, _ := binquery.NewEngine(store, registry, cfg)
//
//	q, _ := binquery.NewQualifierBuilder().
//	    Bin("age").
//	    Operation(binquery.OpLt).
//	    Values(int64(26)).
//	    Build()
//
//	it, _ := engine.Query(ctx, "persons", q)
//	defer it.Close()
//	for it.Next() {
//	    entry := it.Entry()
//	    // ...
//	}
//
// Production setup with Redis, scheduled index refresh and
// observability:
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := binquery.NewRedisStoreWithOwnedClient(redisClient)
//
//	registry := binquery.NewIndexRegistry()
//	refresher := binquery.NewIndexRefresher(store, registry, cfg)
//	refresher.Start()
//	defer refresher.Stop()
//
//	logger, _ := binquery.NewProductionZapLogger()
//	metrics := binquery.NewPrometheusMetrics(prometheus.DefaultRegisterer)
//	engine, _ := binquery.NewEngine(store, registry, cfg).
//	    WithLogger(logger).
//	    WithMetrics(metrics)
//
// # Core Concepts
//
// Qualifier: a node in a predicate tree, either a leaf over one bin (or
// a metadata field, or the primary key) or an AND/OR composite. Built
// via QualifierBuilder, which validates operand arity at construction.
// Qualifiers are immutable and safe to share and cache.
//
// CompiledStatement: the result of Engine.Compile. Holds at most one
// secondary-index filter; the full tree rides along as the residual
// predicate and is evaluated against every returned record. The index
// narrows, the residual decides.
//
// Filter selection: only leaves under the outermost AND chain are
// candidates; OR subtrees are never indexed, because a filter drawn
// from one branch would exclude records matching its siblings. The
// first indexable leaf in pre-order wins. Context-qualified leaves are
// never indexed.
//
// Id queries: predicates on the primary key compile to a multi-get and
// bypass the filter/scan machinery. An id clause under an OR is
// rejected.
//
// ScanGuard: a statement with no filter and no id path needs a full
// scan, which is disabled by default. Enable globally via Config or
// per call with AllowFullScan().
//
// Context paths: nested map/list navigation in a compact annotation
// syntax, e.g. "ab.cd.'10'.{#5}.{='1'}.[-1].[#100].[=20]". Parsed by
// ParseContextPath, carried on qualifiers and index declarations.
//
// # Indexes
//
// Index metadata flows from the store into the IndexRegistry, either on
// a schedule (IndexRefresher) or explicitly (IndexInstaller):
//
//	installer := binquery.NewIndexInstaller(store, registry, refresher, cfg)
//	installer.Declare(binquery.IndexDeclaration{
//	    Name: "person-age-index",
//	    Set:  "persons",
//	    Bin:  "age",
//	    Type: binquery.IndexNumeric,
//	})
//	installer.EnsureIndexes(ctx)
//
// EnsureIndexes is idempotent: an index that already exists is the
// desired end state, not an error.
//
// # SQL Front-End
//
// SELECT statements translate to qualifier trees:
//
//	it, _ := engine.QuerySQL(ctx,
//	    "SELECT * FROM persons WHERE age < 26 AND name LIKE 'A%'")
//
// Only the FROM set and WHERE predicate are consulted; the column
// named "id" addresses the primary key.
//
// # Gotchas
//
// 1. The residual is always evaluated. Collection indexes (list,
// map-keys, map-values) answer "some element matched", so index
// results over-approximate. Never consume store cursors directly if
// you need exact semantics.
//
// 2. Case-insensitive leaves are never served by an index; the store
// compares bytes. They work, but as residual over a scan or another
// leaf's filter.
//
// 3. Range filters are integer-only. A float operand falls back to
// residual evaluation.
//
// 4. Registry staleness: between refreshes, a dropped index can still
// be selected. The store rejects the query and the error surfaces to
// the caller rather than silently scanning.
package binquery
