package binquery

import (
	"context"
)

// IndexDeclaration is an explicit secondary-index declaration, the
// registration-step replacement for annotation scanning: the mapping
// layer enumerates its declared indexes and hands them here; the core
// never reflects over domain types.
type IndexDeclaration struct {
	Name       string
	Set        string
	Bin        string
	Type       IndexType
	Collection CollectionType

	// Context optionally scopes the index to a nested path, in the
	// annotation grammar understood by ParseContextPath.
	Context string
}

// IndexInstaller applies index declarations to the store and keeps the
// registry current: bulk via EnsureIndexes at startup, incrementally
// via CreateIndex/DropIndex afterwards.
type IndexInstaller struct {
	store     Store
	registry  *IndexRegistry
	refresher *IndexRefresher
	logger    Logger
	metrics   Metrics

	namespace string
	declared  []IndexDeclaration
}

// NewIndexInstaller creates an installer bound to a store and registry
func NewIndexInstaller(store Store, registry *IndexRegistry, refresher *IndexRefresher, cfg Config) *IndexInstaller {
	return &IndexInstaller{
		store:     store,
		registry:  registry,
		refresher: refresher,
		logger:    &NoOpLogger{},
		metrics:   &NoOpMetrics{},
		namespace: cfg.Namespace,
	}
}

// WithLogger sets the logger for this installer
func (ii *IndexInstaller) WithLogger(logger Logger) *IndexInstaller {
	ii.logger = logger
	return ii
}

// WithMetrics sets the metrics collector for this installer
func (ii *IndexInstaller) WithMetrics(metrics Metrics) *IndexInstaller {
	ii.metrics = metrics
	return ii
}

// Declare validates and records a declaration for EnsureIndexes. The
// context string is parsed immediately so a bad annotation fails at
// registration, not at startup.
func (ii *IndexInstaller) Declare(d IndexDeclaration) error {
	if _, err := ii.toDescriptor(d); err != nil {
		return err
	}
	ii.declared = append(ii.declared, d)
	return nil
}

// EnsureIndexes creates every declared index, then refreshes the
// registry once. An index that already exists is the desired end
// state, so ErrIndexExists is logged and swallowed; any other failure
// aborts.
func (ii *IndexInstaller) EnsureIndexes(ctx context.Context) error {
	for _, d := range ii.declared {
		desc, err := ii.toDescriptor(d)
		if err != nil {
			return err
		}
		if err := ii.store.CreateIndex(ctx, desc); err != nil {
			if IsIndexExists(err) {
				ii.logger.Debug("index already present",
					"index", d.Name,
					"set", d.Set,
				)
				continue
			}
			return err
		}
		ii.metrics.Increment(MetricIndexCreated, "set", d.Set)
		ii.logger.Info("index created",
			"index", d.Name,
			"set", d.Set,
			"bin", d.Bin,
		)
	}
	return ii.refresher.Refresh(ctx)
}

// CreateIndex creates one index and applies the registry update
// incrementally, without waiting for the next scheduled refresh.
func (ii *IndexInstaller) CreateIndex(ctx context.Context, d IndexDeclaration) error {
	desc, err := ii.toDescriptor(d)
	if err != nil {
		return err
	}
	if err := ii.store.CreateIndex(ctx, desc); err != nil {
		if IsIndexExists(err) {
			ii.logger.Debug("index already present", "index", d.Name, "set", d.Set)
			ii.registry.Add(desc)
			return nil
		}
		return err
	}
	ii.registry.Add(desc)
	ii.metrics.Increment(MetricIndexCreated, "set", d.Set)
	return nil
}

// DropIndex drops one index. An index that is already gone is the
// desired end state, so ErrIndexNotFound is swallowed.
func (ii *IndexInstaller) DropIndex(ctx context.Context, set, name string) error {
	if err := ii.store.DropIndex(ctx, ii.namespace, set, name); err != nil {
		if !IsIndexNotFound(err) {
			return err
		}
		ii.logger.Debug("index already absent", "index", name, "set", set)
	}
	ii.registry.RemoveNamed(ii.namespace, set, name)
	ii.metrics.Increment(MetricIndexDropped, "set", set)
	return nil
}

func (ii *IndexInstaller) toDescriptor(d IndexDeclaration) (IndexDescriptor, error) {
	var path ContextPath
	if d.Context != "" {
		parsed, err := ParseContextPath(d.Context)
		if err != nil {
			return IndexDescriptor{}, err
		}
		path = parsed
	}
	collection := d.Collection
	if collection == "" {
		collection = CollectionDefault
	}
	return IndexDescriptor{
		Name:        d.Name,
		Field:       NewIndexedField(ii.namespace, d.Set, d.Bin, path),
		Type:        d.Type,
		Collection:  collection,
		Path:        path,
		WireContext: EncodeWireContext(path),
	}, nil
}
