package binquery

import (
	"context"
	"sync"
	"time"
)

// IndexRefresher keeps the IndexRegistry in sync with the store's
// index metadata, on a schedule or on demand. The refresher is the
// registry's owning writer for bulk swaps; explicit create/drop calls
// (IndexInstaller) apply incremental updates between refreshes.
type IndexRefresher struct {
	store    Store
	registry *IndexRegistry
	logger   Logger
	metrics  Metrics

	namespace string
	interval  time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewIndexRefresher creates a refresher. cfg.RefreshInterval of zero
// or less disables scheduling; Refresh remains available on demand.
func NewIndexRefresher(store Store, registry *IndexRegistry, cfg Config) *IndexRefresher {
	return &IndexRefresher{
		store:     store,
		registry:  registry,
		logger:    &NoOpLogger{},
		metrics:   &NoOpMetrics{},
		namespace: cfg.Namespace,
		interval:  cfg.RefreshInterval,
	}
}

// WithLogger sets the logger for this refresher
func (r *IndexRefresher) WithLogger(logger Logger) *IndexRefresher {
	r.logger = logger
	return r
}

// WithMetrics sets the metrics collector for this refresher
func (r *IndexRefresher) WithMetrics(metrics Metrics) *IndexRefresher {
	r.metrics = metrics
	return r
}

// Refresh reloads all index metadata for the namespace and atomically
// swaps the registry contents. Idempotent. If the store query fails,
// the previous registry content is retained unchanged and the error is
// reported; a stale cache beats an empty one.
func (r *IndexRefresher) Refresh(ctx context.Context) error {
	start := time.Now()

	descriptors, err := r.store.ListIndexes(ctx, r.namespace)
	if err != nil {
		r.metrics.Increment(MetricRefreshErrors, "namespace", r.namespace)
		r.logger.Warn("index refresh failed, keeping previous cache",
			"namespace", r.namespace,
			"error", err,
		)
		return WithContext(ErrStoreUnavailable, map[string]interface{}{
			"operation": "ListIndexes",
			"namespace": r.namespace,
			"cause":     err.Error(),
		})
	}

	valid := make([]IndexDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.WireContext != "" && d.Path == nil {
			path, err := DecodeWireContext(d.WireContext)
			if err != nil {
				r.logger.Warn("skipping index with undecodable context",
					"index", d.Name,
					"error", err,
				)
				continue
			}
			d.Path = path
			d.Field.Context = path.String()
		}
		valid = append(valid, d)
	}

	r.registry.ReplaceAll(valid)

	duration := time.Since(start)
	r.metrics.Timing(MetricRefreshDuration, duration, "namespace", r.namespace)
	r.logger.Debug("index cache refreshed",
		"namespace", r.namespace,
		"indexes", len(valid),
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// Start launches the scheduled refresh loop. No-op when scheduling is
// disabled or the loop is already running.
func (r *IndexRefresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || r.interval <= 0 {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// errors are logged and counted inside Refresh;
				// the loop keeps going
				_ = r.Refresh(context.Background())
			case <-stop:
				return
			}
		}
	}(r.stopCh, r.doneCh)
}

// Stop halts the scheduled loop and waits for it to exit
func (r *IndexRefresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	done := r.doneCh
	r.mu.Unlock()
	<-done
}

// Scheduled reports whether the refresher runs on an interval
func (r *IndexRefresher) Scheduled() bool {
	return r.interval > 0
}
