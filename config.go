package binquery

import "time"

// Configuration defaults
const (
	// DefaultRefreshInterval is how often the index cache is reloaded
	// from the store when scheduling is enabled.
	DefaultRefreshInterval = 30 * time.Second
)

// Config holds the knobs the query engine and refresher consume.
//
// Scans are disabled by default: a statement that compiles without a
// secondary-index filter fails at execution unless ScansEnabled is set
// (or the caller opts in per call with AllowFullScan).
type Config struct {
	// Namespace all statements and index lookups are scoped to.
	Namespace string

	// RefreshInterval between scheduled index cache reloads.
	// Zero or negative disables scheduling; Refresh can still be
	// called on demand.
	RefreshInterval time.Duration

	// ScansEnabled permits full-namespace scans when no index filter
	// could be compiled.
	ScansEnabled bool
}

// DefaultConfig returns a config with scheduling enabled and scans disabled
func DefaultConfig(namespace string) Config {
	return Config{
		Namespace:       namespace,
		RefreshInterval: DefaultRefreshInterval,
	}
}

// Validate checks if the Config is valid
func (c Config) Validate() error {
	if c.Namespace == "" {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Namespace",
			"reason": "namespace is required",
		})
	}
	return nil
}
