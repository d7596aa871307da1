package binquery

import "sync"

// ScanGuard is the policy gate for full-namespace scans. Scans are
// disabled by default: on a production key-value store an unindexed
// query walks every record in the set, so it has to be an explicit
// choice, either globally (SetScansEnabled) or per call
// (AllowFullScan).
type ScanGuard struct {
	mu      sync.RWMutex
	enabled bool
}

// NewScanGuard creates a guard with the given initial policy
func NewScanGuard(scansEnabled bool) *ScanGuard {
	return &ScanGuard{enabled: scansEnabled}
}

// SetScansEnabled toggles the scan policy for this guard instance
func (g *ScanGuard) SetScansEnabled(enabled bool) {
	g.mu.Lock()
	g.enabled = enabled
	g.mu.Unlock()
}

// ScansEnabled reports the current policy
func (g *ScanGuard) ScansEnabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled
}

// CheckAllowed fails fast when the statement needs a full scan and
// scans are disabled. override is the narrow single-call opt-in.
func (g *ScanGuard) CheckAllowed(stmt *CompiledStatement, override bool) error {
	if !stmt.FullScanRequired || override || g.ScansEnabled() {
		return nil
	}
	qualifier := "(none)"
	if stmt.Residual != nil {
		qualifier = stmt.Residual.String()
	}
	return WithContext(ErrScansDisabled, map[string]interface{}{
		"namespace": stmt.Namespace,
		"set":       stmt.Set,
		"qualifier": qualifier,
		"hint":      "enable scans or create a secondary index",
	})
}
