package binquery

import (
	"errors"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("test")
	if cfg.Namespace != "test" {
		t.Errorf("namespace = %q", cfg.Namespace)
	}
	if cfg.RefreshInterval != DefaultRefreshInterval {
		t.Errorf("refresh interval = %v", cfg.RefreshInterval)
	}
	if cfg.ScansEnabled {
		t.Error("scans should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfigValidate_RequiresNamespace(t *testing.T) {
	err := Config{}.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}

	if _, err := NewEngine(NewMemStore(), NewIndexRegistry(), Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewEngine accepted an invalid config: %v", err)
	}
}
