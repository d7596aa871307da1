package binquery

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyStore fails ListIndexes on demand
type flakyStore struct {
	*MemStore
	fail bool
}

func (s *flakyStore) ListIndexes(ctx context.Context, namespace string) ([]IndexDescriptor, error) {
	if s.fail {
		return nil, errors.New("node unreachable")
	}
	return s.MemStore.ListIndexes(ctx, namespace)
}

func TestIndexRefresher_RefreshPopulatesRegistry(t *testing.T) {
	store := NewMemStore()
	registry := NewIndexRegistry()
	cfg := Config{Namespace: "test"}

	ctx := context.Background()
	if err := store.CreateIndex(ctx, descriptorFor("test", "persons", "age", "person-age-index", IndexNumeric)); err != nil {
		t.Fatal(err)
	}

	r := NewIndexRefresher(store, registry, cfg)
	if err := r.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !registry.HasIndexFor(NewIndexedField("test", "persons", "age", nil)) {
		t.Error("refresh did not populate the registry")
	}

	// a dropped index disappears on the next refresh
	if err := store.DropIndex(ctx, "test", "persons", "person-age-index"); err != nil {
		t.Fatal(err)
	}
	if err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if registry.HasIndexFor(NewIndexedField("test", "persons", "age", nil)) {
		t.Error("dropped index survived a refresh")
	}
}

func TestIndexRefresher_DecodesWireContext(t *testing.T) {
	store := NewMemStore()
	registry := NewIndexRegistry()
	ctx := context.Background()

	path, err := ParseContextPath("address.city")
	if err != nil {
		t.Fatal(err)
	}
	desc := IndexDescriptor{
		Name:        "profile-city-index",
		Field:       NewIndexedField("test", "persons", "profile", path),
		Type:        IndexString,
		Collection:  CollectionDefault,
		WireContext: EncodeWireContext(path),
		// Path deliberately nil, as store metadata reports it
	}
	if err := store.CreateIndex(ctx, desc); err != nil {
		t.Fatal(err)
	}

	r := NewIndexRefresher(store, registry, Config{Namespace: "test"})
	if err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	descs, ok := registry.Lookup(NewIndexedField("test", "persons", "profile", path))
	if !ok || len(descs) != 1 {
		t.Fatal("context-scoped index missing after refresh")
	}
	if descs[0].Path.String() != "address.city" {
		t.Errorf("decoded path = %q, want address.city", descs[0].Path.String())
	}
}

func TestIndexRefresher_FailureKeepsPreviousCache(t *testing.T) {
	store := &flakyStore{MemStore: NewMemStore()}
	registry := NewIndexRegistry()
	ctx := context.Background()

	if err := store.CreateIndex(ctx, descriptorFor("test", "persons", "age", "person-age-index", IndexNumeric)); err != nil {
		t.Fatal(err)
	}

	metrics := NewInMemoryMetrics()
	r := NewIndexRefresher(store, registry, Config{Namespace: "test"}).WithMetrics(metrics)
	if err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	store.fail = true
	err := r.Refresh(ctx)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	// a stale cache beats an empty one
	if !registry.HasIndexFor(NewIndexedField("test", "persons", "age", nil)) {
		t.Error("failed refresh wiped the previous cache")
	}
	if metrics.Counters[MetricRefreshErrors] != 1 {
		t.Errorf("refresh errors = %d, want 1", metrics.Counters[MetricRefreshErrors])
	}
}

func TestIndexRefresher_SkipsUndecodableContext(t *testing.T) {
	store := NewMemStore()
	registry := NewIndexRegistry()
	ctx := context.Background()

	bad := descriptorFor("test", "persons", "m", "bad-ctx-index", IndexString)
	bad.WireContext = "not base64!!!"
	good := descriptorFor("test", "persons", "age", "person-age-index", IndexNumeric)
	if err := store.CreateIndex(ctx, bad); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateIndex(ctx, good); err != nil {
		t.Fatal(err)
	}

	r := NewIndexRefresher(store, registry, Config{Namespace: "test"})
	if err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if registry.Len() != 1 {
		t.Errorf("Len = %d, want 1 (bad descriptor skipped)", registry.Len())
	}
	if !registry.HasIndexFor(NewIndexedField("test", "persons", "age", nil)) {
		t.Error("good descriptor missing")
	}
}

func TestIndexRefresher_Scheduling(t *testing.T) {
	store := NewMemStore()
	registry := NewIndexRegistry()
	ctx := context.Background()
	if err := store.CreateIndex(ctx, descriptorFor("test", "persons", "age", "person-age-index", IndexNumeric)); err != nil {
		t.Fatal(err)
	}

	r := NewIndexRefresher(store, registry, Config{
		Namespace:       "test",
		RefreshInterval: 5 * time.Millisecond,
	})
	if !r.Scheduled() {
		t.Fatal("Scheduled should report true")
	}
	r.Start()
	r.Start() // second Start is a no-op

	deadline := time.After(2 * time.Second)
	for registry.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduled refresh never populated the registry")
		case <-time.After(5 * time.Millisecond):
		}
	}
	r.Stop()
	r.Stop() // second Stop is a no-op
}

func TestIndexRefresher_SchedulingDisabled(t *testing.T) {
	r := NewIndexRefresher(NewMemStore(), NewIndexRegistry(), Config{
		Namespace:       "test",
		RefreshInterval: 0,
	})
	if r.Scheduled() {
		t.Error("zero interval should disable scheduling")
	}
	r.Start() // no-op
	r.Stop()  // no-op without a running loop
}
