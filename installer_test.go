package binquery

import (
	"context"
	"testing"
)

func newInstallerEnv(t *testing.T) (*MemStore, *IndexRegistry, *IndexInstaller) {
	t.Helper()
	store := NewMemStore()
	registry := NewIndexRegistry()
	cfg := Config{Namespace: "test"}
	refresher := NewIndexRefresher(store, registry, cfg)
	return store, registry, NewIndexInstaller(store, registry, refresher, cfg)
}

func TestIndexInstaller_EnsureIndexes(t *testing.T) {
	_, registry, installer := newInstallerEnv(t)
	ctx := context.Background()

	decls := []IndexDeclaration{
		{Name: "person-age-index", Set: "persons", Bin: "age", Type: IndexNumeric},
		{Name: "person-tags-index", Set: "persons", Bin: "tags", Type: IndexString, Collection: CollectionList},
	}
	for _, d := range decls {
		if err := installer.Declare(d); err != nil {
			t.Fatalf("Declare(%s) failed: %v", d.Name, err)
		}
	}

	if err := installer.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}
	if registry.Len() != 2 {
		t.Fatalf("registry holds %d indexes, want 2", registry.Len())
	}

	// already-present indexes are the desired end state, not an error
	if err := installer.EnsureIndexes(ctx); err != nil {
		t.Fatalf("second EnsureIndexes failed: %v", err)
	}
}

func TestIndexInstaller_DeclareRejectsBadContext(t *testing.T) {
	_, _, installer := newInstallerEnv(t)

	err := installer.Declare(IndexDeclaration{
		Name:    "bad-index",
		Set:     "persons",
		Bin:     "profile",
		Type:    IndexString,
		Context: "a..b",
	})
	if err == nil {
		t.Fatal("expected an error for a malformed context annotation")
	}
	if !IsInvalidContext(err) {
		t.Errorf("error does not unwrap to ErrInvalidContext: %v", err)
	}
}

func TestIndexInstaller_ContextDeclaration(t *testing.T) {
	store, registry, installer := newInstallerEnv(t)
	ctx := context.Background()

	err := installer.CreateIndex(ctx, IndexDeclaration{
		Name:    "profile-city-index",
		Set:     "persons",
		Bin:     "profile",
		Type:    IndexString,
		Context: "address.city",
	})
	if err != nil {
		t.Fatalf("CreateIndex failed: %v", err)
	}

	path, _ := ParseContextPath("address.city")
	if !registry.HasIndexFor(NewIndexedField("test", "persons", "profile", path)) {
		t.Error("context-scoped index missing from the registry")
	}

	// the store received the wire-encoded context
	descs, err := store.ListIndexes(ctx, "test")
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 1 || descs[0].WireContext == "" {
		t.Error("stored descriptor is missing the wire context")
	}
}

func TestIndexInstaller_CreateIndexIncremental(t *testing.T) {
	store, registry, installer := newInstallerEnv(t)
	ctx := context.Background()

	d := IndexDeclaration{Name: "person-age-index", Set: "persons", Bin: "age", Type: IndexNumeric}
	if err := installer.CreateIndex(ctx, d); err != nil {
		t.Fatalf("CreateIndex failed: %v", err)
	}
	// registry updated without a refresh
	if !registry.HasIndexFor(NewIndexedField("test", "persons", "age", nil)) {
		t.Error("incremental create did not update the registry")
	}

	// creating again converges instead of failing
	if err := installer.CreateIndex(ctx, d); err != nil {
		t.Fatalf("repeated CreateIndex failed: %v", err)
	}

	// but a direct store create still reports the conflict
	desc := descriptorFor("test", "persons", "age", "person-age-index", IndexNumeric)
	if err := store.CreateIndex(ctx, desc); !IsIndexExists(err) {
		t.Errorf("expected ErrIndexExists from the store, got %v", err)
	}
}

func TestIndexInstaller_DropIndex(t *testing.T) {
	_, registry, installer := newInstallerEnv(t)
	ctx := context.Background()

	d := IndexDeclaration{Name: "person-age-index", Set: "persons", Bin: "age", Type: IndexNumeric}
	if err := installer.CreateIndex(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := installer.DropIndex(ctx, "persons", "person-age-index"); err != nil {
		t.Fatalf("DropIndex failed: %v", err)
	}
	if registry.Len() != 0 {
		t.Error("drop did not remove the registry entry")
	}

	// already-absent is the desired end state
	if err := installer.DropIndex(ctx, "persons", "person-age-index"); err != nil {
		t.Fatalf("repeated DropIndex failed: %v", err)
	}
}
