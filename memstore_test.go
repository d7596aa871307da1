package binquery

import (
	"context"
	"errors"
	"testing"
)

func TestMemStore_PutGetDelete(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	store.Put("test", "persons", "pk1", map[string]interface{}{"age": int64(30)})
	store.Put("test", "persons", "pk1", map[string]interface{}{"age": int64(31)})

	recs, err := store.MultiGet(ctx, "test", "persons", []string{"pk1", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Record.Generation != 2 {
		t.Errorf("generation = %d, want 2 after a rewrite", recs[0].Record.Generation)
	}
	if recs[0].Record.LastUpdate == 0 {
		t.Error("last-update-time not set")
	}

	store.Delete("test", "persons", "pk1")
	recs, _ = store.MultiGet(ctx, "test", "persons", []string{"pk1"})
	if len(recs) != 0 {
		t.Error("record survived Delete")
	}
}

func TestMemStore_QueryRequiresIndex(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	store.Put("test", "persons", "pk1", map[string]interface{}{"age": int64(30)})

	f := &Filter{Bin: "age", Kind: FilterRange, Collection: CollectionDefault, Begin: 0, End: 100}
	if _, err := store.Query(ctx, "test", "persons", f); !errors.Is(err, ErrUnsupportedQuery) {
		t.Fatalf("expected ErrUnsupportedQuery without an index, got %v", err)
	}

	if err := store.CreateIndex(ctx, descriptorFor("test", "persons", "age", "person-age-index", IndexNumeric)); err != nil {
		t.Fatal(err)
	}
	cur, err := store.Query(ctx, "test", "persons", f)
	if err != nil {
		t.Fatalf("indexed query failed: %v", err)
	}
	defer cur.Close()
	if !cur.Next() {
		t.Fatal("expected one result")
	}
}

func TestMemStore_IndexLifecycle(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	desc := descriptorFor("test", "persons", "age", "person-age-index", IndexNumeric)

	if err := store.CreateIndex(ctx, desc); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateIndex(ctx, desc); !IsIndexExists(err) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}

	descs, err := store.ListIndexes(ctx, "test")
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 1 || descs[0].Name != "person-age-index" {
		t.Fatalf("ListIndexes = %v", descs)
	}

	if err := store.DropIndex(ctx, "test", "persons", "person-age-index"); err != nil {
		t.Fatal(err)
	}
	if err := store.DropIndex(ctx, "test", "persons", "person-age-index"); !IsIndexNotFound(err) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
	// wrong set also misses
	if err := store.CreateIndex(ctx, desc); err != nil {
		t.Fatal(err)
	}
	if err := store.DropIndex(ctx, "test", "other", "person-age-index"); !IsIndexNotFound(err) {
		t.Errorf("expected ErrIndexNotFound for the wrong set, got %v", err)
	}
}

func TestMemStore_CoarseCollectionFilters(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if err := store.CreateIndex(ctx, IndexDescriptor{
		Name:       "scores-index",
		Field:      NewIndexedField("test", "persons", "scores", nil),
		Type:       IndexNumeric,
		Collection: CollectionDefault,
	}); err != nil {
		t.Fatal(err)
	}

	// a list bin matches a range filter when any element is in range
	store.Put("test", "persons", "a", map[string]interface{}{
		"scores": []interface{}{int64(5), int64(95)},
	})
	store.Put("test", "persons", "b", map[string]interface{}{
		"scores": []interface{}{int64(200)},
	})

	cur, err := store.Query(ctx, "test", "persons", &Filter{
		Bin: "scores", Kind: FilterRange, Collection: CollectionDefault, Begin: 90, End: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer cur.Close()

	var keys []string
	for cur.Next() {
		keys = append(keys, cur.Entry().Key.UserKey)
	}
	if len(keys) != 1 || keys[0] != "a" {
		t.Fatalf("coarse range matched %v, want [a]", keys)
	}
}

func TestMemStore_ScanIsDeterministic(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	for _, k := range []string{"c", "a", "b"} {
		store.Put("test", "persons", k, map[string]interface{}{"x": 1})
	}

	cur, err := store.Scan(ctx, "test", "persons")
	if err != nil {
		t.Fatal(err)
	}
	defer cur.Close()

	var keys []string
	for cur.Next() {
		keys = append(keys, cur.Entry().Key.UserKey)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("scan order = %v, want %v", keys, want)
		}
	}
}
