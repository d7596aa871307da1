package binquery

import (
	"fmt"
	"sync"
	"testing"
)

func descriptorFor(namespace, set, bin, name string, typ IndexType) IndexDescriptor {
	return IndexDescriptor{
		Name:       name,
		Field:      NewIndexedField(namespace, set, bin, nil),
		Type:       typ,
		Collection: CollectionDefault,
	}
}

func TestIndexRegistry_Empty(t *testing.T) {
	r := NewIndexRegistry()
	field := NewIndexedField("test", "persons", "age", nil)

	if r.HasIndexFor(field) {
		t.Error("empty registry should report no index")
	}
	if _, ok := r.Lookup(field); ok {
		t.Error("empty registry lookup should miss")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestIndexRegistry_ReplaceAll(t *testing.T) {
	r := NewIndexRegistry()
	r.ReplaceAll([]IndexDescriptor{
		descriptorFor("test", "persons", "age", "person-age-index", IndexNumeric),
		descriptorFor("test", "persons", "name", "person-name-index", IndexString),
	})

	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
	if !r.HasIndexFor(NewIndexedField("test", "persons", "age", nil)) {
		t.Error("age index missing after ReplaceAll")
	}

	// a second swap fully replaces the previous contents
	r.ReplaceAll([]IndexDescriptor{
		descriptorFor("test", "persons", "city", "person-city-index", IndexString),
	})
	if r.HasIndexFor(NewIndexedField("test", "persons", "age", nil)) {
		t.Error("age index survived a full swap")
	}
	if !r.HasIndexFor(NewIndexedField("test", "persons", "city", nil)) {
		t.Error("city index missing after swap")
	}
}

func TestIndexRegistry_MultipleIndexesPerField(t *testing.T) {
	r := NewIndexRegistry()
	field := NewIndexedField("test", "persons", "code", nil)
	r.ReplaceAll([]IndexDescriptor{
		descriptorFor("test", "persons", "code", "code-str", IndexString),
		descriptorFor("test", "persons", "code", "code-num", IndexNumeric),
	})

	descs, ok := r.Lookup(field)
	if !ok {
		t.Fatal("lookup missed")
	}
	if len(descs) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(descs))
	}
}

func TestIndexRegistry_AddRemove(t *testing.T) {
	r := NewIndexRegistry()
	field := NewIndexedField("test", "persons", "age", nil)
	d := descriptorFor("test", "persons", "age", "person-age-index", IndexNumeric)

	r.Add(d)
	if !r.HasIndexFor(field) {
		t.Fatal("Add did not register the descriptor")
	}

	if !r.Remove(field, "person-age-index") {
		t.Fatal("Remove reported no entry")
	}
	if r.HasIndexFor(field) {
		t.Error("descriptor survived Remove")
	}
	if r.Remove(field, "person-age-index") {
		t.Error("second Remove should report false")
	}
}

func TestIndexRegistry_RemoveNamed(t *testing.T) {
	r := NewIndexRegistry()
	r.Add(descriptorFor("test", "persons", "age", "person-age-index", IndexNumeric))

	if !r.RemoveNamed("test", "persons", "person-age-index") {
		t.Fatal("RemoveNamed missed an existing index")
	}
	if r.RemoveNamed("test", "persons", "person-age-index") {
		t.Error("RemoveNamed should report false for a missing index")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestIndexRegistry_ContextScopedKeys(t *testing.T) {
	r := NewIndexRegistry()
	path, err := ParseContextPath("address.city")
	if err != nil {
		t.Fatal(err)
	}
	d := IndexDescriptor{
		Name:       "profile-city-index",
		Field:      NewIndexedField("test", "persons", "profile", path),
		Type:       IndexString,
		Collection: CollectionDefault,
		Path:       path,
	}
	r.Add(d)

	// the context is part of the key: the bare bin has no index
	if r.HasIndexFor(NewIndexedField("test", "persons", "profile", nil)) {
		t.Error("context-scoped index leaked onto the bare bin key")
	}
	if !r.HasIndexFor(NewIndexedField("test", "persons", "profile", path)) {
		t.Error("context-scoped lookup missed")
	}
}

func TestIndexRegistry_LookupReturnsCopy(t *testing.T) {
	r := NewIndexRegistry()
	field := NewIndexedField("test", "persons", "age", nil)
	r.Add(descriptorFor("test", "persons", "age", "person-age-index", IndexNumeric))

	descs, _ := r.Lookup(field)
	descs[0].Name = "mutated"

	again, _ := r.Lookup(field)
	if again[0].Name == "mutated" {
		t.Error("mutating a lookup result changed the registry")
	}
}

func TestIndexRegistry_ConcurrentReadersAndWriters(t *testing.T) {
	r := NewIndexRegistry()
	field := NewIndexedField("test", "persons", "age", nil)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				r.ReplaceAll([]IndexDescriptor{
					descriptorFor("test", "persons", "age", fmt.Sprintf("idx-%d-%d", w, i), IndexNumeric),
				})
			}
		}(w)
	}
	for rd := 0; rd < 8; rd++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if descs, ok := r.Lookup(field); ok && len(descs) != 1 {
					t.Errorf("observed partial snapshot: %d descriptors", len(descs))
					return
				}
			}
		}()
	}
	wg.Wait()

	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1 after the last swap", r.Len())
	}
}
