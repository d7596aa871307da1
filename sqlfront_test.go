package binquery

import (
	"context"
	"errors"
	"testing"
)

func TestParseSelect_Basics(t *testing.T) {
	sq, err := ParseSelect("SELECT * FROM persons")
	if err != nil {
		t.Fatalf("ParseSelect failed: %v", err)
	}
	if sq.Set != "persons" {
		t.Errorf("set = %q, want persons", sq.Set)
	}
	if sq.Qualifier != nil {
		t.Error("no WHERE clause should yield a nil qualifier")
	}

	// trailing semicolons and whitespace are tolerated
	if _, err := ParseSelect("  SELECT * FROM persons;  "); err != nil {
		t.Errorf("trimmed statement failed: %v", err)
	}
}

func TestParseSelect_Comparisons(t *testing.T) {
	tests := []struct {
		sql    string
		op     FilterOperation
		bin    string
		values []interface{}
	}{
		{"SELECT * FROM p WHERE age = 26", OpEq, "age", []interface{}{int64(26)}},
		{"SELECT * FROM p WHERE age != 26", OpNotEq, "age", []interface{}{int64(26)}},
		{"SELECT * FROM p WHERE age < 26", OpLt, "age", []interface{}{int64(26)}},
		{"SELECT * FROM p WHERE age <= 26", OpLtEq, "age", []interface{}{int64(26)}},
		{"SELECT * FROM p WHERE age > 26", OpGt, "age", []interface{}{int64(26)}},
		{"SELECT * FROM p WHERE age >= 26", OpGtEq, "age", []interface{}{int64(26)}},
		{"SELECT * FROM p WHERE name = 'Alice'", OpEq, "name", []interface{}{"Alice"}},
		{"SELECT * FROM p WHERE score = 1.5", OpEq, "score", []interface{}{1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			sq, err := ParseSelect(tt.sql)
			if err != nil {
				t.Fatalf("ParseSelect failed: %v", err)
			}
			q := sq.Qualifier
			if q == nil || !q.IsLeaf() {
				t.Fatalf("expected a leaf qualifier, got %v", q)
			}
			if q.Operation() != tt.op {
				t.Errorf("op = %s, want %s", q.Operation(), tt.op)
			}
			if q.Bin() != tt.bin {
				t.Errorf("bin = %q, want %q", q.Bin(), tt.bin)
			}
			got := q.Values()
			if len(got) != len(tt.values) {
				t.Fatalf("values = %v, want %v", got, tt.values)
			}
			for i := range got {
				if got[i] != tt.values[i] {
					t.Errorf("value %d = %v (%T), want %v (%T)", i, got[i], got[i], tt.values[i], tt.values[i])
				}
			}
		})
	}
}

func TestParseSelect_BetweenAndIn(t *testing.T) {
	sq, err := ParseSelect("SELECT * FROM p WHERE age BETWEEN 20 AND 30")
	if err != nil {
		t.Fatal(err)
	}
	q := sq.Qualifier
	if q.Operation() != OpBetween {
		t.Fatalf("op = %s, want BETWEEN", q.Operation())
	}
	vals := q.Values()
	if vals[0] != int64(20) || vals[1] != int64(30) {
		t.Errorf("values = %v", vals)
	}

	sq, err = ParseSelect("SELECT * FROM p WHERE city IN ('ams', 'hel')")
	if err != nil {
		t.Fatal(err)
	}
	if sq.Qualifier.Operation() != OpIn {
		t.Fatalf("op = %s, want IN", sq.Qualifier.Operation())
	}
	coll := sq.Qualifier.Values()[0].([]interface{})
	if len(coll) != 2 || coll[0] != "ams" || coll[1] != "hel" {
		t.Errorf("IN collection = %v", coll)
	}
}

func TestParseSelect_LikeTranslation(t *testing.T) {
	tests := []struct {
		sql  string
		op   FilterOperation
		want interface{}
	}{
		{"SELECT * FROM p WHERE name LIKE 'A%'", OpStartsWith, "A"},
		{"SELECT * FROM p WHERE name LIKE '%son'", OpEndsWith, "son"},
		{"SELECT * FROM p WHERE name LIKE '%li%'", OpContaining, "li"},
		{"SELECT * FROM p WHERE name LIKE 'Alice'", OpEq, "Alice"},
		{"SELECT * FROM p WHERE name LIKE 'A_e%'", OpLike, "^A.e.*$"},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			sq, err := ParseSelect(tt.sql)
			if err != nil {
				t.Fatalf("ParseSelect failed: %v", err)
			}
			q := sq.Qualifier
			if q.Operation() != tt.op {
				t.Errorf("op = %s, want %s", q.Operation(), tt.op)
			}
			if q.Values()[0] != tt.want {
				t.Errorf("value = %v, want %v", q.Values()[0], tt.want)
			}
		})
	}
}

func TestParseSelect_BooleanComposition(t *testing.T) {
	sq, err := ParseSelect("SELECT * FROM p WHERE age < 26 AND (city = 'ams' OR city = 'hel')")
	if err != nil {
		t.Fatal(err)
	}
	q := sq.Qualifier
	if q.Combo() != ComboAnd {
		t.Fatalf("root combo = %s, want AND", q.Combo())
	}
	children := q.Children()
	if len(children) != 2 {
		t.Fatalf("got %d children, want 2", len(children))
	}
	if children[1].Combo() != ComboOr {
		t.Errorf("second child combo = %s, want OR", children[1].Combo())
	}
}

func TestParseSelect_IDPredicates(t *testing.T) {
	sq, err := ParseSelect("SELECT * FROM p WHERE id = 'pk1'")
	if err != nil {
		t.Fatal(err)
	}
	if !sq.Qualifier.IsID() {
		t.Fatal("id = should build an id qualifier")
	}
	if keys := sq.Qualifier.IDKeys(); len(keys) != 1 || keys[0] != "pk1" {
		t.Errorf("IDKeys = %v", keys)
	}

	sq, err = ParseSelect("SELECT * FROM p WHERE id IN ('a', 'b')")
	if err != nil {
		t.Fatal(err)
	}
	if keys := sq.Qualifier.IDKeys(); len(keys) != 2 {
		t.Errorf("IDKeys = %v", keys)
	}

	// ranges over the primary key are not supported
	if _, err := ParseSelect("SELECT * FROM p WHERE id > 'a'"); !errors.Is(err, ErrUnsupportedQuery) {
		t.Errorf("expected ErrUnsupportedQuery for id >, got %v", err)
	}
}

func TestParseSelect_Unsupported(t *testing.T) {
	cases := []string{
		"DELETE FROM p WHERE id = 'a'",
		"SELECT * FROM a, b WHERE a.x = 1",
		"not sql at all",
	}
	for _, sql := range cases {
		if _, err := ParseSelect(sql); !errors.Is(err, ErrUnsupportedQuery) {
			t.Errorf("ParseSelect(%q): expected ErrUnsupportedQuery, got %v", sql, err)
		}
	}
}

func TestEngine_QuerySQL(t *testing.T) {
	env := newTestEnv(t, false)
	env.createIndex(t, "persons", "age", "person-age-index", IndexNumeric, CollectionDefault)

	env.store.Put("test", "persons", "a", map[string]interface{}{"age": int64(20), "city": "ams"})
	env.store.Put("test", "persons", "b", map[string]interface{}{"age": int64(20), "city": "hel"})
	env.store.Put("test", "persons", "c", map[string]interface{}{"age": int64(40), "city": "ams"})

	it, err := env.engine.QuerySQL(context.Background(),
		"SELECT * FROM persons WHERE age < 26 AND city = 'ams'")
	if err != nil {
		t.Fatalf("QuerySQL failed: %v", err)
	}
	results, err := it.Collect()
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Key.UserKey != "a" {
		t.Fatalf("got %d results, want only record a", len(results))
	}

	// a filterless SELECT is a full scan, subject to the guard
	_, err = env.engine.QuerySQL(context.Background(), "SELECT * FROM persons")
	if !IsScansDisabled(err) {
		t.Fatalf("expected ErrScansDisabled, got %v", err)
	}
	it, err = env.engine.QuerySQL(context.Background(), "SELECT * FROM persons", AllowFullScan())
	if err != nil {
		t.Fatal(err)
	}
	results, err = it.Collect()
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("scan returned %d results, want 3", len(results))
	}
}
