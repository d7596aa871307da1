package binquery

import (
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// FilterOperation is the closed set of leaf predicate operations. Each
// operation carries its arity and indexability in opTable; evaluation
// dispatches on the tag in matchLeaf.
type FilterOperation int

const (
	OpEq FilterOperation = iota + 1
	OpNotEq
	OpGt
	OpGtEq
	OpLt
	OpLtEq
	OpBetween
	OpStartsWith
	OpEndsWith
	OpContaining
	OpLike
	OpIn
	OpNotIn
	OpExists
	OpNotExists
	OpListContains
	OpMapKeysContain
	OpMapValuesContain
	OpGeoWithin
)

type opInfo struct {
	name      string
	arity     int    // -1 means one collection-valued operand
	arityWord string // wording for ArityError, part of the contract
	indexable bool   // has a direct secondary-index equivalent
}

var opTable = map[FilterOperation]opInfo{
	OpEq:               {"EQ", 1, "one", true},
	OpNotEq:            {"NOTEQ", 1, "one", false},
	OpGt:               {"GT", 1, "one", true},
	OpGtEq:             {"GTEQ", 1, "one", true},
	OpLt:               {"LT", 1, "one", true},
	OpLtEq:             {"LTEQ", 1, "one", true},
	OpBetween:          {"BETWEEN", 2, "two", true},
	OpStartsWith:       {"STARTS_WITH", 1, "one", false},
	OpEndsWith:         {"ENDS_WITH", 1, "one", false},
	OpContaining:       {"CONTAINING", 1, "one", false},
	OpLike:             {"LIKE", 1, "one", false},
	OpIn:               {"IN", -1, "a collection", false},
	OpNotIn:            {"NOT_IN", -1, "a collection", false},
	OpExists:           {"EXISTS", 0, "none", false},
	OpNotExists:        {"NOT_EXISTS", 0, "none", false},
	OpListContains:     {"LIST_CONTAINS", 1, "one", true},
	OpMapKeysContain:   {"MAP_KEYS_CONTAIN", 1, "one", true},
	OpMapValuesContain: {"MAP_VALUES_CONTAIN", 1, "one", true},
	OpGeoWithin:        {"GEO_WITHIN", 1, "one", true},
}

func (op FilterOperation) String() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return "UNKNOWN"
}

// MetadataField selects a record metadata value instead of a bin
type MetadataField int

const (
	MetaNone MetadataField = iota
	MetaTTL
	MetaLastUpdate
	MetaVoidTime
)

func (m MetadataField) String() string {
	switch m {
	case MetaTTL:
		return "TTL"
	case MetaLastUpdate:
		return "LAST_UPDATE_TIME"
	case MetaVoidTime:
		return "VOID_TIME"
	default:
		return "NONE"
	}
}

// ComboOperator combines child qualifiers
type ComboOperator int

const (
	ComboAnd ComboOperator = iota + 1
	ComboOr
)

func (c ComboOperator) String() string {
	if c == ComboOr {
		return "OR"
	}
	return "AND"
}

// Qualifier is a node in a predicate tree: either a leaf predicate over
// one bin (or metadata field, or the primary key), or an AND/OR
// composite. Qualifiers are immutable value objects; trees are safe to
// share and cache.
type Qualifier struct {
	// composite
	combo    ComboOperator
	children []*Qualifier

	// leaf
	op         FilterOperation
	bin        string
	entity     string
	path       ContextPath
	values     []interface{}
	ignoreCase bool
	metadata   MetadataField
	re         *regexp.Regexp // precompiled for OpLike

	// id leaf
	idKeys []string
}

// IsLeaf reports whether the qualifier is a single predicate
func (q *Qualifier) IsLeaf() bool { return q.combo == 0 }

// IsID reports whether the qualifier targets the primary key
func (q *Qualifier) IsID() bool { return q.idKeys != nil }

// Operation returns the leaf operation, 0 for composites
func (q *Qualifier) Operation() FilterOperation { return q.op }

// Bin returns the leaf bin name
func (q *Qualifier) Bin() string { return q.bin }

// Context returns the leaf context path (a copy)
func (q *Qualifier) Context() ContextPath {
	if len(q.path) == 0 {
		return nil
	}
	out := make(ContextPath, len(q.path))
	copy(out, q.path)
	return out
}

// Values returns the leaf operand values (a copy)
func (q *Qualifier) Values() []interface{} {
	out := make([]interface{}, len(q.values))
	copy(out, q.values)
	return out
}

// IgnoreCase reports whether string matching is case-insensitive
func (q *Qualifier) IgnoreCase() bool { return q.ignoreCase }

// Metadata returns the metadata field a leaf targets, MetaNone for bins
func (q *Qualifier) Metadata() MetadataField { return q.metadata }

// Combo returns the composite operator, 0 for leaves
func (q *Qualifier) Combo() ComboOperator { return q.combo }

// Children returns the composite children (a copy of the slice)
func (q *Qualifier) Children() []*Qualifier {
	out := make([]*Qualifier, len(q.children))
	copy(out, q.children)
	return out
}

// IDKeys returns the primary keys of an id qualifier (a copy)
func (q *Qualifier) IDKeys() []string {
	out := make([]string, len(q.idKeys))
	copy(out, q.idKeys)
	return out
}

func (q *Qualifier) String() string {
	if q.idKeys != nil {
		return "ID IN " + strings.Join(q.idKeys, ",")
	}
	if !q.IsLeaf() {
		parts := make([]string, len(q.children))
		for i, c := range q.children {
			parts[i] = c.String()
		}
		return q.combo.String() + "(" + strings.Join(parts, ", ") + ")"
	}
	name := q.bin
	if q.metadata != MetaNone {
		name = q.metadata.String()
	}
	if len(q.path) > 0 {
		name += "." + q.path.String()
	}
	return name + " " + q.op.String()
}

// And combines qualifiers with logical conjunction. At least one child
// is required. Nested same-operator composites are deliberately NOT
// flattened: each call adds exactly one level, preserving the caller's
// explicit grouping.
func And(children ...*Qualifier) (*Qualifier, error) {
	return combine(ComboAnd, children)
}

// Or combines qualifiers with logical disjunction; see And for the
// grouping rule.
func Or(children ...*Qualifier) (*Qualifier, error) {
	return combine(ComboOr, children)
}

func combine(combo ComboOperator, children []*Qualifier) (*Qualifier, error) {
	if len(children) == 0 {
		return nil, WithContext(ErrInvalidQualifier, map[string]interface{}{
			"combo":  combo.String(),
			"reason": "at least one child is required",
		})
	}
	for i, c := range children {
		if c == nil {
			return nil, WithContext(ErrInvalidQualifier, map[string]interface{}{
				"combo":  combo.String(),
				"child":  i,
				"reason": "child is nil",
			})
		}
	}
	kids := make([]*Qualifier, len(children))
	copy(kids, children)
	return &Qualifier{combo: combo, children: kids}, nil
}

// IDEq builds a qualifier matching a single primary key
func IDEq(userKey string) *Qualifier {
	return &Qualifier{idKeys: []string{userKey}}
}

// IDIn builds a qualifier matching any of the given primary keys
func IDIn(userKeys ...string) *Qualifier {
	keys := make([]string, len(userKeys))
	copy(keys, userKeys)
	return &Qualifier{idKeys: keys}
}

// QualifierBuilder assembles and validates a leaf qualifier. Build
// checks operand arity against the operation and fails with an
// ArityError whose wording is stable, e.g.
//
//	Person.strings EQ: invalid number of arguments, expecting one
type QualifierBuilder struct {
	entity     string
	bin        string
	path       ContextPath
	op         FilterOperation
	values     []interface{}
	ignoreCase bool
	metadata   MetadataField
	ctxErr     error
}

// NewQualifierBuilder creates an empty builder
func NewQualifierBuilder() *QualifierBuilder {
	return &QualifierBuilder{}
}

// Entity sets an optional entity name used only in error messages
// ("Person.strings EQ: ..." instead of "strings EQ: ...").
func (b *QualifierBuilder) Entity(name string) *QualifierBuilder {
	b.entity = name
	return b
}

// Bin sets the target bin. The name must be a single bin, dot-free;
// nested lookups go through Context.
func (b *QualifierBuilder) Bin(name string) *QualifierBuilder {
	b.bin = name
	return b
}

// Context sets a nested map/list navigation path
func (b *QualifierBuilder) Context(path ContextPath) *QualifierBuilder {
	b.path = path
	return b
}

// ContextString parses and sets a context path from annotation syntax
func (b *QualifierBuilder) ContextString(s string) *QualifierBuilder {
	path, err := ParseContextPath(s)
	if err != nil {
		b.ctxErr = err
		return b
	}
	b.path = path
	return b
}

// Operation sets the filter operation
func (b *QualifierBuilder) Operation(op FilterOperation) *QualifierBuilder {
	b.op = op
	return b
}

// Values sets the operand values
func (b *QualifierBuilder) Values(values ...interface{}) *QualifierBuilder {
	b.values = values
	return b
}

// IgnoreCase makes string matching case-insensitive. Only meaningful
// for EQ, STARTS_WITH, ENDS_WITH and CONTAINING.
func (b *QualifierBuilder) IgnoreCase(ignore bool) *QualifierBuilder {
	b.ignoreCase = ignore
	return b
}

// Metadata targets a record metadata field instead of a bin
func (b *QualifierBuilder) Metadata(field MetadataField) *QualifierBuilder {
	b.metadata = field
	return b
}

// Build validates and constructs the immutable qualifier
func (b *QualifierBuilder) Build() (*Qualifier, error) {
	if b.ctxErr != nil {
		return nil, b.ctxErr
	}
	if b.op == 0 {
		return nil, WithContext(ErrInvalidQualifier, map[string]interface{}{
			"bin":    b.bin,
			"reason": "exactly one filter operation is required",
		})
	}
	info, ok := opTable[b.op]
	if !ok {
		return nil, WithContext(ErrInvalidQualifier, map[string]interface{}{
			"operation": int(b.op),
			"reason":    "unknown filter operation",
		})
	}
	if b.metadata == MetaNone {
		if b.bin == "" {
			return nil, WithContext(ErrInvalidQualifier, map[string]interface{}{
				"operation": info.name,
				"reason":    "a path is required",
			})
		}
		if strings.Contains(b.bin, ".") {
			return nil, WithContext(ErrInvalidQualifier, map[string]interface{}{
				"bin":    b.bin,
				"reason": "bin name must be dot-free; use Context for nested lookups",
			})
		}
	}

	field := b.bin
	if b.metadata != MetaNone {
		field = b.metadata.String()
	}
	if b.entity != "" {
		field = b.entity + "." + field
	}

	values := b.values
	switch info.arity {
	case -1:
		// one collection-valued operand
		if len(values) != 1 {
			return nil, &ArityError{Field: field, Operation: info.name, Expected: info.arityWord}
		}
		normalized, ok := normalizeCollection(values[0])
		if !ok {
			return nil, &ArityError{Field: field, Operation: info.name, Expected: info.arityWord}
		}
		values = []interface{}{normalized}
	default:
		if len(values) != info.arity {
			return nil, &ArityError{Field: field, Operation: info.name, Expected: info.arityWord}
		}
	}

	if b.ignoreCase {
		switch b.op {
		case OpEq, OpStartsWith, OpEndsWith, OpContaining:
		default:
			return nil, WithContext(ErrInvalidQualifier, map[string]interface{}{
				"field":     field,
				"operation": info.name,
				"reason":    "ignoreCase is only supported for EQ, STARTS_WITH, ENDS_WITH, CONTAINING",
			})
		}
	}

	if b.metadata != MetaNone {
		switch b.op {
		case OpEq, OpNotEq, OpGt, OpGtEq, OpLt, OpLtEq, OpBetween:
		default:
			return nil, WithContext(ErrInvalidQualifier, map[string]interface{}{
				"field":     field,
				"operation": info.name,
				"reason":    "metadata qualifiers support only EQ, NOTEQ, GT, GTEQ, LT, LTEQ, BETWEEN",
			})
		}
		if len(b.path) > 0 {
			return nil, WithContext(ErrInvalidQualifier, map[string]interface{}{
				"field":  field,
				"reason": "metadata qualifiers cannot have a context path",
			})
		}
	}

	q := &Qualifier{
		op:         b.op,
		bin:        b.bin,
		entity:     b.entity,
		values:     values,
		ignoreCase: b.ignoreCase,
		metadata:   b.metadata,
	}
	if len(b.path) > 0 {
		q.path = make(ContextPath, len(b.path))
		copy(q.path, b.path)
	}

	if b.op == OpLike {
		pattern, ok := values[0].(string)
		if !ok {
			return nil, WithContext(ErrInvalidQualifier, map[string]interface{}{
				"field":  field,
				"reason": "LIKE expects a string pattern",
			})
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, WithContext(ErrInvalidQualifier, map[string]interface{}{
				"field":   field,
				"pattern": pattern,
				"reason":  "invalid LIKE pattern: " + err.Error(),
			})
		}
		q.re = re
	}

	return q, nil
}

// normalizeCollection converts any slice or array operand to
// []interface{} so IN/NOT_IN evaluation needs no reflection.
func normalizeCollection(v interface{}) ([]interface{}, bool) {
	if vs, ok := v.([]interface{}); ok {
		out := make([]interface{}, len(vs))
		copy(out, vs)
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Matches evaluates the qualifier tree against one record. This is the
// residual in-memory predicate: the authority for correctness even when
// a statement also carries a secondary-index filter.
func (q *Qualifier) Matches(kr KeyRecord) bool {
	if q.idKeys != nil {
		for _, k := range q.idKeys {
			if k == kr.Key.UserKey {
				return true
			}
		}
		return false
	}
	switch q.combo {
	case ComboAnd:
		for _, c := range q.children {
			if !c.Matches(kr) {
				return false
			}
		}
		return true
	case ComboOr:
		for _, c := range q.children {
			if c.Matches(kr) {
				return true
			}
		}
		return false
	}
	return q.matchLeaf(kr)
}

func (q *Qualifier) matchLeaf(kr KeyRecord) bool {
	var val interface{}
	present := false

	if q.metadata != MetaNone {
		if kr.Record != nil {
			present = true
			switch q.metadata {
			case MetaTTL:
				val = kr.Record.TTL
			case MetaLastUpdate:
				val = kr.Record.LastUpdate
			case MetaVoidTime:
				val = kr.Record.LastUpdate/1000 + kr.Record.TTL
			}
		}
	} else if kr.Record != nil {
		v, ok := kr.Record.Bins[q.bin]
		if ok && len(q.path) > 0 {
			v, ok = navigateContext(v, q.path)
		}
		val, present = v, ok
	}

	switch q.op {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	}
	if !present {
		return false
	}

	switch q.op {
	case OpEq:
		return equalValues(val, q.values[0], q.ignoreCase)
	case OpNotEq:
		return !equalValues(val, q.values[0], false)
	case OpGt:
		cmp, ok := compareValues(val, q.values[0])
		return ok && cmp > 0
	case OpGtEq:
		cmp, ok := compareValues(val, q.values[0])
		return ok && cmp >= 0
	case OpLt:
		cmp, ok := compareValues(val, q.values[0])
		return ok && cmp < 0
	case OpLtEq:
		cmp, ok := compareValues(val, q.values[0])
		return ok && cmp <= 0
	case OpBetween:
		lo, okLo := compareValues(val, q.values[0])
		hi, okHi := compareValues(val, q.values[1])
		return okLo && okHi && lo >= 0 && hi <= 0
	case OpStartsWith:
		s, p, ok := stringPair(val, q.values[0], q.ignoreCase)
		return ok && strings.HasPrefix(s, p)
	case OpEndsWith:
		s, p, ok := stringPair(val, q.values[0], q.ignoreCase)
		return ok && strings.HasSuffix(s, p)
	case OpContaining:
		s, p, ok := stringPair(val, q.values[0], q.ignoreCase)
		return ok && strings.Contains(s, p)
	case OpLike:
		s, ok := val.(string)
		return ok && q.re.MatchString(s)
	case OpIn:
		coll := q.values[0].([]interface{})
		for _, c := range coll {
			if equalValues(val, c, false) {
				return true
			}
		}
		return false
	case OpNotIn:
		coll := q.values[0].([]interface{})
		for _, c := range coll {
			if equalValues(val, c, false) {
				return false
			}
		}
		return true
	case OpListContains:
		list, ok := val.([]interface{})
		if !ok {
			return false
		}
		for _, el := range list {
			if equalValues(el, q.values[0], false) {
				return true
			}
		}
		return false
	case OpMapKeysContain:
		m, ok := asMap(val)
		if !ok {
			return false
		}
		for k := range m {
			if equalValues(k, q.values[0], false) {
				return true
			}
		}
		return false
	case OpMapValuesContain:
		m, ok := asMap(val)
		if !ok {
			return false
		}
		for _, v := range m {
			if equalValues(v, q.values[0], false) {
				return true
			}
		}
		return false
	case OpGeoWithin:
		region, ok := q.values[0].(string)
		if !ok {
			return false
		}
		return geoWithin(val, region)
	}
	return false
}

// navigateContext walks a nested map/list value along the path.
// Returns false when any step cannot be applied.
func navigateContext(v interface{}, path ContextPath) (interface{}, bool) {
	cur := v
	for _, step := range path {
		next, ok := applyContextStep(cur, step)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func applyContextStep(v interface{}, step ContextStep) (interface{}, bool) {
	switch step.kind {
	case StepMapKey:
		m, ok := asMap(v)
		if !ok {
			return nil, false
		}
		val, ok := m[step.key]
		return val, ok

	case StepMapIndex:
		m, ok := asMap(v)
		if !ok {
			return nil, false
		}
		keys := sortedMapKeys(m)
		i, ok := resolveIndex(step.index, len(keys))
		if !ok {
			return nil, false
		}
		return m[keys[i]], true

	case StepMapRank:
		m, ok := asMap(v)
		if !ok {
			return nil, false
		}
		vals := make([]interface{}, 0, len(m))
		for _, mv := range m {
			vals = append(vals, mv)
		}
		sortValues(vals)
		i, ok := resolveIndex(step.index, len(vals))
		if !ok {
			return nil, false
		}
		return vals[i], true

	case StepMapValue:
		m, ok := asMap(v)
		if !ok {
			return nil, false
		}
		for _, k := range sortedMapKeys(m) {
			if equalValues(m[k], step.value, false) {
				return m[k], true
			}
		}
		return nil, false

	case StepListIndex:
		list, ok := v.([]interface{})
		if !ok {
			return nil, false
		}
		i, ok := resolveIndex(step.index, len(list))
		if !ok {
			return nil, false
		}
		return list[i], true

	case StepListRank:
		list, ok := v.([]interface{})
		if !ok {
			return nil, false
		}
		sorted := make([]interface{}, len(list))
		copy(sorted, list)
		sortValues(sorted)
		i, ok := resolveIndex(step.index, len(sorted))
		if !ok {
			return nil, false
		}
		return sorted[i], true

	case StepListValue:
		list, ok := v.([]interface{})
		if !ok {
			return nil, false
		}
		for _, el := range list {
			if equalValues(el, step.value, false) {
				return el, true
			}
		}
		return nil, false
	}
	return nil, false
}

// resolveIndex maps a possibly-negative index onto [0, n)
func resolveIndex(i, n int) (int, bool) {
	if i < 0 {
		i = n + i
	}
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func sortedMapKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortValues(vals []interface{}) {
	sort.SliceStable(vals, func(i, j int) bool {
		cmp, ok := compareValues(vals[i], vals[j])
		return ok && cmp < 0
	})
}

// equalValues compares two operand values, tolerating numeric type
// differences (JSON decoding yields float64, builders often pass int).
func equalValues(a, b interface{}, ignoreCase bool) bool {
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return false
		}
		if ignoreCase {
			return strings.EqualFold(as, bs)
		}
		return as == bs
	}
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values; false when they are not comparable
func compareValues(a, b interface{}) (int, bool) {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// asInt reports integer-typed operands; floats do not qualify, which
// keeps range filters honest (numeric secondary indexes cover int64).
func asInt(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	default:
		return 0, false
	}
}

func stringPair(val, operand interface{}, ignoreCase bool) (string, string, bool) {
	s, ok := val.(string)
	if !ok {
		return "", "", false
	}
	p, ok := operand.(string)
	if !ok {
		return "", "", false
	}
	if ignoreCase {
		return strings.ToLower(s), strings.ToLower(p), true
	}
	return s, p, true
}
