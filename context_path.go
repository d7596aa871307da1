package binquery

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// ContextStepKind identifies one kind of map/list navigation step.
type ContextStepKind int

const (
	StepMapKey ContextStepKind = iota + 1
	StepMapIndex
	StepMapRank
	StepMapValue
	StepListIndex
	StepListRank
	StepListValue
)

func (k ContextStepKind) String() string {
	switch k {
	case StepMapKey:
		return "map key"
	case StepMapIndex:
		return "map index"
	case StepMapRank:
		return "map rank"
	case StepMapValue:
		return "map value"
	case StepListIndex:
		return "list index"
	case StepListRank:
		return "list rank"
	case StepListValue:
		return "list value"
	default:
		return "unknown"
	}
}

// ContextStep is one navigation step into a nested map or list bin.
// Steps are immutable; they are produced once per parse and shared freely.
type ContextStep struct {
	kind  ContextStepKind
	key   string      // StepMapKey
	index int         // StepMapIndex, StepMapRank, StepListIndex, StepListRank
	value interface{} // StepMapValue, StepListValue: string or int64
}

// MapKeyStep returns a step selecting a map entry by key
func MapKeyStep(key string) ContextStep {
	return ContextStep{kind: StepMapKey, key: key}
}

// MapIndexStep returns a step selecting a map entry by key order
func MapIndexStep(i int) ContextStep {
	return ContextStep{kind: StepMapIndex, index: i}
}

// MapRankStep returns a step selecting a map entry by value order
func MapRankStep(r int) ContextStep {
	return ContextStep{kind: StepMapRank, index: r}
}

// MapValueStep returns a step selecting a map entry by value
func MapValueStep(v interface{}) ContextStep {
	return ContextStep{kind: StepMapValue, value: v}
}

// ListIndexStep returns a step selecting a list element by position.
// Negative indexes count from the end.
func ListIndexStep(i int) ContextStep {
	return ContextStep{kind: StepListIndex, index: i}
}

// ListRankStep returns a step selecting a list element by sorted order
func ListRankStep(r int) ContextStep {
	return ContextStep{kind: StepListRank, index: r}
}

// ListValueStep returns a step selecting a list element by value
func ListValueStep(v interface{}) ContextStep {
	return ContextStep{kind: StepListValue, value: v}
}

// Kind returns the step kind
func (s ContextStep) Kind() ContextStepKind { return s.kind }

// Key returns the map key payload (StepMapKey only)
func (s ContextStep) Key() string { return s.key }

// Index returns the index or rank payload
func (s ContextStep) Index() int { return s.index }

// Value returns the value payload (StepMapValue, StepListValue)
func (s ContextStep) Value() interface{} { return s.value }

// String renders the step in the annotation grammar
func (s ContextStep) String() string {
	switch s.kind {
	case StepMapKey:
		if strings.ContainsAny(s.key, ".{}[]'\"") {
			return "'" + s.key + "'"
		}
		return s.key
	case StepMapIndex:
		return "{" + strconv.Itoa(s.index) + "}"
	case StepMapRank:
		return "{#" + strconv.Itoa(s.index) + "}"
	case StepMapValue:
		return "{=" + renderCtxValue(s.value) + "}"
	case StepListIndex:
		return "[" + strconv.Itoa(s.index) + "]"
	case StepListRank:
		return "[#" + strconv.Itoa(s.index) + "]"
	case StepListValue:
		return "[=" + renderCtxValue(s.value) + "]"
	}
	return "?"
}

func renderCtxValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return "'" + t + "'"
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ContextPath is an ordered sequence of navigation steps into a bin
type ContextPath []ContextStep

// String renders the path in the annotation grammar; this is the
// canonical form used in index registry keys.
func (p ContextPath) String() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// Wire encoding of context paths.
//
// Index metadata read back from the store carries the context as an
// opaque base64 blob, already structured step by step; it is decoded
// through this lookup table, not through the annotation parser.

const (
	wireMapKey    = 'k'
	wireMapIndex  = 'i'
	wireMapRank   = 'r'
	wireMapValue  = 'v'
	wireListIndex = 'I'
	wireListRank  = 'R'
	wireListValue = 'V'
)

var wireStepKinds = map[byte]ContextStepKind{
	wireMapKey:    StepMapKey,
	wireMapIndex:  StepMapIndex,
	wireMapRank:   StepMapRank,
	wireMapValue:  StepMapValue,
	wireListIndex: StepListIndex,
	wireListRank:  StepListRank,
	wireListValue: StepListValue,
}

var wireStepCodes = map[ContextStepKind]byte{
	StepMapKey:    wireMapKey,
	StepMapIndex:  wireMapIndex,
	StepMapRank:   wireMapRank,
	StepMapValue:  wireMapValue,
	StepListIndex: wireListIndex,
	StepListRank:  wireListRank,
	StepListValue: wireListValue,
}

// EncodeWireContext serializes a context path into the base64 form
// stored alongside index metadata. Empty paths encode to "".
func EncodeWireContext(p ContextPath) string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, s := range p {
		code := wireStepCodes[s.kind]
		var payload string
		switch s.kind {
		case StepMapKey:
			payload = s.key
		case StepMapValue, StepListValue:
			if sv, ok := s.value.(string); ok {
				payload = "s" + sv
			} else {
				payload = fmt.Sprintf("n%v", s.value)
			}
		default:
			payload = strconv.Itoa(s.index)
		}
		parts[i] = string(code) + payload
	}
	joined := strings.Join(parts, "\x00")
	return base64.StdEncoding.EncodeToString([]byte(joined))
}

// DecodeWireContext parses the serialized context blob from index
// metadata back into a ContextPath via the step-code lookup table.
func DecodeWireContext(b64 string) (ContextPath, error) {
	if b64 == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, WithContext(ErrInvalidContext, map[string]interface{}{
			"wire":   b64,
			"reason": "not valid base64",
		})
	}
	parts := strings.Split(string(raw), "\x00")
	path := make(ContextPath, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, WithContext(ErrInvalidContext, map[string]interface{}{
				"wire":   b64,
				"reason": "empty wire step",
			})
		}
		kind, ok := wireStepKinds[part[0]]
		if !ok {
			return nil, WithContext(ErrInvalidContext, map[string]interface{}{
				"wire":   b64,
				"reason": "unknown step code " + strconv.QuoteRune(rune(part[0])),
			})
		}
		payload := part[1:]
		switch kind {
		case StepMapKey:
			path = append(path, MapKeyStep(payload))
		case StepMapValue, StepListValue:
			if payload == "" {
				return nil, WithContext(ErrInvalidContext, map[string]interface{}{
					"wire":   b64,
					"reason": "empty value payload",
				})
			}
			var v interface{}
			if payload[0] == 's' {
				v = payload[1:]
			} else {
				n, err := strconv.ParseInt(payload[1:], 10, 64)
				if err != nil {
					return nil, WithContext(ErrInvalidContext, map[string]interface{}{
						"wire":   b64,
						"reason": "bad numeric payload " + payload,
					})
				}
				v = n
			}
			if kind == StepMapValue {
				path = append(path, MapValueStep(v))
			} else {
				path = append(path, ListValueStep(v))
			}
		default:
			n, err := strconv.Atoi(payload)
			if err != nil {
				return nil, WithContext(ErrInvalidContext, map[string]interface{}{
					"wire":   b64,
					"reason": "bad index payload " + payload,
				})
			}
			path = append(path, ContextStep{kind: kind, index: n})
		}
	}
	return path, nil
}
