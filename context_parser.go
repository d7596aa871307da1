package binquery

import (
	"fmt"
	"strconv"
)

// ParseContextPath parses the compact annotation grammar describing a
// chain of map/list navigation steps, e.g.
//
//	a.b.'10'.{#5}.{='1'}.[-1].[#100].[=20]
//
// Plain dot-separated segments are map keys (single or double quotes
// embed dots and special characters literally). {...} is a map step and
// [...] a list step; within brackets a bare integer selects by index,
// #N by rank and =V by value (quotes allowed around V).
//
// Parsing is a single left-to-right pass with no backtracking; every
// segment is validated as soon as it is read. Malformed input fails
// with a *ContextSyntaxError naming the offending substring.
func ParseContextPath(input string) (ContextPath, error) {
	if input == "" {
		return nil, &ContextSyntaxError{
			Input:     input,
			Offending: input,
			Pos:       0,
			Reason:    "contains empty context",
		}
	}

	var path ContextPath
	i := 0
	for {
		start := i
		step, next, err := parseContextSegment(input, start)
		if err != nil {
			return nil, err
		}
		path = append(path, step)
		i = next

		if i >= len(input) {
			return path, nil
		}
		if input[i] != '.' {
			return nil, &ContextSyntaxError{
				Input:     input,
				Offending: string(input[i]),
				Pos:       i,
				Reason:    fmt.Sprintf("expected '.' after segment, got %q", input[i]),
			}
		}
		i++ // consume the dot
		if i >= len(input) {
			// trailing dot leaves an empty final segment
			return nil, &ContextSyntaxError{
				Input:     input,
				Offending: input,
				Pos:       i,
				Reason:    "contains empty context",
			}
		}
	}
}

// parseContextSegment reads one segment starting at pos and returns the
// step plus the position just past the segment.
func parseContextSegment(input string, pos int) (ContextStep, int, error) {
	c := input[pos]
	switch {
	case c == '.':
		return ContextStep{}, 0, &ContextSyntaxError{
			Input:     input,
			Offending: input,
			Pos:       pos,
			Reason:    "contains empty context",
		}
	case c == '{' || c == '[':
		return parseBracketSegment(input, pos)
	case c == '\'' || c == '"':
		content, next, err := readQuoted(input, pos)
		if err != nil {
			return ContextStep{}, 0, err
		}
		return MapKeyStep(content), next, nil
	case c == '}' || c == ']':
		return ContextStep{}, 0, &ContextSyntaxError{
			Input:     input,
			Offending: string(c),
			Pos:       pos,
			Reason:    fmt.Sprintf("unexpected closing bracket %q", c),
		}
	default:
		end := pos
		for end < len(input) && input[end] != '.' {
			end++
		}
		return MapKeyStep(input[pos:end]), end, nil
	}
}

// parseBracketSegment reads a {...} map step or [...] list step.
func parseBracketSegment(input string, pos int) (ContextStep, int, error) {
	open := input[pos]
	wantClose := byte('}')
	isMap := true
	if open == '[' {
		wantClose = ']'
		isMap = false
	}

	// scan for the first closing bracket of either kind, skipping
	// quoted payloads so [='a]b'] parses
	i := pos + 1
	for i < len(input) {
		c := input[i]
		if c == '\'' || c == '"' {
			_, next, err := readQuoted(input, i)
			if err != nil {
				return ContextStep{}, 0, err
			}
			i = next
			continue
		}
		if c == '}' || c == ']' {
			break
		}
		i++
	}
	if i >= len(input) {
		return ContextStep{}, 0, &ContextSyntaxError{
			Input:     input,
			Offending: input[pos:],
			Pos:       pos,
			Reason:    fmt.Sprintf("unterminated %q", open),
		}
	}
	if input[i] != wantClose {
		return ContextStep{}, 0, &ContextSyntaxError{
			Input:     input,
			Offending: input[pos : i+1],
			Pos:       i,
			Reason:    fmt.Sprintf("expected %q to close %q, got %q", wantClose, open, input[i]),
		}
	}

	content := input[pos+1 : i]
	next := i + 1
	if content == "" {
		return ContextStep{}, 0, &ContextSyntaxError{
			Input:     input,
			Offending: input[pos:next],
			Pos:       pos,
			Reason:    fmt.Sprintf("empty bracket content %q", input[pos:next]),
		}
	}

	step, err := parseBracketContent(input, pos+1, content, isMap)
	if err != nil {
		return ContextStep{}, 0, err
	}
	return step, next, nil
}

// parseBracketContent interprets the payload between brackets.
// contentPos is the offset of content within input, for error reporting.
func parseBracketContent(input string, contentPos int, content string, isMap bool) (ContextStep, error) {
	switch content[0] {
	case '#':
		tok := content[1:]
		n, err := strconv.Atoi(tok)
		if err != nil {
			kind := "list rank"
			if isMap {
				kind = "map rank"
			}
			return ContextStep{}, &ContextSyntaxError{
				Input:     input,
				Offending: tok,
				Pos:       contentPos + 1,
				Reason:    fmt.Sprintf("expected integer for %s, got %q", kind, tok),
			}
		}
		if isMap {
			return MapRankStep(n), nil
		}
		return ListRankStep(n), nil

	case '=':
		tok := content[1:]
		if len(tok) > 0 && (tok[0] == '\'' || tok[0] == '"') {
			val, next, err := readQuoted(content, 1)
			if err != nil {
				return ContextStep{}, err
			}
			if next != len(content) {
				return ContextStep{}, &ContextSyntaxError{
					Input:     input,
					Offending: content,
					Pos:       contentPos + next,
					Reason:    fmt.Sprintf("trailing characters after quoted value in %q", content),
				}
			}
			if isMap {
				return MapValueStep(val), nil
			}
			return ListValueStep(val), nil
		}
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			kind := "list value"
			if isMap {
				kind = "map value"
			}
			return ContextStep{}, &ContextSyntaxError{
				Input:     input,
				Offending: tok,
				Pos:       contentPos + 1,
				Reason:    fmt.Sprintf("expected integer for unquoted %s, got %q", kind, tok),
			}
		}
		if isMap {
			return MapValueStep(n), nil
		}
		return ListValueStep(n), nil

	default:
		n, err := strconv.Atoi(content)
		if err != nil {
			kind := "list index"
			if isMap {
				kind = "map index"
			}
			return ContextStep{}, &ContextSyntaxError{
				Input:     input,
				Offending: content,
				Pos:       contentPos,
				Reason:    fmt.Sprintf("expected integer for %s, got %q", kind, content),
			}
		}
		if isMap {
			return MapIndexStep(n), nil
		}
		return ListIndexStep(n), nil
	}
}

// readQuoted reads a quoted token starting at pos (which must hold the
// opening quote) and returns the unquoted content and the position just
// past the closing quote.
func readQuoted(input string, pos int) (string, int, error) {
	quote := input[pos]
	for i := pos + 1; i < len(input); i++ {
		if input[i] == quote {
			return input[pos+1 : i], i + 1, nil
		}
	}
	return "", 0, &ContextSyntaxError{
		Input:     input,
		Offending: input[pos:],
		Pos:       pos,
		Reason:    fmt.Sprintf("unterminated quote %q", quote),
	}
}
