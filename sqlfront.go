package binquery

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xwb1989/sqlparser"
)

// SelectQuery is the translated form of a SQL SELECT: the target set
// and the predicate tree. A nil Qualifier means an unfiltered scan.
type SelectQuery struct {
	Set       string
	Qualifier *Qualifier
}

// ParseSelect translates a SQL SELECT statement into a qualifier tree.
// Only the FROM set and the WHERE predicate are consulted; projections,
// ORDER BY and LIMIT are not supported. The column named "id" addresses
// the primary key.
//
// Supported predicate forms: =, !=, <>, <, <=, >, >=, BETWEEN, IN,
// LIKE (translated to STARTS_WITH/ENDS_WITH/CONTAINING where the
// pattern allows), AND, OR and parenthesized groups.
func ParseSelect(sql string) (*SelectQuery, error) {
	sql = strings.TrimSuffix(strings.TrimSpace(sql), ";")

	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
			"sql":   sql,
			"cause": err.Error(),
		})
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
			"sql":    sql,
			"reason": "only SELECT statements are supported",
		})
	}
	if len(sel.From) != 1 {
		return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
			"sql":    sql,
			"reason": "exactly one FROM table is required",
		})
	}
	set, err := tableName(sel.From[0])
	if err != nil {
		return nil, err
	}

	out := &SelectQuery{Set: set}
	if sel.Where != nil {
		q, err := translateExpr(set, sel.Where.Expr)
		if err != nil {
			return nil, err
		}
		out.Qualifier = q
	}
	return out, nil
}

// QuerySQL parses a SQL SELECT and executes it in one step
func (e *Engine) QuerySQL(ctx context.Context, sql string, opts ...ExecOption) (*ResultIterator, error) {
	sq, err := ParseSelect(sql)
	if err != nil {
		return nil, err
	}
	if sq.Qualifier == nil {
		stmt := &CompiledStatement{
			ID:               uuid.NewString(),
			Namespace:        e.namespace,
			Set:              sq.Set,
			FullScanRequired: true,
		}
		return e.Execute(ctx, stmt, opts...)
	}
	return e.Query(ctx, sq.Set, sq.Qualifier, opts...)
}

func tableName(expr sqlparser.TableExpr) (string, error) {
	if t, ok := expr.(*sqlparser.AliasedTableExpr); ok {
		if tbl, ok := t.Expr.(sqlparser.TableName); ok {
			return tbl.Name.String(), nil
		}
	}
	return "", WithContext(ErrUnsupportedQuery, map[string]interface{}{
		"reason": "could not determine table name",
	})
}

func translateExpr(set string, expr sqlparser.Expr) (*Qualifier, error) {
	switch e := expr.(type) {
	case *sqlparser.AndExpr:
		left, err := translateExpr(set, e.Left)
		if err != nil {
			return nil, err
		}
		right, err := translateExpr(set, e.Right)
		if err != nil {
			return nil, err
		}
		return And(left, right)

	case *sqlparser.OrExpr:
		left, err := translateExpr(set, e.Left)
		if err != nil {
			return nil, err
		}
		right, err := translateExpr(set, e.Right)
		if err != nil {
			return nil, err
		}
		return Or(left, right)

	case *sqlparser.ParenExpr:
		return translateExpr(set, e.Expr)

	case *sqlparser.ComparisonExpr:
		return translateComparison(set, e)

	case *sqlparser.RangeCond:
		return translateRange(set, e)
	}
	return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
		"set":    set,
		"reason": "unsupported WHERE expression",
		"sql":    sqlparser.String(expr),
	})
}

func translateComparison(set string, e *sqlparser.ComparisonExpr) (*Qualifier, error) {
	col, ok := e.Left.(*sqlparser.ColName)
	if !ok {
		return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
			"set":    set,
			"reason": "left side of a comparison must be a column",
			"sql":    sqlparser.String(e),
		})
	}
	bin := col.Name.String()

	if bin == "id" {
		return translateIDComparison(set, e)
	}

	switch e.Operator {
	case sqlparser.EqualStr:
		return buildLeaf(set, bin, OpEq, e.Right)
	case sqlparser.NotEqualStr:
		return buildLeaf(set, bin, OpNotEq, e.Right)
	case sqlparser.LessThanStr:
		return buildLeaf(set, bin, OpLt, e.Right)
	case sqlparser.LessEqualStr:
		return buildLeaf(set, bin, OpLtEq, e.Right)
	case sqlparser.GreaterThanStr:
		return buildLeaf(set, bin, OpGt, e.Right)
	case sqlparser.GreaterEqualStr:
		return buildLeaf(set, bin, OpGtEq, e.Right)
	case sqlparser.InStr:
		values, err := tupleValues(e.Right)
		if err != nil {
			return nil, err
		}
		return NewQualifierBuilder().Entity(set).Bin(bin).Operation(OpIn).Values(values).Build()
	case sqlparser.NotInStr:
		values, err := tupleValues(e.Right)
		if err != nil {
			return nil, err
		}
		return NewQualifierBuilder().Entity(set).Bin(bin).Operation(OpNotIn).Values(values).Build()
	case sqlparser.LikeStr:
		return translateLike(set, bin, e.Right)
	}
	return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
		"set":      set,
		"operator": e.Operator,
		"reason":   "unsupported comparison operator",
	})
}

// translateIDComparison maps predicates over the "id" column onto
// primary-key qualifiers.
func translateIDComparison(set string, e *sqlparser.ComparisonExpr) (*Qualifier, error) {
	switch e.Operator {
	case sqlparser.EqualStr:
		v, err := scalarValue(e.Right)
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
				"set":    set,
				"reason": "id comparisons require string keys",
			})
		}
		return IDEq(s), nil
	case sqlparser.InStr:
		values, err := tupleValues(e.Right)
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(values))
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
					"set":    set,
					"reason": "id comparisons require string keys",
				})
			}
			keys = append(keys, s)
		}
		return IDIn(keys...), nil
	}
	return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
		"set":      set,
		"operator": e.Operator,
		"reason":   "only = and IN are supported on id",
	})
}

func translateRange(set string, e *sqlparser.RangeCond) (*Qualifier, error) {
	col, ok := e.Left.(*sqlparser.ColName)
	if !ok || e.Operator != sqlparser.BetweenStr {
		return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
			"set":    set,
			"reason": "unsupported range condition",
			"sql":    sqlparser.String(e),
		})
	}
	from, err := scalarValue(e.From)
	if err != nil {
		return nil, err
	}
	to, err := scalarValue(e.To)
	if err != nil {
		return nil, err
	}
	return NewQualifierBuilder().
		Entity(set).
		Bin(col.Name.String()).
		Operation(OpBetween).
		Values(from, to).
		Build()
}

// translateLike picks the cheapest equivalent of a LIKE pattern:
// leading/trailing % become substring operations, anything else keeps
// the full LIKE semantics via a regex translation.
func translateLike(set, bin string, right sqlparser.Expr) (*Qualifier, error) {
	v, err := scalarValue(right)
	if err != nil {
		return nil, err
	}
	pattern, ok := v.(string)
	if !ok {
		return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
			"set":    set,
			"reason": "LIKE requires a string pattern",
		})
	}

	inner := strings.TrimSuffix(strings.TrimPrefix(pattern, "%"), "%")
	if !strings.ContainsAny(inner, "%_") {
		b := NewQualifierBuilder().Entity(set).Bin(bin)
		switch {
		case strings.HasPrefix(pattern, "%") && strings.HasSuffix(pattern, "%"):
			return b.Operation(OpContaining).Values(inner).Build()
		case strings.HasSuffix(pattern, "%"):
			return b.Operation(OpStartsWith).Values(inner).Build()
		case strings.HasPrefix(pattern, "%"):
			return b.Operation(OpEndsWith).Values(inner).Build()
		default:
			return b.Operation(OpEq).Values(inner).Build()
		}
	}
	return NewQualifierBuilder().
		Entity(set).
		Bin(bin).
		Operation(OpLike).
		Values(likeToRegex(pattern)).
		Build()
}

// likeToRegex converts SQL LIKE wildcards into an anchored regex
func likeToRegex(pattern string) string {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(escapeRegexRune(r))
		}
	}
	sb.WriteString("$")
	return sb.String()
}

func escapeRegexRune(r rune) string {
	if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
		return `\` + string(r)
	}
	return string(r)
}

func buildLeaf(set, bin string, op FilterOperation, right sqlparser.Expr) (*Qualifier, error) {
	v, err := scalarValue(right)
	if err != nil {
		return nil, err
	}
	return NewQualifierBuilder().Entity(set).Bin(bin).Operation(op).Values(v).Build()
}

func scalarValue(expr sqlparser.Expr) (interface{}, error) {
	switch e := expr.(type) {
	case *sqlparser.SQLVal:
		switch e.Type {
		case sqlparser.StrVal:
			return string(e.Val), nil
		case sqlparser.IntVal:
			n, err := strconv.ParseInt(string(e.Val), 10, 64)
			if err != nil {
				return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
					"value": string(e.Val),
					"cause": err.Error(),
				})
			}
			return n, nil
		case sqlparser.FloatVal:
			f, err := strconv.ParseFloat(string(e.Val), 64)
			if err != nil {
				return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
					"value": string(e.Val),
					"cause": err.Error(),
				})
			}
			return f, nil
		}
	case sqlparser.BoolVal:
		return bool(e), nil
	case *sqlparser.NullVal:
		return nil, nil
	}
	return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
		"reason": "unsupported literal",
		"sql":    sqlparser.String(expr),
	})
}

func tupleValues(expr sqlparser.Expr) ([]interface{}, error) {
	tuple, ok := expr.(sqlparser.ValTuple)
	if !ok {
		return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
			"reason": "IN requires a value list",
			"sql":    sqlparser.String(expr),
		})
	}
	out := make([]interface{}, 0, len(tuple))
	for _, v := range tuple {
		val, err := scalarValue(v)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}
