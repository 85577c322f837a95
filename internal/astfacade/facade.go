// Package astfacade is a thin, typed view over vitess's sqlparser AST:
// the shared parser plus the read-only accessors the classifier, policy
// gates and rewriters have in common. The rewrite, policy and synth
// packages also switch on sqlparser node types directly where they
// rebuild, walk or evaluate nodes.
package astfacade

import (
	"strings"
	"sync"

	"vitess.io/vitess/go/vt/sqlparser"
)

var (
	parserOnce      sync.Once
	globalParser    *sqlparser.Parser
	globalParserErr error
)

func getParser() (*sqlparser.Parser, error) {
	parserOnce.Do(func() {
		globalParser, globalParserErr = sqlparser.New(sqlparser.Options{})
	})
	return globalParser, globalParserErr
}

// Parse parses raw SQL text. A parse failure is not fatal to the caller —
// the classifier and orchestrator decide what to do with text that has no
// AST (pass through untouched, or reject, depending on shape).
func Parse(sql string) (sqlparser.Statement, error) {
	p, err := getParser()
	if err != nil {
		return nil, err
	}
	return p.Parse(sql)
}

// Facade wraps a parsed statement of any kind. The SELECT-specific
// accessors return nil or false when it is not a SELECT; Statement,
// TablesReferenced and FunctionsUsed work on every kind.
type Facade struct {
	stmt sqlparser.Statement
	sel  *sqlparser.Select // non-nil iff stmt is a SELECT
}

// New wraps a parsed AST. ast may be nil (parse failure); callers must
// check Select() before using SELECT-specific accessors.
func New(ast sqlparser.Statement) *Facade {
	f := &Facade{stmt: ast}
	if sel, ok := ast.(*sqlparser.Select); ok {
		f.sel = sel
	}
	return f
}

// IsSelect reports whether the wrapped statement is a SELECT.
func (f *Facade) IsSelect() bool { return f.sel != nil }

// Select returns the underlying *sqlparser.Select, or nil if this facade
// does not wrap a SELECT.
func (f *Facade) Select() *sqlparser.Select { return f.sel }

// Statement returns the underlying parsed statement, whatever its kind.
func (f *Facade) Statement() sqlparser.Statement { return f.stmt }

// Projection returns the SELECT's projection list, or nil for non-SELECTs.
func (f *Facade) Projection() sqlparser.SelectExprs {
	if f.sel == nil {
		return nil
	}
	return f.sel.SelectExprs
}

// FromTable returns the From clause's table expressions.
func (f *Facade) FromTable() sqlparser.TableExprs {
	if f.sel == nil {
		return nil
	}
	return f.sel.From
}

// OuterWhere returns the outermost WHERE expression, or nil if absent.
func (f *Facade) OuterWhere() sqlparser.Expr {
	if f.sel == nil || f.sel.Where == nil {
		return nil
	}
	return f.sel.Where.Expr
}

// HasWhere reports whether a WHERE clause is present.
func (f *Facade) HasWhere() bool {
	return f.sel != nil && f.sel.Where != nil
}

// GroupBy returns the GROUP BY expression list.
func (f *Facade) GroupBy() sqlparser.GroupBy {
	if f.sel == nil {
		return nil
	}
	return f.sel.GroupBy
}

// HasGroupBy reports whether a GROUP BY clause is present and non-empty.
func (f *Facade) HasGroupBy() bool {
	return f.sel != nil && len(f.sel.GroupBy) > 0
}

// HasHaving reports whether a HAVING clause is present.
func (f *Facade) HasHaving() bool {
	return f.sel != nil && f.sel.Having != nil
}

// OrderBy returns the ORDER BY list.
func (f *Facade) OrderBy() sqlparser.OrderBy {
	if f.sel == nil {
		return nil
	}
	return f.sel.OrderBy
}

// HasOrderBy reports whether an ORDER BY clause is present.
func (f *Facade) HasOrderBy() bool {
	return f.sel != nil && len(f.sel.OrderBy) > 0
}

// Limit returns the LIMIT clause, or nil if absent.
func (f *Facade) Limit() *sqlparser.Limit {
	if f.sel == nil {
		return nil
	}
	return f.sel.Limit
}

// Subqueries collects every derived-table and scalar subquery reachable
// from this SELECT (not recursing into those subqueries' own subqueries).
func (f *Facade) Subqueries() []*sqlparser.Select {
	if f.sel == nil {
		return nil
	}
	var out []*sqlparser.Select
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.DerivedTable:
			if s, ok := n.Select.(*sqlparser.Select); ok {
				out = append(out, s)
			}
			return false, nil
		case *sqlparser.Subquery:
			if s, ok := n.Select.(*sqlparser.Select); ok {
				out = append(out, s)
			}
			return false, nil
		}
		return true, nil
	}, f.sel)
	return out
}

// TablesReferenced returns every base-table name referenced anywhere in the
// statement (FROM clauses at any depth, including subqueries), as (schema,
// table) pairs (Schema empty if unqualified). The qualifier of a column
// reference (the `s` in `s.cob_date`) is not a table reference and is not
// returned. Comparisons elsewhere should use EqualFoldIdent, not ==, since
// this is not further normalized for case or quoting.
func (f *Facade) TablesReferenced() []TableRef {
	var out []TableRef
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.ColName:
			return false, nil
		case sqlparser.TableName:
			if !n.IsEmpty() {
				out = append(out, TableRef{
					Schema: n.Qualifier.String(),
					Table:  n.Name.String(),
				})
			}
		}
		return true, nil
	}, f.stmt)
	return out
}

// TableRef is a (schema, table) pair as it appeared in the statement.
type TableRef struct {
	Schema string
	Table  string
}

// FunctionsUsed returns the lower-cased names of every function call
// anywhere in the statement. Vitess parses SUM/AVG/MIN/MAX/COUNT/
// COUNT(*)/GROUP_CONCAT and the other built-in aggregates into their own
// dedicated AST node types (sqlparser.AggrFunc), not *sqlparser.FuncExpr,
// so both are walked here.
func (f *Facade) FunctionsUsed() []string {
	var out []string
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.FuncExpr:
			out = append(out, strings.ToLower(n.Name.String()))
		case sqlparser.AggrFunc:
			out = append(out, strings.ToLower(n.AggrName()))
		}
		return true, nil
	}, f.stmt)
	return out
}

// WhereMentions reports whether colName is referenced as a direct column
// reference anywhere in expr (at any depth of a boolean expression), but
// not inside a nested subquery's own WHERE — callers pass the outermost
// WHERE expression for the date-gate's "mention at the outer level only"
// semantics (spec §4.6).
func WhereMentions(expr sqlparser.Expr, colName string) bool {
	if expr == nil {
		return false
	}
	found := false
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.Subquery:
			// Do not descend into subqueries: a mention there doesn't
			// satisfy the outer gate.
			return false, nil
		case *sqlparser.ColName:
			if EqualFoldIdent(n.Name.String(), colName) {
				found = true
				return false, nil
			}
		}
		return true, nil
	}, expr)
	return found
}

// ProjectionHasAggregate reports whether any top-level projection
// expression is (or contains) an aggregate function call.
func (f *Facade) ProjectionHasAggregate() bool {
	for _, expr := range f.Projection() {
		aliased, ok := expr.(*sqlparser.AliasedExpr)
		if !ok {
			continue
		}
		if exprIsOrContainsAggregate(aliased.Expr) {
			return true
		}
	}
	return false
}

// aggregateFuncs names the handful of aggregates MySQL (and this parser)
// might ever surface as a plain *sqlparser.FuncExpr rather than one of the
// dedicated sqlparser.AggrFunc node types (e.g. via an ODBC-style quoted
// call). The dedicated node types are the common case and are matched via
// the AggrFunc interface below, not this map.
var aggregateFuncs = map[string]bool{
	"sum": true, "avg": true, "min": true, "max": true, "count": true,
	"group_concat": true, "std": true, "stddev": true, "variance": true,
	"bit_and": true, "bit_or": true, "bit_xor": true,
}

// exprIsOrContainsAggregate reports whether expr is, or contains, an
// aggregate function call. Vitess's grammar parses SUM/AVG/MIN/MAX/COUNT/
// COUNT(*)/GROUP_CONCAT/etc. into their own dedicated AST types (*sqlparser.
// Sum, *sqlparser.Count, *sqlparser.CountStar, ...), all implementing the
// sqlparser.AggrFunc interface — not *sqlparser.FuncExpr, which only covers
// ordinary (non-aggregate) function calls like UPPER(...).
func exprIsOrContainsAggregate(expr sqlparser.Expr) bool {
	found := false
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if _, ok := node.(sqlparser.AggrFunc); ok {
			found = true
			return false, nil
		}
		if fn, ok := node.(*sqlparser.FuncExpr); ok {
			if aggregateFuncs[strings.ToLower(fn.Name.String())] {
				found = true
				return false, nil
			}
		}
		return true, nil
	}, expr)
	return found
}

// ProjectionNonAggregatedExprs returns the top-level projection expressions
// that are not themselves aggregates, in projection order, with aliases
// stripped (the completer needs the bare expression text).
func (f *Facade) ProjectionNonAggregatedExprs() []sqlparser.Expr {
	var out []sqlparser.Expr
	for _, expr := range f.Projection() {
		aliased, ok := expr.(*sqlparser.AliasedExpr)
		if !ok {
			// *, or a qualified star — never itself aggregated.
			continue
		}
		if !exprIsOrContainsAggregate(aliased.Expr) {
			out = append(out, aliased.Expr)
		}
	}
	return out
}

// String re-serializes a node via the parser's own formatter. Re-
// serialization of an unmodified AST is guaranteed semantically (not
// necessarily textually) equivalent to the original input.
func String(node sqlparser.SQLNode) string {
	return sqlparser.String(node)
}

// EqualFoldIdent compares two identifiers the way MySQL compares unquoted
// column and table names: case-insensitively, ignoring backtick or
// double-quote quoting.
// Schema/table name case-sensitivity is filesystem-dependent in real MySQL,
// but every identifier this proxy classifies on is a column or alias, where
// MySQL is always case-insensitive, so a single fold comparison suffices.
func EqualFoldIdent(a, b string) bool {
	return strings.EqualFold(unquoteIdent(a), unquoteIdent(b))
}

func unquoteIdent(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '`' && s[len(s)-1] == '`' || s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1]
	}
	return s
}
