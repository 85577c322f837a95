package rewrite

import (
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"
)

// Flatten implements the subquery flattener (spec §4.4): collapses
// `SELECT p FROM (SELECT q FROM T WHERE Wi [GROUP BY Gi]) a WHERE Wo
// [GROUP BY Go]` into `SELECT p' FROM T WHERE Wi AND Wo' [GROUP BY G']`.
// maxDepth bounds recursion into nested derived tables (default 2, per
// config `transformations.max_subquery_depth`); HAVING on either side
// declines the rewrite entirely (Open Question #2, resolved in DESIGN.md).
func Flatten(outer *sqlparser.Select, maxDepth int) (*sqlparser.Select, bool) {
	if maxDepth <= 0 {
		return outer, false
	}
	if outer.Having != nil {
		return outer, false
	}
	if len(outer.From) != 1 {
		return outer, false
	}
	ate, ok := outer.From[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return outer, false
	}
	dt, ok := ate.Expr.(*sqlparser.DerivedTable)
	if !ok {
		return outer, false
	}
	inner, ok := dt.Select.(*sqlparser.Select)
	if !ok || inner.Having != nil {
		return outer, false
	}

	alias := ate.As.String()
	resolve := columnResolver(inner.SelectExprs, alias)

	newProjection, ok := substituteProjection(outer.SelectExprs, resolve)
	if !ok {
		return outer, false
	}

	var newWhere sqlparser.Expr
	if outer.Where != nil {
		rewritten, ok := substituteExpr(outer.Where.Expr, resolve)
		if !ok {
			return outer, false
		}
		newWhere = rewritten
	}

	mergedWhere := mergeWhere(inner.Where, newWhere)

	newGroupBy, ok := resolvedGroupBy(outer.GroupBy, inner.GroupBy, resolve)
	if !ok {
		return outer, false
	}

	result := *inner
	result.SelectExprs = newProjection
	result.Where = mergedWhere
	result.GroupBy = newGroupBy

	// A derived table nested inside this one's FROM (deeper wrapping) gets
	// one more flatten pass, bounded by maxDepth.
	if again, ok := Flatten(&result, maxDepth-1); ok {
		return again, true
	}
	return &result, true
}

// mergeWhere implements the spec's `Wi AND Wo'` merge: no reordering, no
// deduplication.
func mergeWhere(inner *sqlparser.Where, outer sqlparser.Expr) *sqlparser.Where {
	switch {
	case inner == nil && outer == nil:
		return nil
	case inner == nil:
		return &sqlparser.Where{Type: sqlparser.WhereClause, Expr: outer}
	case outer == nil:
		return inner
	default:
		return &sqlparser.Where{
			Type: sqlparser.WhereClause,
			Expr: &sqlparser.AndExpr{Left: inner.Expr, Right: outer},
		}
	}
}

// resolvedGroupBy implements the spec's GROUP BY inheritance: outer Go
// (translated through the alias map) if present, else inner Gi, else none.
func resolvedGroupBy(outer, inner sqlparser.GroupBy, resolve resolverFunc) (sqlparser.GroupBy, bool) {
	if len(outer) > 0 {
		out := make(sqlparser.GroupBy, 0, len(outer))
		for _, e := range outer {
			rewritten, ok := substituteExpr(e, resolve)
			if !ok {
				return nil, false
			}
			out = append(out, rewritten)
		}
		return out, true
	}
	return inner, true
}

type resolverFunc func(col *sqlparser.ColName) (sqlparser.Expr, bool, bool)

// columnResolver builds a lookup from an outer column reference (qualified
// by alias, or bare — there is nothing else in scope once flattened) to
// the inner SELECT's underlying expression. The second return value
// (handled) reports whether the column was qualified by this alias or
// unqualified (both are in scope); a reference qualified by some other
// alias is left untouched (handled=false). The third reports whether an
// in-scope column resolved, so callers can tell "not ours" apart from
// "ours but unresolvable."
func columnResolver(innerExprs sqlparser.SelectExprs, alias string) resolverFunc {
	byOutputName := make(map[string]sqlparser.Expr)
	for _, e := range innerExprs {
		aliased, ok := e.(*sqlparser.AliasedExpr)
		if !ok {
			continue
		}
		if !aliased.As.IsEmpty() {
			byOutputName[strings.ToLower(aliased.As.String())] = aliased.Expr
			continue
		}
		if col, ok := aliased.Expr.(*sqlparser.ColName); ok {
			byOutputName[strings.ToLower(col.Name.String())] = aliased.Expr
		}
	}
	return func(col *sqlparser.ColName) (sqlparser.Expr, bool, bool) {
		qualifier := col.Qualifier.Name.String()
		if qualifier != "" && !strings.EqualFold(qualifier, alias) {
			return nil, false, false
		}
		expr, ok := byOutputName[strings.ToLower(col.Name.String())]
		return expr, true, ok
	}
}

func substituteProjection(exprs sqlparser.SelectExprs, resolve resolverFunc) (sqlparser.SelectExprs, bool) {
	out := make(sqlparser.SelectExprs, 0, len(exprs))
	for _, e := range exprs {
		aliased, ok := e.(*sqlparser.AliasedExpr)
		if !ok {
			// e.g. a bare '*' from the outer SELECT — nothing to resolve,
			// carried through as-is.
			out = append(out, e)
			continue
		}
		rewritten, ok := substituteExpr(aliased.Expr, resolve)
		if !ok {
			return nil, false
		}
		newAliased := *aliased
		newAliased.Expr = rewritten
		out = append(out, &newAliased)
	}
	return out, true
}

// substituteExpr replaces every ColName in expr that resolves through
// resolve, via vitess's generic AST rewriter. A ColName that is ours
// (matches the alias or is unqualified) but does not resolve aborts the
// whole substitution — that's the flattener's "decline" case from §4.4.
func substituteExpr(expr sqlparser.Expr, resolve resolverFunc) (sqlparser.Expr, bool) {
	if expr == nil {
		return nil, true
	}
	declined := false
	rewritten := sqlparser.Rewrite(expr, nil, func(cursor *sqlparser.Cursor) bool {
		col, ok := cursor.Node().(*sqlparser.ColName)
		if !ok {
			return true
		}
		replacement, handled, resolvedOK := resolve(col)
		if !handled {
			return true
		}
		if !resolvedOK {
			declined = true
			return false
		}
		cursor.Replace(replacement)
		return true
	})
	if declined {
		return nil, false
	}
	result, ok := rewritten.(sqlparser.Expr)
	if !ok {
		return nil, false
	}
	return result, true
}
