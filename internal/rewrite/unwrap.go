// Package rewrite implements the transforms that run between classification
// and the policy gates: the two wrapper unwrappers (spec §4.3), the
// subquery flattener (§4.4), and the GROUP BY completer (§4.5). Every
// function here follows the same contract: on success it returns the
// rewritten statement (SQL text from UnwrapParen, an AST from the others)
// plus true; when it cannot confidently rewrite, it returns the input
// unchanged and false ("no rewrite") rather than guessing — callers treat
// that as "try the next stage, or stop rewriting and let the gates decide."
package rewrite

import (
	"regexp"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"
)

// reLimitOnly matches a trailing "LIMIT n" with nothing else around it.
var reLimitOnly = regexp.MustCompile(`(?i)^LIMIT\s+\d+$`)

// UnwrapParen implements the ParenSelect unwrap (spec §4.3, text-level):
// `( <inner-select> ) [LIMIT n]` becomes `<inner-select> [LIMIT n]`. The
// match is done by balanced-paren scanning rather than a single regex,
// since the inner SELECT may itself contain parenthesized expressions or
// subqueries that a non-backtracking capture group would mis-bound.
func UnwrapParen(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) == 0 || trimmed[0] != '(' {
		return text, false
	}
	depth := 0
	end := -1
	for i, r := range trimmed {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				end = i
				goto found
			}
			if depth < 0 {
				return text, false
			}
		}
	}
found:
	if end == -1 {
		return text, false
	}
	inner := strings.TrimSpace(trimmed[1:end])
	if !strings.HasPrefix(strings.ToUpper(inner), "SELECT") {
		return text, false
	}
	rest := strings.TrimSpace(trimmed[end+1:])
	if rest != "" && !reLimitOnly.MatchString(rest) {
		return text, false
	}
	if rest == "" {
		return inner, true
	}
	return inner + " " + rest, true
}

// UnwrapTableauWrapper implements the Tableau custom-SQL unwrap (spec
// §4.3, AST-level): a SELECT whose sole FROM is a single parenthesized
// derived table, with no outer WHERE/GROUP BY/HAVING/ORDER BY. ast must be
// the already-reparsed statement (the caller reparses after UnwrapParen,
// per the "each re-parses before running the next" rule in §4.3).
func UnwrapTableauWrapper(ast sqlparser.Statement) (sqlparser.Statement, bool) {
	outer, ok := ast.(*sqlparser.Select)
	if !ok {
		return ast, false
	}
	if outer.Where != nil || len(outer.GroupBy) > 0 || outer.Having != nil || len(outer.OrderBy) > 0 {
		return ast, false
	}
	if len(outer.From) != 1 {
		return ast, false
	}
	ate, ok := outer.From[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return ast, false
	}
	dt, ok := ate.Expr.(*sqlparser.DerivedTable)
	if !ok {
		return ast, false
	}
	inner, ok := dt.Select.(*sqlparser.Select)
	if !ok || inner.Having != nil {
		return ast, false
	}

	if isBareStar(outer.SelectExprs) {
		result := *inner
		if outer.Limit != nil {
			result.Limit = outer.Limit
		}
		return &result, true
	}

	outerAlias := ate.As.String()
	innerNames := projectionOutputNames(inner.SelectExprs)
	newProjection, ok := rewriteProjectionAgainstAlias(outer.SelectExprs, outerAlias, innerNames)
	if !ok {
		return ast, false
	}

	result := *inner
	result.SelectExprs = newProjection
	if outer.Limit != nil {
		result.Limit = outer.Limit
	}
	return &result, true
}

func isBareStar(exprs sqlparser.SelectExprs) bool {
	if len(exprs) != 1 {
		return false
	}
	star, ok := exprs[0].(*sqlparser.StarExpr)
	return ok && star.TableName.IsEmpty()
}

// projectionOutputNames returns, for each inner projection entry, the
// identifier a reference to it from outside would use: the AS alias if
// present, else the bare column name for a simple column reference. An
// entry that is neither (a computed expression with no alias) contributes
// no name, since outer references couldn't unambiguously name it either.
func projectionOutputNames(exprs sqlparser.SelectExprs) map[string]bool {
	names := make(map[string]bool)
	for _, e := range exprs {
		aliased, ok := e.(*sqlparser.AliasedExpr)
		if !ok {
			continue
		}
		if !aliased.As.IsEmpty() {
			names[strings.ToLower(aliased.As.String())] = true
			continue
		}
		if col, ok := aliased.Expr.(*sqlparser.ColName); ok {
			names[strings.ToLower(col.Name.String())] = true
		}
	}
	return names
}

// rewriteProjectionAgainstAlias checks that every column reference in the
// outer projection list — qualified by outerAlias or bare — resolves to a
// name the inner SELECT actually produces, and if so returns the
// projection with the alias qualifier stripped (the new FROM has no such
// alias in scope).
func rewriteProjectionAgainstAlias(exprs sqlparser.SelectExprs, outerAlias string, innerNames map[string]bool) (sqlparser.SelectExprs, bool) {
	out := make(sqlparser.SelectExprs, 0, len(exprs))
	for _, e := range exprs {
		aliased, ok := e.(*sqlparser.AliasedExpr)
		if !ok {
			return nil, false
		}
		col, ok := aliased.Expr.(*sqlparser.ColName)
		if !ok {
			return nil, false
		}
		qualifier := col.Qualifier.Name.String()
		if qualifier != "" && !strings.EqualFold(qualifier, outerAlias) {
			return nil, false
		}
		if !innerNames[strings.ToLower(col.Name.String())] {
			return nil, false
		}
		newCol := *col
		newCol.Qualifier = sqlparser.TableName{}
		newAliased := *aliased
		newAliased.Expr = &newCol
		out = append(out, &newAliased)
	}
	return out, true
}
