package rewrite

import (
	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/nethalo/tabproxy/internal/astfacade"
)

// CompleteGroupBy implements the GROUP BY completer (spec §4.5): when the
// projection mixes aggregated and non-aggregated expressions, every
// non-aggregated expression not already present in GROUP BY is appended,
// existing items first, in projection order. A projection with no
// aggregate is left untouched, per step 4 of the spec algorithm.
func CompleteGroupBy(sel *sqlparser.Select) (*sqlparser.Select, bool) {
	f := astfacade.New(sel)
	if !f.ProjectionHasAggregate() {
		return sel, false
	}

	existing := make(map[string]bool, len(sel.GroupBy))
	for _, e := range sel.GroupBy {
		existing[astfacade.String(e)] = true
	}

	nonAgg := f.ProjectionNonAggregatedExprs()
	newGroupBy := append(sqlparser.GroupBy{}, sel.GroupBy...)
	changed := false
	for _, e := range nonAgg {
		key := astfacade.String(e)
		if existing[key] {
			continue
		}
		existing[key] = true
		newGroupBy = append(newGroupBy, e)
		changed = true
	}
	if !changed {
		return sel, false
	}
	result := *sel
	result.GroupBy = newGroupBy
	return &result, true
}
