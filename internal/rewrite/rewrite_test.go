package rewrite

import (
	"testing"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/nethalo/tabproxy/internal/astfacade"
)

func mustParseSelect(t *testing.T, sql string) *sqlparser.Select {
	t.Helper()
	ast, err := astfacade.Parse(sql)
	if err != nil {
		t.Fatalf("Parse(%q): %v", sql, err)
	}
	sel, ok := ast.(*sqlparser.Select)
	if !ok {
		t.Fatalf("Parse(%q) did not produce a SELECT", sql)
	}
	return sel
}

func TestUnwrapParen(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"simple", "(SELECT a FROM t)", "SELECT a FROM t", true},
		{"with limit", "(SELECT a FROM t) LIMIT 5", "SELECT a FROM t LIMIT 5", true},
		{"nested parens", "(SELECT a FROM t WHERE (a = 1 OR a = 2))", "SELECT a FROM t WHERE (a = 1 OR a = 2)", true},
		{"not paren wrapped", "SELECT a FROM t", "", false},
		{"trailing garbage", "(SELECT a FROM t) FOO", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := UnwrapParen(tt.in)
			if ok != tt.ok {
				t.Fatalf("UnwrapParen(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("UnwrapParen(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUnwrapTableauWrapperBareStar(t *testing.T) {
	sel := mustParseSelect(t, "SELECT * FROM (SELECT category, SUM(amount) FROM sales WHERE cob_date = '2024-01-15') sub")
	got, ok := UnwrapTableauWrapper(sel)
	if !ok {
		t.Fatal("expected unwrap to succeed")
	}
	gotSel := got.(*sqlparser.Select)
	if len(gotSel.SelectExprs) != 2 {
		t.Errorf("expected inner projection to surface, got %s", astfacade.String(gotSel))
	}
}

func TestUnwrapTableauWrapperDeclinesWithOuterWhere(t *testing.T) {
	sel := mustParseSelect(t, "SELECT * FROM (SELECT a FROM t) sub WHERE a = 1")
	_, ok := UnwrapTableauWrapper(sel)
	if ok {
		t.Fatal("expected decline when outer WHERE is present")
	}
}

func TestFlattenMergesWhereAndGroupBy(t *testing.T) {
	sel := mustParseSelect(t, "SELECT category, SUM(amount) FROM (SELECT category, amount FROM sales WHERE cob_date = '2024-01-15') sub GROUP BY category")
	got, ok := Flatten(sel, 2)
	if !ok {
		t.Fatal("expected flatten to succeed")
	}
	text := astfacade.String(got)
	if got.Where == nil {
		t.Fatalf("expected merged WHERE, got none in %s", text)
	}
	if len(got.GroupBy) == 0 {
		t.Fatalf("expected GROUP BY to survive, got %s", text)
	}
}

func TestFlattenDeclinesOnHaving(t *testing.T) {
	sel := mustParseSelect(t, "SELECT category, SUM(amount) FROM (SELECT category, amount FROM sales) sub GROUP BY category HAVING SUM(amount) > 0")
	_, ok := Flatten(sel, 2)
	if ok {
		t.Fatal("expected decline when HAVING is present")
	}
}

func TestFlattenDeclinesOnUnresolvableColumn(t *testing.T) {
	sel := mustParseSelect(t, "SELECT sub.missing FROM (SELECT category FROM sales) sub")
	_, ok := Flatten(sel, 2)
	if ok {
		t.Fatal("expected decline when a projected column does not resolve")
	}
}

func TestFlattenRespectsMaxDepthZero(t *testing.T) {
	sel := mustParseSelect(t, "SELECT category FROM (SELECT category FROM sales) sub")
	_, ok := Flatten(sel, 0)
	if ok {
		t.Fatal("expected decline when maxDepth is exhausted")
	}
}

func TestCompleteGroupBy(t *testing.T) {
	sel := mustParseSelect(t, "SELECT category, region, SUM(amount) FROM sales GROUP BY category")
	got, changed := CompleteGroupBy(sel)
	if !changed {
		t.Fatal("expected GROUP BY to be completed")
	}
	if len(got.GroupBy) != 2 {
		t.Errorf("expected 2 GROUP BY terms, got %d (%s)", len(got.GroupBy), astfacade.String(got))
	}
}

func TestCompleteGroupByNoAggregateNoop(t *testing.T) {
	sel := mustParseSelect(t, "SELECT category, region FROM sales")
	_, changed := CompleteGroupBy(sel)
	if changed {
		t.Fatal("expected no-op when projection has no aggregate")
	}
}

func TestCompleteGroupByAlreadyComplete(t *testing.T) {
	sel := mustParseSelect(t, "SELECT category, SUM(amount) FROM sales GROUP BY category")
	_, changed := CompleteGroupBy(sel)
	if changed {
		t.Fatal("expected no-op when GROUP BY already covers all non-aggregated expressions")
	}
}
