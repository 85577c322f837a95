package synth

import (
	"fmt"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/nethalo/tabproxy/internal/statement"
)

var infoSchemaColumnWhitelist = map[string]bool{
	"table_name":   true,
	"table_schema": true,
	"table_type":   true,
}

// RewriteInformationSchema implements spec §4.7's INFORMATION_SCHEMA
// decision table. sel is a SELECT the classifier routed as KindInfoSchema
// (it references one of the system schemas); only a sole FROM table
// qualified by information_schema is translated. It never errors: any
// other FROM shape, an unrecognized relation or
// a WHERE clause outside the "simple" predicate shape always yields
// EmptyOk rather than guessing at a translation (spec §9's explicit
// tightening of the source's pass-through-to-backend behavior).
func RewriteInformationSchema(sel *sqlparser.Select) statement.Fate {
	relation, ok := soleInfoSchemaRelation(sel)
	if !ok {
		return emptyOk()
	}

	switch relation {
	case "schemata":
		return rewriteAndPass("SHOW DATABASES")
	case "tables":
		preds, simple := simpleWherePredicates(sel)
		if !simple {
			return emptyOk()
		}
		sql := "SHOW TABLES"
		if schema, ok := preds["table_schema"]; ok {
			sql += " FROM " + backtickIdent(schema)
		}
		return rewriteAndPass(sql)
	case "columns":
		preds, simple := simpleWherePredicates(sel)
		if !simple {
			return emptyOk()
		}
		table, ok := preds["table_name"]
		if !ok {
			return emptyOk()
		}
		target := backtickIdent(table)
		if schema, ok := preds["table_schema"]; ok {
			target = backtickIdent(schema) + "." + target
		}
		return rewriteAndPass(fmt.Sprintf("SHOW COLUMNS FROM %s", target))
	default:
		return emptyOk()
	}
}

// backtickIdent quotes a value pulled from a string-literal predicate as a
// MySQL identifier, so a schema/table name containing a backtick can't
// break out of the generated SHOW statement.
func backtickIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func emptyOk() statement.Fate {
	return statement.Fate{Tag: statement.FateEmptyOk}
}

func rewriteAndPass(sql string) statement.Fate {
	return statement.Fate{Tag: statement.FateRewriteAndPass, SQL: sql}
}

// soleInfoSchemaRelation returns the lower-cased, unqualified table name of
// the single information_schema relation this SELECT targets.
func soleInfoSchemaRelation(sel *sqlparser.Select) (string, bool) {
	if len(sel.From) != 1 {
		return "", false
	}
	ate, ok := sel.From[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return "", false
	}
	tn, ok := ate.Expr.(sqlparser.TableName)
	if !ok || !strings.EqualFold(strings.Trim(tn.Qualifier.String(), "`\""), "information_schema") {
		return "", false
	}
	return strings.ToLower(strings.Trim(tn.Name.String(), "`\"")), true
}

// simpleWherePredicates decomposes a WHERE clause into AND-joined equality
// predicates against the column whitelist. It returns simple=false as soon
// as it encounters anything else: an OR, a non-equality comparison, or a
// left-hand side outside {TABLE_NAME, TABLE_SCHEMA, TABLE_TYPE}. An absent
// WHERE is vacuously simple (zero predicates).
func simpleWherePredicates(sel *sqlparser.Select) (map[string]string, bool) {
	preds := make(map[string]string)
	if sel.Where == nil {
		return preds, true
	}
	if !collectEqualityPredicates(sel.Where.Expr, preds) {
		return nil, false
	}
	return preds, true
}

func collectEqualityPredicates(expr sqlparser.Expr, out map[string]string) bool {
	switch n := expr.(type) {
	case *sqlparser.AndExpr:
		return collectEqualityPredicates(n.Left, out) && collectEqualityPredicates(n.Right, out)
	case *sqlparser.ParenExpr:
		return collectEqualityPredicates(n.Expr, out)
	case *sqlparser.ComparisonExpr:
		if n.Operator != sqlparser.EqualOp {
			return false
		}
		col, ok := n.Left.(*sqlparser.ColName)
		if !ok {
			return false
		}
		name := strings.ToLower(strings.Trim(col.Name.String(), "`\""))
		if !infoSchemaColumnWhitelist[name] {
			return false
		}
		lit, ok := n.Right.(*sqlparser.Literal)
		if !ok {
			return false
		}
		out[name] = lit.Val
		return true
	default:
		return false
	}
}
