// Package classifier implements the statement decision tree (spec
// component 4.2): a pure function from raw text and its (possibly nil)
// parsed AST to a StatementKind. It never mutates the AST and never
// touches a Session or the network — routing a Kind to the component that
// actually acts on it (synthesizer, rewriter, gateway) is the
// orchestrator's job, not the classifier's.
package classifier

import (
	"regexp"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/nethalo/tabproxy/internal/astfacade"
	"github.com/nethalo/tabproxy/internal/statement"
)

// reParenSelect matches a statement whose entire body is a single
// parenthesized SELECT, with an optional trailing LIMIT — step 2 of the
// decision order. Whitespace (including newlines) between tokens is
// permitted; matching is case-insensitive.
var reParenSelect = regexp.MustCompile(`(?is)^\s*\(\s*SELECT\b.*\)\s*(?:LIMIT\s+\d+\s*)?$`)

var metaPrefixes = []string{
	"SHOW", "DESCRIBE", "DESC", "USE", "SET", "KILL", "BEGIN", "COMMIT", "ROLLBACK",
}

var writeVerbs = []string{
	"INSERT", "UPDATE", "DELETE", "REPLACE", "TRUNCATE", "DROP", "CREATE", "ALTER", "GRANT", "REVOKE", "RENAME",
}

var infoSchemaNames = map[string]bool{
	"information_schema": true,
	"performance_schema":  true,
	"mysql":                true,
	"sys":                  true,
}

// Classify runs the six-step decision order from spec §4.2. ast may be nil
// if parsing failed; steps 3, 4, 6 require an AST and are skipped (falling
// through) when it is absent, so only the text-level checks (1, 2, 5) can
// decide the kind of unparsed text. The steps run in their numbered order.
func Classify(text string, ast sqlparser.Statement) statement.Kind {
	trimmed := strings.TrimSpace(text)

	if kind, ok := matchMetaPrefix(trimmed); ok {
		return kind
	}

	if reParenSelect.MatchString(trimmed) {
		return statement.KindParen
	}

	f := astfacade.New(ast)
	if f.IsSelect() {
		if isStaticSelect(f) {
			return statement.KindStatic
		}
		if referencesInfoSchema(f) {
			return statement.KindInfoSchema
		}
	}

	if hasWriteVerb(trimmed) {
		return statement.KindWriteDML
	}

	if f.IsSelect() {
		return statement.KindData
	}

	return statement.KindOther
}

func matchMetaPrefix(trimmed string) (statement.Kind, bool) {
	upper := strings.ToUpper(trimmed)
	for _, kw := range metaPrefixes {
		if upper == kw || strings.HasPrefix(upper, kw+" ") || strings.HasPrefix(upper, kw+"\t") || strings.HasPrefix(upper, kw+"\n") {
			return statement.KindMeta, true
		}
	}
	return "", false
}

// isStaticSelect reports whether a SELECT has no FROM/WHERE/GROUP/HAVING/
// ORDER (LIMIT is permitted) — spec step 3. The parser fills in the table
// `dual` for a SELECT written without FROM, so a lone unqualified `dual`
// counts as no FROM.
func isStaticSelect(f *astfacade.Facade) bool {
	from := f.FromTable()
	if len(from) == 1 {
		if ate, ok := from[0].(*sqlparser.AliasedTableExpr); ok {
			if tn, ok := ate.Expr.(sqlparser.TableName); ok && tn.Qualifier.IsEmpty() && strings.EqualFold(tn.Name.String(), "dual") {
				from = nil
			}
		}
	}
	return len(from) == 0 &&
		!f.HasWhere() &&
		!f.HasGroupBy() &&
		!f.HasHaving() &&
		!f.HasOrderBy()
}

// referencesInfoSchema reports whether any table reference is qualified by
// one of the restricted system schemas — spec step 4.
func referencesInfoSchema(f *astfacade.Facade) bool {
	for _, ref := range f.TablesReferenced() {
		schema := strings.ToLower(strings.Trim(ref.Schema, "`\""))
		if schema != "" && infoSchemaNames[schema] {
			return true
		}
	}
	return false
}

// hasWriteVerb reports whether the statement's leading keyword is a write
// verb — spec step 5. Word-boundary matched against the first token only;
// this is deliberately conservative (a safety net, not a parser) per the
// policy gate's own word-boundary keyword scan in §4.6, which this
// function mirrors for the classifier's coarser purpose.
func hasWriteVerb(trimmed string) bool {
	upper := strings.ToUpper(trimmed)
	for _, verb := range writeVerbs {
		if upper == verb || strings.HasPrefix(upper, verb+" ") || strings.HasPrefix(upper, verb+"\t") || strings.HasPrefix(upper, verb+"\n") {
			return true
		}
	}
	return false
}
