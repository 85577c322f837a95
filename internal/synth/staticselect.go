package synth

import (
	"strconv"
	"strings"

	"vitess.io/vitess/go/sqltypes"
	"vitess.io/vitess/go/vt/sqlparser"
	"vitess.io/vitess/go/vt/vtenv"
	"vitess.io/vitess/go/vt/vtgate/evalengine"

	"github.com/nethalo/tabproxy/internal/astfacade"
	"github.com/nethalo/tabproxy/internal/session"
	"github.com/nethalo/tabproxy/internal/statement"
)

// ServerInfo is the small set of connection-level facts the evaluator
// needs that don't live on the Session (spec §4.7: "system-variable reads
// resolved against the session's shadow map" plus the handful of
// connection-identity builtins Tableau's metadata probing relies on).
type ServerInfo struct {
	ConnectionID  int64
	ServerVersion string
}

// evalEnv and evalCollation back the evalengine.Config every Translate call
// uses. There is no vtgate VSchema in this proxy to source these from, so a
// standalone test-style environment (the standard way to get an Environment
// outside of vtgate's own planbuilder) stands in for it.
var (
	evalEnv       = vtenv.NewTestEnv()
	evalCollation = evalEnv.CollationEnv().DefaultConnectionCharset()
)

func evalConfig() *evalengine.Config {
	return &evalengine.Config{
		Collation:   evalCollation,
		Environment: evalEnv,
	}
}

// EvaluateStaticSelect implements the StaticSelect branch of spec §4.7:
// evaluate each projection expression against literals, a small set of
// builtin functions, and the session's shadow system-variable map. An
// expression this evaluator cannot resolve contributes a NULL value rather
// than failing the whole statement — the arity invariant (one value per
// column) always holds even when a column's content is unknown.
func EvaluateStaticSelect(sel *sqlparser.Select, sess *session.Session, info ServerInfo) *statement.SynthesizedResult {
	columns := make([]string, 0, len(sel.SelectExprs))
	row := make([]any, 0, len(sel.SelectExprs))

	for i, e := range sel.SelectExprs {
		aliased, ok := e.(*sqlparser.AliasedExpr)
		if !ok {
			columns = append(columns, columnFallbackName(i))
			row = append(row, nil)
			continue
		}
		name := aliased.As.String()
		if name == "" {
			name = astfacade.String(aliased.Expr)
		}
		columns = append(columns, name)
		row = append(row, evalExpr(aliased.Expr, sess, info))
	}

	return &statement.SynthesizedResult{Columns: columns, Rows: [][]any{row}}
}

func columnFallbackName(i int) string {
	return "expr_" + strconv.Itoa(i+1)
}

// evalExpr resolves one projection expression. System-variable reads spelled
// as bare identifiers and the connection-identity builtins (CONNECTION_ID(),
// DATABASE(), VERSION(), USER() and its aliases) have no general SQL
// semantics — they read this proxy's own Session/ServerInfo state, not
// anything the parser's expression evaluator could know about — so those
// are resolved directly. `@@name` and `@name` references are not resolved
// here; they go to evalengine, which does not see this Session's variables.
// Everything else (literals, arithmetic, string and date/time functions) is
// handed to vitess's own expression evaluator (go/vt/vtgate/evalengine),
// the same one vtgate's planbuilder uses to fold constant expressions.
func evalExpr(expr sqlparser.Expr, sess *session.Session, info ServerInfo) any {
	if v, handled := evalSessionBuiltin(expr, sess, info); handled {
		return v
	}

	translated, err := evalengine.Translate(expr, evalConfig())
	if err != nil {
		return nil
	}
	env := evalengine.EmptyExpressionEnv(evalEnv)
	result, err := env.Evaluate(translated)
	if err != nil {
		return nil
	}
	return toNative(result.Value(evalCollation))
}

// evalSessionBuiltin resolves the handful of expressions that depend on
// this connection's own state rather than general SQL semantics. The bool
// return reports whether expr was one of these — false means the caller
// should fall through to evalengine.
func evalSessionBuiltin(expr sqlparser.Expr, sess *session.Session, info ServerInfo) (any, bool) {
	switch n := expr.(type) {
	case *sqlparser.ColName:
		// A bare identifier in a StaticSelect's projection can only be a
		// system-variable read spelled without the @@ prefix in some
		// client dialects; resolve it against the session's shadow map.
		if v, ok := sess.SystemVar(strings.ToLower(n.Name.String())); ok {
			return v, true
		}
		return nil, false
	case *sqlparser.FuncExpr:
		switch strings.ToLower(n.Name.String()) {
		case "connection_id":
			return info.ConnectionID, true
		case "database", "schema":
			if db, ok := sess.CurrentDatabase(); ok {
				return db, true
			}
			return nil, true
		case "version":
			return info.ServerVersion, true
		case "user", "current_user", "session_user", "system_user":
			return sess.Username, true
		}
	}
	return nil, false
}

// toNative converts an evalengine result into the plain Go value the
// adapter and wire layers traffic in.
func toNative(v sqltypes.Value) any {
	if v.IsNull() {
		return nil
	}
	switch {
	case v.IsSigned() || v.IsUnsigned():
		if n, err := v.ToInt64(); err == nil {
			return n
		}
	case v.IsFloat() || v.IsDecimal():
		if f, err := v.ToFloat64(); err == nil {
			return f
		}
	}
	return v.ToString()
}
