package classifier

import (
	"testing"

	"github.com/nethalo/tabproxy/internal/astfacade"
	"github.com/nethalo/tabproxy/internal/statement"
)

func classify(t *testing.T, sql string) statement.Kind {
	t.Helper()
	ast, _ := astfacade.Parse(sql) // ast may legitimately be nil
	return Classify(sql, ast)
}

func TestClassifyDecisionOrder(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want statement.Kind
	}{
		{"show", "SHOW TABLES", statement.KindMeta},
		{"describe", "DESCRIBE sales", statement.KindMeta},
		{"desc", "DESC sales", statement.KindMeta},
		{"use", "USE reporting", statement.KindMeta},
		{"set", "SET NAMES utf8mb4", statement.KindMeta},
		{"kill", "KILL 42", statement.KindMeta},
		{"begin", "BEGIN", statement.KindMeta},
		{"commit", "COMMIT", statement.KindMeta},
		{"rollback", "ROLLBACK", statement.KindMeta},
		{"paren select", "(SELECT a FROM t) LIMIT 5", statement.KindParen},
		{"paren select no limit", "(SELECT a FROM t)", statement.KindParen},
		{"static select", "SELECT CONNECTION_ID()", statement.KindStatic},
		{"static select with limit", "SELECT 1 LIMIT 1", statement.KindStatic},
		{"info schema", "SELECT table_name FROM information_schema.tables", statement.KindInfoSchema},
		{"info schema quoted", "SELECT * FROM `information_schema`.`columns`", statement.KindInfoSchema},
		{"insert", "INSERT INTO t VALUES (1)", statement.KindWriteDML},
		{"update", "UPDATE t SET a = 1", statement.KindWriteDML},
		{"delete", "DELETE FROM t", statement.KindWriteDML},
		{"create", "CREATE TABLE t (a INT)", statement.KindWriteDML},
		{"data select", "SELECT a FROM sales WHERE cob_date = '2024-01-01'", statement.KindData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(t, tt.sql); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.sql, got, tt.want)
			}
		})
	}
}

func TestClassifyInfoSchemaBeatsDataSelect(t *testing.T) {
	// A SELECT against information_schema has a WHERE clause, so it would
	// otherwise fall through to DataSelect; step 4 must fire first.
	got := classify(t, "SELECT * FROM information_schema.columns WHERE table_name = 'x'")
	if got != statement.KindInfoSchema {
		t.Errorf("got %s, want %s", got, statement.KindInfoSchema)
	}
}

func TestClassifyParseFailureFallsThrough(t *testing.T) {
	// Unparseable text with no recognizable prefix and no write verb lands
	// on Other rather than panicking on a nil AST.
	got := Classify("??? nonsense ???", nil)
	if got != statement.KindOther {
		t.Errorf("got %s, want %s", got, statement.KindOther)
	}
}
