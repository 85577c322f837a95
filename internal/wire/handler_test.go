package wire

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"vitess.io/vitess/go/mysql"
	"vitess.io/vitess/go/sqltypes"

	"github.com/nethalo/tabproxy/internal/orchestrator"
	"github.com/nethalo/tabproxy/internal/policy"
	"github.com/nethalo/tabproxy/internal/statement"
	"github.com/nethalo/tabproxy/internal/synth"
)

type fakeDispatcher struct {
	columns []string
	rows    [][]any
}

func (f *fakeDispatcher) Execute(ctx context.Context, stmt statement.Statement, sql string) ([]string, [][]any, error) {
	return f.columns, f.rows, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(be orchestrator.Dispatcher) *Handler {
	return NewHandler(func() *orchestrator.Orchestrator {
		return orchestrator.New(orchestrator.Config{Policy: policy.DefaultConfig(), UnwrapSubqueries: true, AutoFixGroupBy: true, MaxSubqueryDepth: 2},
			be, discardLogger(), synth.ServerInfo{ConnectionID: 1, ServerVersion: "8.0.0"})
	}, 0, discardLogger())
}

func TestHandlerLifecycle(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{columns: []string{"amount"}, rows: [][]any{{int64(1)}}})
	conn := &mysql.Conn{ConnectionID: 42, User: "tableau"}

	h.NewConnection(conn)
	if h.state(conn) == nil {
		t.Fatal("expected connection state after NewConnection")
	}

	h.ConnectionClosed(conn)
	if h.state(conn) != nil {
		t.Fatal("expected connection state removed after ConnectionClosed")
	}
}

func TestHandlerComQueryDispatchesAndSpools(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{columns: []string{"amount"}, rows: [][]any{{int64(7)}}})
	conn := &mysql.Conn{ConnectionID: 1, User: "tableau"}
	h.NewConnection(conn)

	var spooled *sqltypes.Result
	err := h.ComQuery(conn, "SELECT amount FROM sales WHERE cob_date = '2024-01-01'", func(r *sqltypes.Result) error {
		spooled = r
		return nil
	})
	if err != nil {
		t.Fatalf("ComQuery: %v", err)
	}
	if spooled == nil || len(spooled.Fields) != 1 || spooled.Fields[0].Name != "amount" {
		t.Fatalf("unexpected spooled result: %+v", spooled)
	}
	if len(spooled.Rows) != 1 || spooled.Rows[0][0].ToString() != "7" {
		t.Errorf("unexpected row values: %+v", spooled.Rows)
	}
}

func TestHandlerComQueryRejectsWrite(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{})
	conn := &mysql.Conn{ConnectionID: 2, User: "tableau"}
	h.NewConnection(conn)

	err := h.ComQuery(conn, "DELETE FROM sales", func(r *sqltypes.Result) error { return nil })
	if err == nil {
		t.Fatal("expected write-blocked error")
	}
}

func TestToSQLValue(t *testing.T) {
	if v := toSQLValue(nil); !v.IsNull() {
		t.Errorf("expected NULL value")
	}
	if v := toSQLValue(int64(5)); v.ToString() != "5" {
		t.Errorf("expected int64 round-trip, got %v", v.ToString())
	}
	if v := toSQLValue("hi"); v.ToString() != "hi" {
		t.Errorf("expected string round-trip, got %v", v.ToString())
	}
}
