// Package wire adapts the orchestrator to vitess's client-facing MySQL
// server protocol (vitess.io/vitess/go/mysql). It is deliberately thin:
// accept loop, packet framing, authentication, and handshake are all
// vitess's own "wire codec" (spec §1/§6 explicitly puts that out of
// scope) — this package only implements the mysql.Handler callback
// contract vitess's listener drives, translating each callback into an
// orchestrator.Process call and the reply back into vitess's own result
// types.
package wire

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vitess.io/vitess/go/mysql"
	"vitess.io/vitess/go/sqltypes"
	querypb "vitess.io/vitess/go/vt/proto/query"

	"github.com/nethalo/tabproxy/internal/orchestrator"
	"github.com/nethalo/tabproxy/internal/session"
	"github.com/nethalo/tabproxy/internal/statement"
)

// Handler implements vitess's mysql.Handler interface. One Handler serves
// every connection the listener accepts; per-connection state (the
// Session and a dedicated Orchestrator, spec §5: "owned exclusively by
// one orchestrator instance") lives in the sessions map, keyed by
// mysql.Conn.ConnectionID.
type Handler struct {
	mu       sync.Mutex
	sessions map[uint32]*connState

	newOrchestrator func() *orchestrator.Orchestrator
	statementTO     time.Duration
	logger          *slog.Logger
	onResult        func(statement.PipelineResult)
}

type connState struct {
	sess *session.Session
	orch *orchestrator.Orchestrator
}

// NewHandler builds a Handler. newOrchestrator is called once per accepted
// connection — callers typically close over a shared *backend.Gateway and
// Config and return a fresh *orchestrator.Orchestrator each time, since an
// Orchestrator is single-connection state (spec §5).
func NewHandler(newOrchestrator func() *orchestrator.Orchestrator, statementTimeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		sessions:        make(map[uint32]*connState),
		newOrchestrator: newOrchestrator,
		statementTO:     statementTimeout,
		logger:          logger,
	}
}

// NewConnection is called by vitess once the handshake completes.
func (h *Handler) NewConnection(c *mysql.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[c.ConnectionID] = &connState{
		sess: session.New(int64(c.ConnectionID), c.User),
		orch: h.newOrchestrator(),
	}
	h.logger.Info("connection opened", "connection_id", c.ConnectionID, "user", c.User)
}

// OnResult registers a callback invoked after every completed ComQuery
// statement, used by cmd/serve.go to feed the diagnostic ring buffer
// without internal/wire importing internal/diag directly.
func (h *Handler) OnResult(fn func(statement.PipelineResult)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onResult = fn
}

// SessionCount reports the number of currently open connections, the
// number internal/diag's Provider surfaces as "active sessions".
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// ConnectionClosed releases the per-connection state.
func (h *Handler) ConnectionClosed(c *mysql.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, c.ConnectionID)
	h.logger.Info("connection closed", "connection_id", c.ConnectionID)
}

func (h *Handler) state(c *mysql.Conn) *connState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[c.ConnectionID]
}

// ComInitDB implements `USE <db>` sent as its own wire command rather than
// a SQL statement — vitess dispatches it separately from ComQuery. It is
// routed through the same synth-backed USE handling as a SET/USE SQL
// statement would be, by replaying it as one.
func (h *Handler) ComInitDB(c *mysql.Conn, schemaName string) error {
	st := h.state(c)
	if st == nil {
		return fmt.Errorf("no session for connection %d", c.ConnectionID)
	}
	result := st.orch.Process(context.Background(), st.sess, "USE "+schemaName)
	if !result.Success {
		return result.Error
	}
	return nil
}

// ComQuery implements the one data-carrying callback this proxy actually
// serves: every SELECT/SHOW/SET/etc. the client sends. The per-statement
// deadline (spec §5's cancellation point) is applied here, at the
// boundary the codec controls.
func (h *Handler) ComQuery(c *mysql.Conn, query string, callback mysql.ResultSpoolFn) error {
	st := h.state(c)
	if st == nil {
		return fmt.Errorf("no session for connection %d", c.ConnectionID)
	}

	ctx := context.Background()
	if h.statementTO > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.statementTO)
		defer cancel()
	}

	result := st.orch.Process(ctx, st.sess, query)

	h.mu.Lock()
	onResult := h.onResult
	h.mu.Unlock()
	if onResult != nil {
		onResult(result)
	}

	if !result.Success {
		return result.Error
	}
	return callback(toSQLResult(result))
}

// WarningCount is called after each query completes; this proxy never
// synthesizes MySQL warnings of its own (adapter adjustments are logged,
// not surfaced to the client per spec §4.8/§7).
func (h *Handler) WarningCount(c *mysql.Conn) uint16 { return 0 }

// ComPrepare/ComStmtExecute: prepared statements are out of this proxy's
// scope (Tableau drives everything through ComQuery); declining here is
// correct, not a missing feature.
func (h *Handler) ComPrepare(c *mysql.Conn, query string, prepare *mysql.PrepareData) ([]*querypb.Field, error) {
	return nil, fmt.Errorf("prepared statements are not supported")
}

func (h *Handler) ComStmtExecute(c *mysql.Conn, prepare *mysql.PrepareData, callback func(*sqltypes.Result) error) error {
	return fmt.Errorf("prepared statements are not supported")
}

// ComResetConnection clears session-local state the way a fresh connection
// would start — it does not get a new ConnectionID, so the Session is
// rebuilt in place rather than re-keyed.
func (h *Handler) ComResetConnection(c *mysql.Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.sessions[c.ConnectionID]; ok {
		st.sess = session.New(int64(c.ConnectionID), c.User)
	}
	return nil
}

// toSQLResult converts a PipelineResult into vitess's wire result shape.
// Every column's field type is reported as VARCHAR, including columns whose
// cells are int64/float64; only the cell values (toSQLValue) keep those
// numeric types — spec's Non-goals exclude
// byte-for-byte metadata-table emulation, so this intentionally does not
// attempt full MySQL type-system fidelity.
func toSQLResult(result statement.PipelineResult) *sqltypes.Result {
	fields := make([]*querypb.Field, len(result.Columns))
	for i, name := range result.Columns {
		fields[i] = &querypb.Field{Name: name, Type: querypb.Type_VARCHAR}
	}

	rows := make([][]sqltypes.Value, len(result.Rows))
	for r, row := range result.Rows {
		values := make([]sqltypes.Value, len(row))
		for c, cell := range row {
			values[c] = toSQLValue(cell)
		}
		rows[r] = values
	}

	return &sqltypes.Result{
		Fields: fields,
		Rows:   rows,
	}
}

func toSQLValue(v any) sqltypes.Value {
	switch n := v.(type) {
	case nil:
		return sqltypes.NULL
	case int64:
		return sqltypes.NewInt64(n)
	case int:
		return sqltypes.NewInt64(int64(n))
	case float64:
		return sqltypes.NewFloat64(n)
	case string:
		return sqltypes.NewVarChar(n)
	case []byte:
		return sqltypes.NewVarBinary(string(n))
	default:
		return sqltypes.NewVarChar(fmt.Sprintf("%v", n))
	}
}
