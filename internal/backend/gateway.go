package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/nethalo/tabproxy/internal/statement"
)

// ErrorClass is spec §4.9's three-way classification of a backend error,
// driving both Pool.Release's destroy-vs-keep decision and the
// orchestrator's reject-reason mapping.
type ErrorClass string

const (
	// ErrTransient: connection-level failure, safe to retry on a fresh slot
	// (broken pipe, connection reset, i/o timeout, driver.ErrBadConn).
	ErrTransient ErrorClass = "TRANSIENT"
	// ErrQuery: the backend understood and rejected the statement itself
	// (syntax error, unknown column, permission denied). The slot is fine.
	ErrQuery ErrorClass = "QUERY_ERROR"
	// ErrFatal: the backend connection (or the backend itself) is unusable
	// going forward; the slot and, per Release, the whole pool is torn down.
	ErrFatal ErrorClass = "FATAL"
)

// Classify inspects a driver-level error and assigns it one of the three
// classes spec §4.9 names. go-sql-driver/mysql surfaces backend errors as
// *mysql.MySQLError with a numeric Number; everything else (net errors,
// context deadline, driver.ErrBadConn) is judged by type.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrTransient
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch {
		case myErr.Number == 1040: // ER_CON_COUNT_ERROR
			return ErrTransient
		case myErr.Number == 2006 || myErr.Number == 2013: // server gone away / lost connection
			return ErrFatal
		default:
			return ErrQuery
		}
	}
	if strings.Contains(err.Error(), "bad connection") {
		return ErrTransient
	}
	return ErrFatal
}

// Gateway implements the connect/execute/close contract spec §6 describes
// as the interface between the orchestrator and the restricted-dialect
// backend: a thin wrapper over Pool that turns a SQL string into
// (columns, rows) or a classified error.
type Gateway struct {
	pool   *Pool
	logger *slog.Logger
}

// NewGateway wraps an already-dialed Pool.
func NewGateway(pool *Pool, logger *slog.Logger) *Gateway {
	return &Gateway{pool: pool, logger: logger}
}

// Execute acquires a slot, runs sql against it, and normalizes the raw
// *sql.Rows into the (columns, rows) shape the rest of the pipeline deals
// in. The slot is always released exactly once, classified by the error
// (if any) Execute itself observed.
func (g *Gateway) Execute(ctx context.Context, stmt statement.Statement, sql string) (columns []string, rows [][]any, err error) {
	slot, acquireErr := g.pool.Acquire(ctx)
	if acquireErr != nil {
		g.logger.Error("backend slot acquire failed", "statement_id", stmt.ID, "error", acquireErr)
		return nil, nil, fmt.Errorf("backend unavailable: %w", acquireErr)
	}

	start := time.Now()
	var class ErrorClass
	defer func() {
		g.pool.Release(slot, class)
		g.logger.Debug("backend round-trip complete",
			"statement_id", stmt.ID, "elapsed", time.Since(start), "error_class", class)
	}()

	rset, queryErr := slot.conn.QueryContext(ctx, sql)
	if queryErr != nil {
		class = Classify(queryErr)
		return nil, nil, g.wrapError(stmt.ID, sql, queryErr, class)
	}
	defer rset.Close()

	columns, colErr := rset.Columns()
	if colErr != nil {
		class = Classify(colErr)
		return nil, nil, g.wrapError(stmt.ID, sql, colErr, class)
	}

	rows, scanErr := scanAll(rset, len(columns))
	if scanErr != nil {
		class = Classify(scanErr)
		return nil, nil, g.wrapError(stmt.ID, sql, scanErr, class)
	}
	if err := rset.Err(); err != nil {
		class = Classify(err)
		return nil, nil, g.wrapError(stmt.ID, sql, err, class)
	}

	return columns, rows, nil
}

func (g *Gateway) wrapError(statementID int64, sql string, err error, class ErrorClass) error {
	g.logger.Warn("backend returned an error",
		"statement_id", statementID, "error_class", class, "error", err)
	return fmt.Errorf("backend error (%s): %w", class, err)
}

// scanAll drains rset into [][]any using sql.RawBytes-free generic
// scanning (each cell boxed as any via sql.Rows.Scan into *any), the same
// approach the teacher's internal/output formatting layer expects to
// consume — one []any per row, independent of the backend's declared
// column types.
func scanAll(rset interface {
	Next() bool
	Scan(dest ...any) error
}, width int) ([][]any, error) {
	var out [][]any
	for rset.Next() {
		row := make([]any, width)
		scanDest := make([]any, width)
		for i := range row {
			scanDest[i] = &row[i]
		}
		if err := rset.Scan(scanDest...); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Close releases the pool's resources. Safe to call once at shutdown.
func (g *Gateway) Close() error {
	return g.pool.Close()
}
