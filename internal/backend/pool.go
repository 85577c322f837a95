// Package backend implements the backend gateway (spec §4.9): a bounded
// pool of BackendSlots fronting the restricted-dialect MySQL backend, plus
// the connect/execute/close contract the orchestrator dispatches through.
package backend

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// ConnectionConfig mirrors spec §6's backend.* options and the teacher's
// own ConnectionConfig (internal/mysql/connection.go), generalized from a
// one-shot CLI connection to a pooled long-lived one.
type ConnectionConfig struct {
	DSN            string // backend.connection_string, after ${...} expansion
	TLSMode        string // "", "disabled", "preferred", "required", "skip-verify", "custom"
	TLSCA          string
	PoolSize       int           // backend.pool_size (P)
	Timeout        time.Duration // backend.timeout, per-statement deadline
	PrePing        bool          // backend.pool_pre_ping
	RecycleAfter   time.Duration // backend.pool_recycle
}

// BackendSlot is a handle on one open backend connection (spec §3): creation
// time, last-used time, in-use flag, liveness bit. Lent by the Pool to the
// orchestrator for the duration of one backend round-trip, never shared.
type BackendSlot struct {
	conn       *sql.Conn
	createdAt  time.Time
	lastUsedAt time.Time
	live       bool
}

// Pool is a bounded set of BackendSlots (spec §3/§4.9). Capacity P is
// typically 1 — the crucial special case the FIFO acquire loop must still
// serve correctly. Protected by a mutex on bookkeeping state and a
// sync.Cond signalling releases, the same shape as db-bouncer's
// TenantPool.Acquire/Return.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	db       *sql.DB
	capacity int
	inUse    int
	waiting  int
	closed   bool

	prePing      bool
	recycleAfter time.Duration

	logger *slog.Logger
}

// NewPool opens the underlying *sql.DB (one per process; individual slots
// are *sql.Conn checkouts from it) and configures it conservatively —
// MaxOpenConns pinned to the pool capacity so database/sql's own pool
// never hands out more connections than our semaphore permits.
func NewPool(cfg ConnectionConfig, logger *slog.Logger) (*Pool, error) {
	if cfg.TLSMode == "custom" {
		if cfg.TLSCA == "" {
			return nil, fmt.Errorf("backend.tls_ca is required when backend TLS mode is custom")
		}
		if err := registerCustomTLS(cfg.TLSCA); err != nil {
			return nil, fmt.Errorf("backend TLS setup failed: %w", err)
		}
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening backend connection: %w", err)
	}

	capacity := cfg.PoolSize
	if capacity <= 0 {
		capacity = 1
	}
	db.SetMaxOpenConns(capacity)
	db.SetMaxIdleConns(capacity)
	if cfg.RecycleAfter > 0 {
		// database/sql closes and replaces connections older than this.
		db.SetConnMaxLifetime(cfg.RecycleAfter)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initial backend probe failed: %w", err)
	}

	p := &Pool{
		db:           db,
		capacity:     capacity,
		prePing:      cfg.PrePing,
		recycleAfter: cfg.RecycleAfter,
		logger:       logger,
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

func registerCustomTLS(caPath string) error {
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return fmt.Errorf("reading CA certificate %q: %w", caPath, err)
	}
	rootCAs := x509.NewCertPool()
	if !rootCAs.AppendCertsFromPEM(pem) {
		return fmt.Errorf("no valid certificates found in %q", caPath)
	}
	return mysqldriver.RegisterTLSConfig("tabproxy-custom", &tls.Config{RootCAs: rootCAs})
}

// Acquire implements spec §4.9's FIFO acquire policy: blocks until a slot
// is free or the per-statement timeout elapses. On loan, it runs the
// configured health probe (SHOW STATUS LIKE 'Threads_connected') before
// handing the slot back — chosen per spec because it bypasses downstream
// policy gates on systems that layer a proxy on top of this one.
func (p *Pool) Acquire(ctx context.Context) (*BackendSlot, error) {
	deadline, hasDeadline := ctx.Deadline()

	p.mu.Lock()
	for {
		select {
		case <-ctx.Done():
			p.mu.Unlock()
			return nil, ctx.Err()
		default:
		}

		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("backend pool is closed")
		}

		if p.inUse < p.capacity {
			p.inUse++
			p.mu.Unlock()

			slot, err := p.dial(ctx)
			if err != nil {
				p.mu.Lock()
				p.inUse--
				p.mu.Unlock()
				p.cond.Signal()
				return nil, err
			}
			return slot, nil
		}

		p.waiting++
		p.logger.Warn("backend pool exhausted, waiting for a slot", "in_use", p.inUse, "capacity", p.capacity)

		if !hasDeadline {
			p.cond.Wait()
		} else {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				p.waiting--
				p.mu.Unlock()
				return nil, fmt.Errorf("acquire timeout: backend pool exhausted")
			}
			timer := time.AfterFunc(remaining, func() { p.cond.Broadcast() })
			p.cond.Wait()
			timer.Stop()
		}
		p.waiting--

		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("backend pool closing")
		}
		if hasDeadline && time.Now().After(deadline) {
			p.mu.Unlock()
			return nil, fmt.Errorf("acquire timeout: backend pool exhausted")
		}
		// loop back to the top of the for with p.mu held
	}
}

func (p *Pool) dial(ctx context.Context) (*BackendSlot, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialing backend: %w", err)
	}
	slot := &BackendSlot{conn: conn, createdAt: time.Now(), lastUsedAt: time.Now(), live: true}

	if p.recycleAfter > 0 && time.Since(slot.createdAt) > p.recycleAfter {
		slot.live = false
	}
	if p.prePing && slot.live {
		if err := probe(ctx, conn); err != nil {
			invalidate(conn)
			conn.Close()
			return nil, fmt.Errorf("backend health probe failed: %w", err)
		}
	}
	return slot, nil
}

// probe runs the health check spec §4.9 specifies.
func probe(ctx context.Context, conn *sql.Conn) error {
	row := conn.QueryRowContext(ctx, "SHOW STATUS LIKE 'Threads_connected'")
	var name, value string
	return row.Scan(&name, &value)
}

// Release returns slot to the pool (spec §4.9's Dispatch/error-class
// contract): a Fatal or Transient classification destroys the slot before
// the next loan; QueryError keeps the underlying connection.
func (p *Pool) Release(slot *BackendSlot, class ErrorClass) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inUse--
	destroy := !slot.live || class == ErrTransient || class == ErrFatal
	if class == ErrFatal {
		p.closed = true
	}
	if destroy {
		invalidate(slot.conn)
	}
	slot.conn.Close()
	p.cond.Signal()
}

// invalidate forces database/sql to discard the underlying driver
// connection on Close rather than returning it to its own internal idle
// pool — the standard trick for telling database/sql a *sql.Conn is bad
// (see database/sql's own documentation for Conn.Raw).
func invalidate(conn *sql.Conn) {
	_ = conn.Raw(func(driverConn any) error {
		return driver.ErrBadConn
	})
}

// Close shuts the pool down; any Acquire callers blocked in cond.Wait are
// woken and see p.closed.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	return p.db.Close()
}

// InFlight reports the current number of on-loan slots, for the pool-bound
// testable property (spec §8.8: "in-flight backend calls <= P") and for
// the diagnostics command.
func (p *Pool) InFlight() (inUse, capacity, waiting int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse, p.capacity, p.waiting
}
