// Package diag implements the `tabproxy diag` operator command (SPEC_FULL
// §12): a read-only view of a running proxy's pool and session state. It
// reads, it never computes — the spec's planning/caching Non-goal stays
// intact.
package diag

import (
	"sync"

	"github.com/nethalo/tabproxy/internal/statement"
)

// PoolStats mirrors backend.Pool.InFlight's three numbers, decoupled from
// the backend package so diag can be built and tested without a live
// *sql.DB behind it.
type PoolStats struct {
	InUse    int
	Capacity int
	Waiting  int
}

// Snapshot is everything one `tabproxy diag` invocation renders.
type Snapshot struct {
	Pool          PoolStats
	SessionCount  int
	RecentRewrites []RewriteEntry
}

// RewriteEntry is one ring-buffer entry: the statement id it came from and
// its rewrite trail, the audit record spec §3 requires a Statement to
// carry.
type RewriteEntry struct {
	StatementID int64
	Rewrites    []statement.Rewrite
	Success     bool
}

// Provider is satisfied by whatever owns the live Pool/connection-count
// state — in production, the serve command's top-level wiring; in tests,
// a fake.
type Provider interface {
	PoolStats() PoolStats
	SessionCount() int
	RecentRewrites() []RewriteEntry
}

// Ring is a fixed-capacity ring buffer of RewriteEntry, the concrete
// structure behind RecentRewrites: the orchestrator's serve-command
// wrapper appends one entry per completed statement, oldest entries fall
// off once Capacity is reached. Default capacity 200 (SPEC_FULL §12).
type Ring struct {
	mu       sync.Mutex
	entries  []RewriteEntry
	capacity int
	next     int
	full     bool
}

// NewRing builds a Ring holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 200
	}
	return &Ring{entries: make([]RewriteEntry, capacity), capacity: capacity}
}

// Add records one completed statement's rewrite trail.
func (r *Ring) Add(entry RewriteEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = entry
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot returns the ring's current contents, oldest first.
func (r *Ring) Snapshot() []RewriteEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]RewriteEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]RewriteEntry, r.capacity)
	copy(out, r.entries[r.next:])
	copy(out[r.capacity-r.next:], r.entries[:r.next])
	return out
}
