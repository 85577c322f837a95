package diag

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

type fakeProvider struct {
	pool     PoolStats
	sessions int
	rewrites []RewriteEntry
}

func (f fakeProvider) PoolStats() PoolStats            { return f.pool }
func (f fakeProvider) SessionCount() int                { return f.sessions }
func (f fakeProvider) RecentRewrites() []RewriteEntry   { return f.rewrites }

func TestListenAndServeFetchRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "tabproxy.sock")
	provider := fakeProvider{
		pool:     PoolStats{InUse: 2, Capacity: 4, Waiting: 1},
		sessions: 5,
		rewrites: []RewriteEntry{{StatementID: 1, Success: true}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- ListenAndServe(ctx, socketPath, provider, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	var snapshot Snapshot
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fetchCtx, fetchCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		snapshot, err = Fetch(fetchCtx, socketPath)
		fetchCancel()
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Fetch never succeeded: %v", err)
	}

	if snapshot.Pool != provider.pool {
		t.Errorf("pool stats = %+v, want %+v", snapshot.Pool, provider.pool)
	}
	if snapshot.SessionCount != 5 {
		t.Errorf("session count = %d, want 5", snapshot.SessionCount)
	}
	if len(snapshot.RecentRewrites) != 1 || snapshot.RecentRewrites[0].StatementID != 1 {
		t.Errorf("unexpected recent rewrites: %+v", snapshot.RecentRewrites)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe returned error after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("ListenAndServe did not shut down after context cancel")
	}
}
