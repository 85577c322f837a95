package diag

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"
)

// ListenAndServe runs the diagnostic socket accept loop: on each connection,
// it writes one JSON-encoded Snapshot and closes. There is no request body —
// connecting is the request, matching the teacher's `connect` command's
// "one round trip, then render" shape, here turned inside-out (the proxy is
// the always-on side, `tabproxy diag` the transient caller).
//
// Unix-domain, not TCP: this is an operator-local surface, never exposed to
// Tableau clients or the network. ListenAndServe removes any stale socket
// file left by a previous unclean shutdown before binding.
func ListenAndServe(ctx context.Context, socketPath string, provider Provider, logger *slog.Logger) error {
	_ = os.Remove(socketPath)

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	defer os.Remove(socketPath)

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) {
				logger.Warn("diag socket accept failed", "err", err)
				continue
			}
			return err
		}
		go serveOne(conn, provider, logger)
	}
}

func serveOne(conn net.Conn, provider Provider, logger *slog.Logger) {
	defer conn.Close()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	snapshot := Snapshot{
		Pool:           provider.PoolStats(),
		SessionCount:   provider.SessionCount(),
		RecentRewrites: provider.RecentRewrites(),
	}
	if err := json.NewEncoder(conn).Encode(snapshot); err != nil {
		logger.Warn("diag socket write failed", "err", err)
	}
}

// Fetch dials a running proxy's diagnostic socket and decodes the Snapshot
// it writes on connect. Used by the `tabproxy diag` command.
func Fetch(ctx context.Context, socketPath string) (Snapshot, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return Snapshot{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	var snapshot Snapshot
	if err := json.NewDecoder(conn).Decode(&snapshot); err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}
