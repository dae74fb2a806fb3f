package obkv

import (
	"context"
	"net"
	"time"

	"github.com/dust1/obkv-table-client-go/pkg/obrpc"
)

// Conn is one authenticated session to a backend. Framing and encoding
// a request onto conn's underlying transport is the wire codec's
// concern (out of scope, spec.md §1); Conn is the seam between this
// client's routing/retry logic and that codec.
type Conn interface {
	// ExecutePayload sends req and decodes the reply into resp.
	ExecutePayload(ctx context.Context, req obrpc.Request, resp obrpc.Response) error
	Close() error
}

// DialFunc opens a raw network connection to addr. Tests substitute a
// fake DialFunc to avoid a real backend (mirrors the teacher's
// cfg.dialFn seam in broker.go).
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func defaultDialFunc(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{}
	return d.DialContext(ctx, network, addr)
}

// LoginFunc authenticates a freshly dialed net.Conn and returns a ready
// Conn, or an error if the login handshake failed. Supplied by the
// (out-of-scope) wire codec; this client only needs the seam.
type LoginFunc func(ctx context.Context, raw net.Conn, session authSession, timeout time.Duration) (Conn, error)
