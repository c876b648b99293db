// Package listener implements the A component (spec §4.A): a socket
// bound to a single address that yields Connections carrying whatever
// original-destination metadata the platform can recover, plus
// external-cancellation support for drain.
package listener

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/thushan/olla-sidecard/internal/core/domain"
	"github.com/thushan/olla-sidecard/internal/core/ports"
)

// TCPListener wraps a net.Listener, tagging every accepted connection
// with a Direction and resolving its original destination through an
// OriginalDestResolver before handing it back to the caller.
type TCPListener struct {
	ln        net.Listener
	direction domain.Direction
	resolver  ports.OriginalDestResolver

	mu     sync.Mutex
	closed bool
}

// Bind opens a TCP listener on addr for the given direction. resolver
// may be nil, in which case original-destination recovery is skipped
// and every accepted Connection falls back to authority-based routing
// (spec §4.A "None is treated as no redirection info").
func Bind(addr string, direction domain.Direction, resolver ports.OriginalDestResolver) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listener: bind %s: %w", addr, err)
	}
	return &TCPListener{ln: ln, direction: direction, resolver: resolver}, nil
}

func (l *TCPListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept blocks for the next inbound transport, resolves its original
// destination (best effort) and returns it wrapped as a Connection.
// Accept returns net.ErrClosed, wrapped, once Close has been called —
// the caller's accept loop should treat that as a clean shutdown signal
// rather than an operational error.
func (l *TCPListener) Accept() (*domain.Connection, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}

	accepted := &domain.Connection{
		Conn:       conn,
		Direction:  l.direction,
		AcceptedAt: time.Now(),
	}

	if l.resolver != nil {
		if dst, rerr := l.resolver.Resolve(conn); rerr == nil && dst != nil {
			accepted.OriginalDst = dst
		}
	}

	return accepted, nil
}

// Close stops accepting new connections. Already-accepted connections
// are unaffected; their teardown is the transparent server's job during
// drain (spec §4.G).
func (l *TCPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.ln.Close()
}

var _ ports.BoundListener = (*TCPListener)(nil)
