package ports

import (
	"context"
	"net"

	"github.com/thushan/olla-sidecard/internal/core/domain"
)

// BoundListener is the accept side of the A component (spec §4.A): a
// listener bound to a single address that yields Connections carrying
// whatever original-destination metadata the platform can recover.
type BoundListener interface {
	Accept() (*domain.Connection, error)
	Addr() net.Addr
	Close() error
}

// OriginalDestResolver recovers the pre-redirection destination of an
// inbound connection (spec §4.A "Original destination"), e.g. via
// SO_ORIGINAL_DST on Linux. Implementations that cannot resolve it
// return a nil address and no error: absence is not failure.
type OriginalDestResolver interface {
	Resolve(conn net.Conn) (net.Addr, error)
}

// ProtocolDetector classifies a freshly accepted connection by peeking
// at its leading bytes (spec §4.B): h2 client preface, an HTTP/1
// request-line, or neither (opaque). Detect must return the Connection
// with its Peeked buffer populated regardless of outcome, so the caller
// can hand the same bytes to whichever dispatcher it picks.
type ProtocolDetector interface {
	Detect(ctx context.Context, conn *domain.Connection) (*domain.Connection, error)
}
