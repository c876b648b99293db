package ports

import (
	"context"

	"github.com/thushan/olla-sidecard/internal/core/domain"
)

// Router is the D component (spec §4.D): a bounded key→stack map that
// recognizes a connection's service key and hands back a handle to the
// (possibly freshly built) ServiceStack for that key. Construction for
// a not-yet-seen key is single-flighted: concurrent Recognize calls for
// the same key observe exactly one StackFactory invocation.
type Router interface {
	// Recognize resolves conn to a ServiceKey and returns a handle to its
	// stack, building one via the router's StackFactory on first use.
	// Returns a *domain.NoCapacityError if the router is at capacity and
	// conn's key is not already resident.
	Recognize(ctx context.Context, conn *domain.Connection) (StackHandle, error)

	// Len reports the number of resident keys, for the router-capacity
	// gauge (spec §6).
	Len() int
}

// StackHandle is a caller's lease on a router entry. Stack returns the
// entry's ServiceStack without blocking, or a *domain.ServiceGoneError
// if the router evicted the entry first (spec §3 "tombstone semantics").
type StackHandle interface {
	Key() domain.ServiceKey
	Stack() (ServiceStack, error)
}

// StackFactory builds the per-key ServiceStack (spec §4.E) the first
// time the router observes a key. Implementations compose discovery,
// load balancing, reconnect, buffering, in-flight limiting, timeouts
// and sensors in that order.
type StackFactory func(ctx context.Context, key domain.ServiceKey) (ServiceStack, error)

// ServiceStack is the E component: the per-key pipeline a recognized
// connection's request is driven through. Call is the stack's single
// entry point; PollReady reports, without committing to Call, whether
// the stack can route at all: it returns an error when discovery says
// the key does not exist or no endpoint is routable.
type ServiceStack interface {
	Call(ctx context.Context, conn *domain.Connection) error
	PollReady(ctx context.Context) error
	Close() error
}
