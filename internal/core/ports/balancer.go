package ports

import (
	"context"

	"github.com/thushan/olla-sidecard/internal/core/domain"
)

// LoadBalancer selects one endpoint from a key's current Endpoint Set
// (spec §4.E.2). The default strategy is power-of-two-choices with an
// RTT-EWMA tiebreak; Name identifies the strategy for logging and the
// /status endpoint.
type LoadBalancer interface {
	Select(ctx context.Context, endpoints []*domain.Endpoint) (*domain.Endpoint, error)
	Release(endpoint *domain.Endpoint, rtt float64, err error)
	Name() string
}

// Reconnector wraps an endpoint's dial attempt with exponential backoff
// (spec §4.E.3): min=100ms, max=10s, factor=2, ±20% jitter. Ready
// reports whether the endpoint's backoff window has elapsed; Attempt
// blocks until it has (or ctx is done) before the caller dials.
type Reconnector interface {
	Attempt(ctx context.Context, endpoint *domain.Endpoint) error
	RecordSuccess(endpoint *domain.Endpoint)
	RecordFailure(endpoint *domain.Endpoint, err error)
	Ready(endpoint *domain.Endpoint) bool
}
