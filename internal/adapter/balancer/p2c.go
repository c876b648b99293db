package balancer

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/thushan/olla-sidecard/internal/core/domain"
)

// P2CSelector implements power-of-two-choices (spec §4.E.2): sample two
// distinct routable endpoints at random and pick the one with fewer
// pending requests, breaking ties by the lower RTT EWMA. Avoids the
// thundering-herd problem of least-connections (which needs a global
// scan) while still tracking load, at O(1) per selection.
type P2CSelector struct{}

func NewP2CSelector() *P2CSelector {
	return &P2CSelector{}
}

func (p *P2CSelector) Name() string {
	return DefaultBalancerPowerOfTwoChoices
}

func (p *P2CSelector) Select(ctx context.Context, endpoints []*domain.Endpoint) (*domain.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints available")
	}

	routable := make([]*domain.Endpoint, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if endpoint.Status.IsRoutable() {
			routable = append(routable, endpoint)
		}
	}

	if len(routable) == 0 {
		return nil, fmt.Errorf("no routable endpoints available")
	}
	if len(routable) == 1 {
		return routable[0], nil
	}

	i := rand.Intn(len(routable))
	j := rand.Intn(len(routable) - 1)
	if j >= i {
		j++
	}

	a, b := routable[i], routable[j]
	return pickLessLoaded(a, b), nil
}

// pickLessLoaded implements the tiebreak rule: fewer pending requests
// wins, and a tie on pending count falls through to the lower RTT EWMA.
func pickLessLoaded(a, b *domain.Endpoint) *domain.Endpoint {
	pa := atomic.LoadInt64(&a.PendingRequests)
	pb := atomic.LoadInt64(&b.PendingRequests)
	if pa != pb {
		if pa < pb {
			return a
		}
		return b
	}
	if a.LoadRTTEwma() <= b.LoadRTTEwma() {
		return a
	}
	return b
}

func (p *P2CSelector) IncrementConnections(endpoint *domain.Endpoint) {
	atomic.AddInt64(&endpoint.PendingRequests, 1)
}

func (p *P2CSelector) DecrementConnections(endpoint *domain.Endpoint) {
	atomic.AddInt64(&endpoint.PendingRequests, -1)
}
