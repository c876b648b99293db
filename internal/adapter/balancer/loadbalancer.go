package balancer

import (
	"context"

	"github.com/thushan/olla-sidecard/internal/core/domain"
	"github.com/thushan/olla-sidecard/internal/core/ports"
)

// rttEwmaAlpha weights the most recent RTT sample against the running
// average; 0.1 favours stability over responsiveness, matching the
// smoothing the p2c tiebreak expects from a slowly-varying load signal.
const rttEwmaAlpha = 0.1

// LoadBalancer adapts a domain.EndpointSelector (the existing selection
// strategies: priority, round-robin, least-connections, p2c) to the
// stack's ports.LoadBalancer contract (spec §4.E.2), adding the
// pending-request accounting and RTT EWMA update the selector itself
// doesn't track.
type LoadBalancer struct {
	sel domain.EndpointSelector
}

// Wrap adapts sel for use as a stack's load-balancer layer.
func Wrap(sel domain.EndpointSelector) *LoadBalancer {
	return &LoadBalancer{sel: sel}
}

func (b *LoadBalancer) Name() string {
	return b.sel.Name()
}

func (b *LoadBalancer) Select(ctx context.Context, endpoints []*domain.Endpoint) (*domain.Endpoint, error) {
	ep, err := b.sel.Select(ctx, endpoints)
	if err != nil {
		return nil, err
	}
	b.sel.IncrementConnections(ep)
	return ep, nil
}

// Release returns the endpoint to the pool, recording rtt into its EWMA
// when the call succeeded. A failed call (err != nil) leaves RTTEwma
// untouched — the reconnect layer, not the balancer, is responsible for
// the endpoint's failure accounting.
func (b *LoadBalancer) Release(endpoint *domain.Endpoint, rtt float64, err error) {
	b.sel.DecrementConnections(endpoint)
	if err == nil {
		prev := endpoint.LoadRTTEwma()
		if prev == 0 {
			endpoint.StoreRTTEwma(rtt)
			return
		}
		endpoint.StoreRTTEwma(rttEwmaAlpha*rtt + (1-rttEwmaAlpha)*prev)
	}
}

var _ ports.LoadBalancer = (*LoadBalancer)(nil)
