// Package reconnect implements the stack's per-endpoint backoff layer
// (spec §4.E.3): exponential backoff with jitter gating retries after a
// failed dial, so a flapping endpoint doesn't get hammered every
// request. Grounded on internal/adapter/health's CircuitBreaker (same
// sync.Map-of-atomics shape) and internal/util.CalculateExponentialBackoff
// for the curve itself.
package reconnect

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thushan/olla-sidecard/internal/core/constants"
	"github.com/thushan/olla-sidecard/internal/core/domain"
	"github.com/thushan/olla-sidecard/internal/util"
)

// Backoff implements ports.Reconnector with min=100ms, max=10s,
// factor=2, ±20% jitter (spec §4.E.3). Endpoint state is keyed by URL
// string in a sync.Map, same texture as health.CircuitBreaker.
type Backoff struct {
	endpoints sync.Map // string -> *endpointState

	min    time.Duration
	max    time.Duration
	jitter float64
}

type endpointState struct {
	consecutiveFailures atomic.Int64
	failingSince        atomic.Int64 // unix nanos, 0 when not failing
}

// New constructs a Backoff with the spec's default curve.
func New() *Backoff {
	return &Backoff{
		min:    constants.ReconnectMinBackoff,
		max:    constants.ReconnectMaxBackoff,
		jitter: constants.ReconnectJitter,
	}
}

// Ready reports whether endpoint's backoff window has elapsed and a
// dial attempt may proceed.
func (b *Backoff) Ready(endpoint *domain.Endpoint) bool {
	state, ok := b.load(endpoint)
	if !ok {
		return true
	}
	failures := state.consecutiveFailures.Load()
	if failures == 0 {
		return true
	}
	since := state.failingSince.Load()
	wait := util.CalculateExponentialBackoff(int(failures), b.min, b.max, b.jitter)
	return time.Since(time.Unix(0, since)) >= wait
}

// Attempt blocks until endpoint's backoff window elapses or ctx is
// done, then returns nil to signal the caller may dial.
func (b *Backoff) Attempt(ctx context.Context, endpoint *domain.Endpoint) error {
	state, ok := b.load(endpoint)
	if !ok {
		return nil
	}
	failures := state.consecutiveFailures.Load()
	if failures == 0 {
		return nil
	}
	since := state.failingSince.Load()
	wait := util.CalculateExponentialBackoff(int(failures), b.min, b.max, b.jitter)
	remaining := wait - time.Since(time.Unix(0, since))
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordSuccess resets endpoint's failure count, ending its backoff.
func (b *Backoff) RecordSuccess(endpoint *domain.Endpoint) {
	state := b.loadOrCreate(endpoint)
	state.consecutiveFailures.Store(0)
	state.failingSince.Store(0)
}

// RecordFailure increments endpoint's failure count and starts (or
// continues) its backoff window from now.
func (b *Backoff) RecordFailure(endpoint *domain.Endpoint, _ error) {
	state := b.loadOrCreate(endpoint)
	state.consecutiveFailures.Add(1)
	state.failingSince.Store(time.Now().UnixNano())
}

func (b *Backoff) key(endpoint *domain.Endpoint) string {
	if endpoint.URL != nil {
		return endpoint.URL.String()
	}
	return endpoint.Name
}

func (b *Backoff) load(endpoint *domain.Endpoint) (*endpointState, bool) {
	v, ok := b.endpoints.Load(b.key(endpoint))
	if !ok {
		return nil, false
	}
	return v.(*endpointState), true
}

func (b *Backoff) loadOrCreate(endpoint *domain.Endpoint) *endpointState {
	v, _ := b.endpoints.LoadOrStore(b.key(endpoint), &endpointState{})
	return v.(*endpointState)
}
