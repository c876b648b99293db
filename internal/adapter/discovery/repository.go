// Package discovery implements the F component (spec §4.F): resolving a
// ServiceKey into a live stream of Endpoint Set updates. Repository is
// the in-memory Endpoint Set itself; the DiscoveryService
// implementations below populate it and publish Updates as it changes.
package discovery

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/thushan/olla-sidecard/internal/core/domain"
)

// Repository is the per-key Endpoint Set store (spec §3 "Endpoint Set"):
// a concurrency-safe map from endpoint URL to *domain.Endpoint, shared
// between the load balancer's reads and the discovery subscription's
// writes.
type Repository struct {
	mu          sync.RWMutex
	endpoints   map[string]*domain.Endpoint
	states      map[string]domain.EndpointState
	transitions map[string][]domain.StateTransition
}

func NewRepository() *Repository {
	return &Repository{
		endpoints:   make(map[string]*domain.Endpoint),
		states:      make(map[string]domain.EndpointState),
		transitions: make(map[string][]domain.StateTransition),
	}
}

func (r *Repository) GetAll(ctx context.Context) ([]*domain.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}
	return out, nil
}

func (r *Repository) GetHealthy(ctx context.Context) ([]*domain.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Endpoint, 0)
	for _, ep := range r.endpoints {
		if ep.Status == domain.StatusHealthy {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (r *Repository) GetRoutable(ctx context.Context) ([]*domain.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Endpoint, 0)
	for _, ep := range r.endpoints {
		if ep.Status.IsRoutable() {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, endpointURL *url.URL, status domain.EndpointStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := endpointURL.String()
	ep, ok := r.endpoints[key]
	if !ok {
		return &domain.ErrEndpointNotFound{URL: key}
	}
	ep.Status = status
	ep.LastChecked = time.Now()
	r.recordTransition(key, domain.StateFor(status))
	return nil
}

// recordTransition moves an endpoint's lifecycle state forward per
// domain.EndpointState.CanTransitionTo, appending to its transition
// history. Disallowed transitions (e.g. out of the terminal Removed
// state) are silently dropped: the caller only reports probe results,
// it shouldn't have to reason about the state machine.
func (r *Repository) recordTransition(key string, target domain.EndpointState) {
	current, known := r.states[key]
	if !known {
		current = domain.EndpointStateUnknown
	}
	if current == target {
		return
	}
	if known && !current.CanTransitionTo(target) {
		return
	}

	r.states[key] = target
	r.transitions[key] = append(r.transitions[key], domain.StateTransition{
		Timestamp: time.Now(),
		From:      current.String(),
		To:        target.String(),
	})
}

// StateHistory returns the lifecycle transitions recorded for an
// endpoint, oldest first.
func (r *Repository) StateHistory(endpointURL *url.URL) []domain.StateTransition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.StateTransition(nil), r.transitions[endpointURL.String()]...)
}

func (r *Repository) UpdateEndpoint(ctx context.Context, endpoint *domain.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.endpoints[endpoint.URL.String()]; !ok {
		return &domain.ErrEndpointNotFound{URL: endpoint.URL.String()}
	}
	r.endpoints[endpoint.URL.String()] = endpoint
	return nil
}

func (r *Repository) Add(ctx context.Context, endpoint *domain.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := endpoint.URL.String()
	r.endpoints[key] = endpoint
	r.recordTransition(key, domain.StateFor(endpoint.Status))
	return nil
}

func (r *Repository) Remove(ctx context.Context, endpointURL *url.URL) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := endpointURL.String()
	if _, ok := r.endpoints[key]; !ok {
		return &domain.ErrEndpointNotFound{URL: key}
	}
	r.recordTransition(key, domain.EndpointStateRemoved)
	delete(r.endpoints, key)
	delete(r.states, key)
	return nil
}

func (r *Repository) Exists(ctx context.Context, endpointURL *url.URL) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.endpoints[endpointURL.String()]
	return ok
}

func (r *Repository) GetCacheStats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]interface{}{
		"endpoint_count": len(r.endpoints),
	}
}

var _ domain.EndpointRepository = (*Repository)(nil)

// applyAdd and applyRemove mutate the repository per the endpoints of an
// UpdateAdd or UpdateRemove ports.Update, so the Endpoint Set stays in
// lockstep with the Updates a discovery implementation publishes. Neither
// returns anything; the caller forwards its own Update unchanged.
func (r *Repository) applyAdd(endpoints []*domain.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ep := range endpoints {
		key := ep.URL.String()
		r.endpoints[key] = ep
		r.recordTransition(key, domain.StateFor(ep.Status))
	}
}

func (r *Repository) applyRemove(endpoints []*domain.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ep := range endpoints {
		key := ep.URL.String()
		r.recordTransition(key, domain.EndpointStateRemoved)
		delete(r.endpoints, key)
		delete(r.states, key)
	}
}
