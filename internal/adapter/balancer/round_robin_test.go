package balancer

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/olla-sidecard/internal/core/domain"
)

func mustEndpoint(t *testing.T, raw string, status domain.EndpointStatus) *domain.Endpoint {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return &domain.Endpoint{Name: raw, URL: u, Status: status}
}

func TestRoundRobinSelectorCyclesThroughRoutableEndpoints(t *testing.T) {
	selector := NewRoundRobinSelector()
	endpoints := []*domain.Endpoint{
		mustEndpoint(t, "http://a", domain.StatusHealthy),
		mustEndpoint(t, "http://b", domain.StatusHealthy),
	}

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		ep, err := selector.Select(context.Background(), endpoints)
		require.NoError(t, err)
		seen[ep.Name]++
	}
	assert.Equal(t, 2, seen["http://a"])
	assert.Equal(t, 2, seen["http://b"])
}

func TestRoundRobinSelectorSkipsUnroutableEndpoints(t *testing.T) {
	selector := NewRoundRobinSelector()
	endpoints := []*domain.Endpoint{
		mustEndpoint(t, "http://a", domain.StatusOffline),
		mustEndpoint(t, "http://b", domain.StatusHealthy),
	}

	ep, err := selector.Select(context.Background(), endpoints)
	require.NoError(t, err)
	assert.Equal(t, "http://b", ep.Name)
}

func TestRoundRobinSelectorErrorsOnNoRoutableEndpoints(t *testing.T) {
	selector := NewRoundRobinSelector()
	endpoints := []*domain.Endpoint{mustEndpoint(t, "http://a", domain.StatusOffline)}

	_, err := selector.Select(context.Background(), endpoints)
	assert.Error(t, err)
}

func TestRoundRobinSelectorTracksPendingRequests(t *testing.T) {
	selector := NewRoundRobinSelector()
	ep := mustEndpoint(t, "http://a", domain.StatusHealthy)

	selector.IncrementConnections(ep)
	selector.IncrementConnections(ep)
	selector.DecrementConnections(ep)

	assert.EqualValues(t, 1, ep.PendingRequests)
}
