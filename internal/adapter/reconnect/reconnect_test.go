package reconnect

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/olla-sidecard/internal/core/domain"
)

func newTestEndpoint(t *testing.T) *domain.Endpoint {
	t.Helper()
	u, err := url.Parse("http://10.0.0.1:8080")
	require.NoError(t, err)
	return &domain.Endpoint{Name: "svc-a", URL: u}
}

func TestBackoffReadyBeforeAnyFailure(t *testing.T) {
	b := New()
	ep := newTestEndpoint(t)
	assert.True(t, b.Ready(ep))
}

func TestBackoffNotReadyImmediatelyAfterFailure(t *testing.T) {
	b := New()
	ep := newTestEndpoint(t)

	b.RecordFailure(ep, assert.AnError)
	assert.False(t, b.Ready(ep))
}

func TestBackoffRecordSuccessClearsWindow(t *testing.T) {
	b := New()
	ep := newTestEndpoint(t)

	b.RecordFailure(ep, assert.AnError)
	require.False(t, b.Ready(ep))

	b.RecordSuccess(ep)
	assert.True(t, b.Ready(ep))
}

func TestBackoffAttemptBlocksUntilWindowElapses(t *testing.T) {
	b := &Backoff{min: 10 * time.Millisecond, max: 50 * time.Millisecond, jitter: 0}
	ep := newTestEndpoint(t)

	b.RecordFailure(ep, assert.AnError)

	start := time.Now()
	err := b.Attempt(context.Background(), ep)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestBackoffAttemptRespectsContextCancellation(t *testing.T) {
	b := &Backoff{min: time.Hour, max: time.Hour, jitter: 0}
	ep := newTestEndpoint(t)
	b.RecordFailure(ep, assert.AnError)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := b.Attempt(ctx, ep)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
