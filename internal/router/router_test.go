package router

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/olla-sidecard/internal/core/domain"
	"github.com/thushan/olla-sidecard/internal/core/ports"
)

type fakeStack struct {
	closed atomic.Bool
}

func (s *fakeStack) Call(ctx context.Context, conn *domain.Connection) error { return nil }
func (s *fakeStack) PollReady(ctx context.Context) error                    { return nil }
func (s *fakeStack) Close() error {
	s.closed.Store(true)
	return nil
}

func connFor(t *testing.T, addr string) *domain.Connection {
	t.Helper()
	a, err := net.ResolveTCPAddr("tcp", addr)
	require.NoError(t, err)
	return &domain.Connection{OriginalDst: a}
}

func TestRouterBuildsStackOnFirstRecognize(t *testing.T) {
	var builds int64
	factory := func(ctx context.Context, key domain.ServiceKey) (ports.ServiceStack, error) {
		atomic.AddInt64(&builds, 1)
		return &fakeStack{}, nil
	}
	r := New(10, factory)

	conn := connFor(t, "10.0.0.1:80")
	h1, err := r.Recognize(context.Background(), conn)
	require.NoError(t, err)
	h2, err := r.Recognize(context.Background(), conn)
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&builds))
	assert.Equal(t, h1.Key(), h2.Key())
}

func TestRouterRefusesNewKeyAtCapacity(t *testing.T) {
	factory := func(ctx context.Context, key domain.ServiceKey) (ports.ServiceStack, error) {
		return &fakeStack{}, nil
	}
	r := New(1, factory)

	_, err := r.Recognize(context.Background(), connFor(t, "10.0.0.1:80"))
	require.NoError(t, err)

	_, err = r.Recognize(context.Background(), connFor(t, "10.0.0.2:80"))
	require.Error(t, err)
	var capErr *domain.NoCapacityError
	assert.ErrorAs(t, err, &capErr)
}

func TestRouterEvictTombstonesHeldHandle(t *testing.T) {
	factory := func(ctx context.Context, key domain.ServiceKey) (ports.ServiceStack, error) {
		return &fakeStack{}, nil
	}
	r := New(10, factory)
	conn := connFor(t, "10.0.0.1:80")

	h, err := r.Recognize(context.Background(), conn)
	require.NoError(t, err)

	r.Evict(h.Key())

	_, err = h.Stack()
	assert.Error(t, err)
}

func TestRouterReapIdleEvictsOnlyStaleKeys(t *testing.T) {
	factory := func(ctx context.Context, key domain.ServiceKey) (ports.ServiceStack, error) {
		return &fakeStack{}, nil
	}
	r := New(10, factory)

	staleConn := connFor(t, "10.0.0.1:80")
	freshConn := connFor(t, "10.0.0.2:80")

	staleHandle, err := r.Recognize(context.Background(), staleConn)
	require.NoError(t, err)
	freshHandle, err := r.Recognize(context.Background(), freshConn)
	require.NoError(t, err)

	staleHandle.(*handle).ent.lastUse.Store(time.Now().Add(-time.Hour).UnixNano())

	r.ReapIdle(time.Minute)

	assert.Equal(t, 1, r.Len())
	_, err = staleHandle.Stack()
	assert.Error(t, err)
	staleStack := staleHandle.(*handle).ent.stack.(*fakeStack)
	assert.True(t, staleStack.closed.Load())

	_, err = freshHandle.Stack()
	assert.NoError(t, err)
	freshStack := freshHandle.(*handle).ent.stack.(*fakeStack)
	assert.False(t, freshStack.closed.Load())
}

func TestRouterReapIdleNoopWhenDisabled(t *testing.T) {
	factory := func(ctx context.Context, key domain.ServiceKey) (ports.ServiceStack, error) {
		return &fakeStack{}, nil
	}
	r := New(10, factory)
	conn := connFor(t, "10.0.0.1:80")

	h, err := r.Recognize(context.Background(), conn)
	require.NoError(t, err)
	h.(*handle).ent.lastUse.Store(time.Now().Add(-time.Hour).UnixNano())

	r.ReapIdle(0)

	assert.Equal(t, 1, r.Len())
	_, err = h.Stack()
	assert.NoError(t, err)
}

func TestRouterConcurrentRecognizeSingleFlightsConstruction(t *testing.T) {
	var builds int64
	factory := func(ctx context.Context, key domain.ServiceKey) (ports.ServiceStack, error) {
		atomic.AddInt64(&builds, 1)
		time.Sleep(10 * time.Millisecond)
		return &fakeStack{}, nil
	}
	r := New(10, factory)
	conn := connFor(t, "10.0.0.1:80")

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			_, err := r.Recognize(context.Background(), conn)
			assert.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&builds))
}
