package runtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolRunsScheduledWork(t *testing.T) {
	p := NewPool(context.Background(), 2)
	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		ok := p.Go(func(ctx context.Context) { ran.Add(1) })
		assert.True(t, ok)
	}
	p.Wait()
	assert.Equal(t, int64(5), ran.Load())
}

func TestPoolRefusesWorkAfterShutdown(t *testing.T) {
	p := NewPool(context.Background(), 0)
	p.Shutdown()
	ok := p.Go(func(ctx context.Context) {})
	assert.False(t, ok)
	p.Wait()
}

func TestControlPlaneStopWaitsForFn(t *testing.T) {
	var stopped atomic.Bool
	cp := StartControlPlane(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		stopped.Store(true)
	})
	cp.Stop()
	assert.True(t, stopped.Load())
}
