// Package runtime implements the I component (spec §4.I): a bounded
// worker pool every listener, stack and discovery subscription
// schedules work onto, plus an isolated control-plane goroutine kept
// off the dataplane pool (spec §4 "SUPPLEMENTED FEATURES" — the
// original's dedicated "controller-client" thread).
package runtime

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/thushan/olla-sidecard/internal/core/ports"
)

// Pool is a bounded worker pool: Go schedules fn under an errgroup
// concurrency limit so a burst of accepts can't spin up unbounded
// goroutines, while Wait/Shutdown give the drain coordinator (spec
// §4.G) a single place to await every in-flight fn.
type Pool struct {
	group        *errgroup.Group
	ctx          context.Context
	shuttingDown atomic.Bool
}

// NewPool builds a Pool bounded to limit concurrent goroutines. A limit
// of 0 means unbounded, matching errgroup.Group's own default.
func NewPool(ctx context.Context, limit int) *Pool {
	group, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		group.SetLimit(limit)
	}
	return &Pool{group: group, ctx: gctx}
}

func (p *Pool) Go(fn func(ctx context.Context)) bool {
	if p.shuttingDown.Load() {
		return false
	}
	p.group.Go(func() error {
		fn(p.ctx)
		return nil
	})
	return true
}

func (p *Pool) Wait() {
	_ = p.group.Wait()
}

func (p *Pool) Shutdown() {
	p.shuttingDown.Store(true)
}

var _ ports.Runtime = (*Pool)(nil)

// ControlPlane runs a single long-lived function (the discovery
// controller client) on its own goroutine, isolated from the dataplane
// Pool so a slow or wedged control connection never starves accept
// loops or stack dispatch (spec §4 "dedicated control-plane
// goroutine/executor isolated from the dataplane worker pool").
type ControlPlane struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartControlPlane launches fn on its own goroutine with a cancellable context
// derived from ctx. Stop cancels that context and waits for fn to
// return.
func StartControlPlane(ctx context.Context, fn func(ctx context.Context)) *ControlPlane {
	cctx, cancel := context.WithCancel(ctx)
	cp := &ControlPlane{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(cp.done)
		fn(cctx)
	}()
	return cp
}

func (cp *ControlPlane) Stop() {
	cp.once.Do(func() {
		cp.cancel()
		<-cp.done
	})
}
