package ports

import "context"

// Runtime is the I component (spec §4.I): the worker pool and scoped
// executor glue that every listener, stack, and discovery subscription
// schedules work onto. Go's scheduler already supplies the M:N threading
// a hand-rolled reactor would give us, so Runtime's job is lifecycle,
// not dispatch: bounding concurrency and giving the drain coordinator a
// single place to wait out in-flight work.
type Runtime interface {
	// Go schedules fn on the pool. Returns false without running fn if
	// the pool has begun shutting down.
	Go(fn func(ctx context.Context)) bool

	// Wait blocks until every scheduled fn has returned.
	Wait()

	// Shutdown stops accepting new work; in-flight fns still run to
	// completion and are awaited by Wait.
	Shutdown()
}
