package ports

import "context"

// DrainSignaler is the write side of the drain coordinator (spec §4.G):
// Signal begins the cooperative shutdown sequence exactly once and
// Drained resolves once every registered watcher has reported completion.
type DrainSignaler interface {
	Signal()
	Drained() <-chan struct{}
}

// DrainWatcher is the read side handed to listeners, in-flight request
// loops, and the worker pool: Signaled fires when drain begins, and
// Release must be called exactly once the watcher has wound itself down
// so the coordinator's Drained channel can close.
type DrainWatcher interface {
	Signaled() <-chan struct{}
	Release()
}

// Drainable is anything the runtime registers with the drain coordinator
// at startup: listeners stop accepting, in-flight handlers finish their
// current request and reject new ones, and the worker pool stops
// scheduling once asked to ShutdownOn.
type Drainable interface {
	ShutdownOn(ctx context.Context, watch DrainWatcher)
}
