// Package sensors implements the H component (spec §4.H): a lossy
// bounded pub/sub telemetry channel built on pkg/eventbus. Publish
// never blocks a caller on a slow subscriber — the bus's async worker
// pool drops events on overflow rather than applying backpressure to
// the request path that produced them.
package sensors

import (
	"context"

	"github.com/thushan/olla-sidecard/internal/core/ports"
	"github.com/thushan/olla-sidecard/pkg/eventbus"
)

// Bus is the Sensors port backed by an eventbus.EventBus. Capacity
// bounds the bus's per-subscriber buffer (spec §6
// "event_buffer_capacity"); the async publish queue keeps the eventbus's
// fixed size of 1000.
type Bus struct {
	bus *eventbus.EventBus[ports.Event]
}

// New constructs a Bus with the given per-subscriber buffer capacity.
// A capacity of 0 falls back to eventbus.DefaultConfig's buffer size.
func New(capacity int) *Bus {
	cfg := eventbus.DefaultConfig
	if capacity > 0 {
		cfg.BufferSize = capacity
	}
	return &Bus{bus: eventbus.NewWithConfig[ports.Event](cfg)}
}

// Publish queues evt for delivery without blocking the caller; evt is
// dropped if the async queue is full or the bus is shut down, and is
// skipped for each subscriber whose buffer is full.
func (b *Bus) Publish(evt ports.Event) {
	b.bus.PublishAsync(evt)
}

// Subscribe returns a channel of future events and a cleanup function
// the caller must invoke once it stops reading, per spec §4.H.
func (b *Bus) Subscribe() (<-chan ports.Event, func()) {
	ch, cancel := b.bus.Subscribe(context.Background())
	return ch, cancel
}

// DroppedCount reports the number of events dropped because a
// subscriber's buffer was full, summed over the currently subscribed
// subscribers; drops from a full async queue are not counted. It feeds
// the dropped-telemetry-events counter (spec §6).
func (b *Bus) DroppedCount() uint64 {
	return b.bus.Stats().TotalDropped
}

// Close shuts the underlying bus down; no further events are delivered
// and Publish becomes a no-op.
func (b *Bus) Close() {
	b.bus.Shutdown()
}

var _ ports.Sensors = (*Bus)(nil)
