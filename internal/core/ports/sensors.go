package ports

import "github.com/thushan/olla-sidecard/internal/core/domain"

// EventKind enumerates the telemetry events the H component publishes
// (spec §4.H "Sensors"): connection lifecycle, request outcome, and
// balancer/reconnect state transitions.
type EventKind string

const (
	EventConnectionOpened EventKind = "connection_opened"
	EventConnectionClosed EventKind = "connection_closed"
	EventRequestCompleted EventKind = "request_completed"
	EventEndpointFailed   EventKind = "endpoint_failed"
	EventEndpointRecovered EventKind = "endpoint_recovered"
	EventDropped          EventKind = "dropped" // emitted by the bus itself when a subscriber's buffer overflows
)

// Event is one telemetry record, timestamped and tagged with the
// process context every event carries (spec §3 "Process Context").
type Event struct {
	Kind      EventKind
	Key       domain.ServiceKey
	Direction domain.Direction
	Err       error
}

// Sensors is the publish side of the H component: a lossy bounded
// pub/sub channel (spec §4.H) that never blocks a caller on a slow
// subscriber — publishing drops the event rather than waiting.
type Sensors interface {
	Publish(evt Event)
	Subscribe() (<-chan Event, func())
	DroppedCount() uint64
}
