package domain

import (
	"fmt"
	"time"
)

// The dataplane error taxonomy (spec §7). Each kind names where it's
// raised and what its disposition is; see the router, protocol detector
// and transparent server for where these are constructed and mapped to
// HTTP statuses or connection termination.

type NotRecognizedError struct {
	Reason string
}

func (e *NotRecognizedError) Error() string {
	return fmt.Sprintf("request not recognized: %s", e.Reason)
}

// NoCapacityError is raised by the router on admission into a full map
// (spec §4.D) or by the stack's Buffer layer on queue overflow (spec
// §4.E.4). Both dispositions map to HTTP 503.
type NoCapacityError struct {
	Capacity int
	Scope    string // "router" or "buffer"
}

func (e *NoCapacityError) Error() string {
	return fmt.Sprintf("%s at capacity (%d)", e.Scope, e.Capacity)
}

// ServiceGoneError is returned to a held-but-stale stack handle: the
// router evicted its entry after the handle was cloned (spec §3
// "tombstone semantics").
type ServiceGoneError struct {
	Key ServiceKey
}

func (e *ServiceGoneError) Error() string {
	return fmt.Sprintf("service stack for %s is gone", e.Key)
}

// DiscoveryNotFoundError mirrors the discovery subscription's
// DoesNotExist update (spec §4.F): the balancer is in a terminal
// "name not found" state and requests fail fast.
type DiscoveryNotFoundError struct {
	Key ServiceKey
}

func (e *DiscoveryNotFoundError) Error() string {
	return fmt.Sprintf("destination does not exist: %s", e.Key)
}

// TimeoutKind distinguishes which deadline elapsed, used to pick between
// HTTP 504 (upstream wait) and 408 (request read) in the error mapping.
type TimeoutKind string

const (
	TimeoutKindBind     TimeoutKind = "bind"     // waiting for a ready endpoint
	TimeoutKindConnect  TimeoutKind = "connect"  // opaque upstream dial
	TimeoutKindResponse TimeoutKind = "response" // per-response deadline
	TimeoutKindRead     TimeoutKind = "read"     // reading the request
)

type TimeoutError struct {
	Kind    TimeoutKind
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout after %v", e.Kind, e.Elapsed)
}

// UpstreamConnectError is raised opening an opaque upstream connection
// (spec §4.C) or reconnecting an endpoint sub-service (spec §4.E.3); the
// balancer marks the endpoint failing and the reconnect layer begins
// backoff.
type UpstreamConnectError struct {
	Err     error
	Address string
}

func (e *UpstreamConnectError) Error() string {
	return fmt.Sprintf("upstream connect to %s failed: %v", e.Address, e.Err)
}

func (e *UpstreamConnectError) Unwrap() error {
	return e.Err
}

// DrainSignaledError is not an error in the usual sense: it distinguishes
// a connection/request that was refused or torn down because drain had
// already begun from a genuine failure (spec §7, "not an error").
type DrainSignaledError struct{}

func (e *DrainSignaledError) Error() string {
	return "drain signaled"
}

// MisconfiguredLoopError guards against a SO_ORIGINAL_DST lookup that
// resolves to the proxy's own bind address (spec §9 loop prevention).
type MisconfiguredLoopError struct {
	Addr string
}

func (e *MisconfiguredLoopError) Error() string {
	return fmt.Sprintf("original destination %s loops back to the proxy's own listener", e.Addr)
}
