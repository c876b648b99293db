package constants

import "time"

// Default knobs for the service stack (spec §4.E) and router (spec §4.D)
// when config.yaml leaves them unset.
const (
	DefaultInboundRouterCapacity  = 10_000
	DefaultOutboundRouterCapacity = 10_000

	DefaultBufferCapacity     = 100
	DefaultInFlightLimit      = 1_000
	DefaultBindTimeout        = 1 * time.Second
	DefaultConnectTimeout     = 1 * time.Second
	DefaultResponseTimeout    = 0 // 0 disables the per-response deadline
	DefaultEventBufferCapacity = 10_000
	DefaultMetricsRetainIdle  = 10 * time.Minute

	// Reconnect backoff (spec §4.E.3)
	ReconnectMinBackoff = 100 * time.Millisecond
	ReconnectMaxBackoff = 10 * time.Second
	ReconnectFactor     = 2.0
	ReconnectJitter     = 0.20
)
