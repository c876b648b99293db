package constants

// Context and log-attribute keys for per-request values (spec §3
// "Connection", §4.H). Only ContextRequestIDKey is used: the admin
// logging middleware attaches it to its request logger. The other keys
// are declared but not read or written anywhere.
const (
	ContextRequestIDKey    = "request_id"    // the request's ID, taken from X-Request-Id or generated
	ContextRequestTimeKey  = "request_time"  // accept timestamp
	ContextDirectionKey    = "direction"     // inbound or outbound
	ContextOriginalDstKey  = "original_dst"  // the SO_ORIGINAL_DST-equivalent lookup result, nil when unavailable
	ContextServiceKeyKey   = "service_key"   // the router's resolved key for the connection
	ContextDrainKey        = "drain_signal"  // the drain watch handle
)
