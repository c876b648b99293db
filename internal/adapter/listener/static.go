package listener

import "net"

// StaticResolver resolves every connection to the same configured
// address, or to nil when unset. Used in place of SockoptResolver for
// environments without REDIRECT/TPROXY semantics — local development,
// tests, and the `private_forward` static-forward config fallback
// (spec §6) for the outbound listener.
type StaticResolver struct {
	Addr net.Addr
}

func (r StaticResolver) Resolve(conn net.Conn) (net.Addr, error) {
	return r.Addr, nil
}
