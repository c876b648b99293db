package domain

import (
	"net"
	"time"
)

// Direction tags whether a Connection arrived on the inbound (public)
// listener or the outbound (private) listener (spec §3 "Connection").
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

func (d Direction) String() string {
	return string(d)
}

// Protocol is the result of the protocol detector's classification
// (spec §4.B).
type Protocol string

const (
	ProtocolHTTP1  Protocol = "http1"
	ProtocolHTTP2  Protocol = "h2"
	ProtocolOpaque Protocol = "opaque"
)

func (p Protocol) String() string {
	return string(p)
}

// Connection is an accepted transport carrying everything the router and
// protocol detector need: local/peer addresses, the pre-redirection
// original destination, a direction tag, and the peeked prefix buffer left
// over from protocol detection (spec §3 "Connection").
type Connection struct {
	net.Conn

	Direction      Direction
	OriginalDst    net.Addr
	Peeked         []byte
	AcceptedAt     time.Time
	Protocol       Protocol
}

// LocalAddr/RemoteAddr are inherited from the embedded net.Conn; OriginalDst
// is the SO_ORIGINAL_DST-equivalent lookup result, nil when unavailable.

// HasOriginalDst reports whether the original-destination capability
// (spec §4.A "Original destination") resolved an address for this
// connection.
func (c *Connection) HasOriginalDst() bool {
	return c.OriginalDst != nil
}
