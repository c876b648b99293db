//go:build !linux

package listener

import "net"

// SockoptResolver is the non-Linux stand-in: SO_ORIGINAL_DST has no
// portable equivalent, so Resolve always reports absence (spec §4.A
// "None is treated as no redirection info") and routing falls back to
// authority.
type SockoptResolver struct{}

func NewOriginalDstResolver() *SockoptResolver {
	return &SockoptResolver{}
}

func (SockoptResolver) Resolve(conn net.Conn) (net.Addr, error) {
	return nil, nil
}
