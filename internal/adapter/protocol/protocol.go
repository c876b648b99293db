// Package protocol implements the B component (spec §4.B): classifying
// a freshly accepted connection as HTTP/1, HTTP/2, or opaque TCP by
// peeking at its leading bytes, without consuming them from the
// dispatcher's point of view — the peeked prefix travels with the
// Connection so whichever dispatcher is chosen replays it first.
package protocol

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"time"

	"github.com/thushan/olla-sidecard/internal/core/domain"
	"github.com/thushan/olla-sidecard/internal/core/ports"
	"github.com/thushan/olla-sidecard/internal/util/pattern"
)

const maxPeekBytes = 24

// h2Preface is the client connection preface every HTTP/2 connection
// opens with (RFC 9113 §3.4), byte-for-byte 24 bytes — the same size
// as the peek window, which is why 24 was chosen.
var h2Preface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

var httpMethods = [][]byte{
	[]byte("GET "), []byte("HEAD "), []byte("POST "), []byte("PUT "),
	[]byte("DELETE "), []byte("CONNECT "), []byte("OPTIONS "),
	[]byte("TRACE "), []byte("PATCH "),
}

// Detector peeks up to 24 bytes off a newly accepted connection and
// classifies its protocol per spec §4.B's decision rules. Ports named
// in disabledPorts skip detection entirely and are always Opaque, as
// does any connection whose original destination matches one of
// disabledDestinations (glob patterns over "host:port", e.g.
// "169.254.169.254:*" for a cloud metadata endpoint).
type Detector struct {
	disabledPorts        map[int]struct{}
	disabledDestinations []string
	timeout              time.Duration
}

// New builds a Detector. timeout bounds how long Detect waits for the
// full 24-byte peek to arrive; a connection that delivers fewer bytes
// before it elapses is classified Opaque (spec §4.B default 10s).
func New(disabledPorts []int, disabledDestinations []string, timeout time.Duration) *Detector {
	d := &Detector{
		disabledPorts:        make(map[int]struct{}, len(disabledPorts)),
		disabledDestinations: disabledDestinations,
		timeout:              timeout,
	}
	for _, p := range disabledPorts {
		d.disabledPorts[p] = struct{}{}
	}
	return d
}

func (d *Detector) Detect(ctx context.Context, conn *domain.Connection) (*domain.Connection, error) {
	if _, disabled := d.disabledPorts[localPort(conn)]; disabled {
		conn.Protocol = domain.ProtocolOpaque
		return conn, nil
	}
	if d.matchesDisabledDestination(conn) {
		conn.Protocol = domain.ProtocolOpaque
		return conn, nil
	}

	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, maxPeekBytes)
	total := 0
	var readErr error
	for total < maxPeekBytes {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			readErr = err
			break
		}
	}
	conn.Peeked = buf[:total]

	if readErr != nil || total < maxPeekBytes {
		// Fewer than 24 bytes arrived within the detection timeout (or
		// the peer closed early): Opaque (spec §4.B).
		conn.Protocol = domain.ProtocolOpaque
		return conn, nil
	}

	conn.Protocol = classify(buf)
	return conn, nil
}

func classify(prefix []byte) domain.Protocol {
	if bytes.Equal(prefix, h2Preface) {
		return domain.ProtocolHTTP2
	}
	for _, m := range httpMethods {
		if bytes.HasPrefix(prefix, m) && looksLikeRequestLine(prefix) {
			return domain.ProtocolHTTP1
		}
	}
	return domain.ProtocolOpaque
}

// looksLikeRequestLine reports whether the peeked prefix contains the
// "HTTP/1." version token a well-formed request-line carries — the
// strongest signal available from a partial, unterminated line.
func looksLikeRequestLine(prefix []byte) bool {
	return bytes.Contains(prefix, []byte("HTTP/1."))
}

// matchesDisabledDestination reports whether conn's original destination
// (before any NAT redirection to the dataplane listener) matches one of
// the configured glob patterns. Connections with no original destination
// captured (HasOriginalDst false) never match.
func (d *Detector) matchesDisabledDestination(conn *domain.Connection) bool {
	if !conn.HasOriginalDst() || len(d.disabledDestinations) == 0 {
		return false
	}
	dst := conn.OriginalDst.String()
	for _, p := range d.disabledDestinations {
		if pattern.MatchesGlob(dst, p) {
			return true
		}
	}
	return false
}

func localPort(conn *domain.Connection) int {
	addr, ok := conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		p, err := strconv.Atoi(portSuffix(conn.LocalAddr().String()))
		if err != nil {
			return 0
		}
		return p
	}
	return addr.Port
}

func portSuffix(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	return port
}

var _ ports.ProtocolDetector = (*Detector)(nil)
