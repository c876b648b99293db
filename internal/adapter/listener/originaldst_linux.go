//go:build linux

package listener

import (
	"encoding/binary"
	"fmt"
	"net"
	"unsafe"

	"golang.org/x/sys/unix"
)

// soOriginalDst is netfilter's SO_ORIGINAL_DST getsockopt name. It is
// the same value (80) under both SOL_IP (REDIRECT'd IPv4 sockets,
// returning a 16-byte sockaddr_in) and SOL_IPV6 (REDIRECT'd IPv6
// sockets, returning a 28-byte sockaddr_in6) — see spec §6.
const soOriginalDst = 80

// SockoptResolver recovers the pre-redirection destination of a
// connection accepted off an iptables REDIRECT'd socket via Linux's
// SO_ORIGINAL_DST socket option (spec §4.A).
type SockoptResolver struct{}

// NewOriginalDstResolver returns the platform original-destination
// resolver for Linux.
func NewOriginalDstResolver() *SockoptResolver {
	return &SockoptResolver{}
}

func (SockoptResolver) Resolve(conn net.Conn) (net.Addr, error) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil, nil
	}

	sc, err := tc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("listener: syscall conn: %w", err)
	}

	isV6 := tc.LocalAddr().(*net.TCPAddr).IP.To4() == nil

	var addr net.Addr
	ctrlErr := sc.Control(func(fd uintptr) {
		if isV6 {
			addr = getOriginalDst6(int(fd))
		} else {
			addr = getOriginalDst4(int(fd))
		}
	})
	if ctrlErr != nil {
		return nil, fmt.Errorf("listener: control: %w", ctrlErr)
	}
	// A socket that was never REDIRECT'd has no SO_ORIGINAL_DST to
	// report; that is absence, not failure (spec §4.A "None is treated
	// as no redirection info").
	return addr, nil
}

// rawSockaddrIn mirrors struct sockaddr_in (16 bytes): family, port (BE),
// 4-byte address, 8 bytes of padding.
type rawSockaddrIn struct {
	family uint16
	port   uint16
	addr   [4]byte
	_      [8]byte
}

// rawSockaddrIn6 mirrors struct sockaddr_in6 (28 bytes): family, port
// (BE), flowinfo, 16-byte address, scope id.
type rawSockaddrIn6 struct {
	family   uint16
	port     uint16
	flowinfo uint32
	addr     [16]byte
	scopeID  uint32
}

func getOriginalDst4(fd int) net.Addr {
	var raw rawSockaddrIn
	size := uint32(unsafe.Sizeof(raw))
	if err := getsockopt(fd, unix.SOL_IP, soOriginalDst, unsafe.Pointer(&raw), &size); err != nil {
		return nil
	}
	return &net.TCPAddr{
		IP:   net.IP(raw.addr[:]),
		Port: int(binary.BigEndian.Uint16((*[2]byte)(unsafe.Pointer(&raw.port))[:])),
	}
}

func getOriginalDst6(fd int) net.Addr {
	var raw rawSockaddrIn6
	size := uint32(unsafe.Sizeof(raw))
	if err := getsockopt(fd, unix.SOL_IPV6, soOriginalDst, unsafe.Pointer(&raw), &size); err != nil {
		return nil
	}
	return &net.TCPAddr{
		IP:   net.IP(raw.addr[:]),
		Port: int(binary.BigEndian.Uint16((*[2]byte)(unsafe.Pointer(&raw.port))[:])),
		Zone: fmt.Sprintf("%d", raw.scopeID),
	}
}

func getsockopt(fd, level, name int, val unsafe.Pointer, vallen *uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT, uintptr(fd), uintptr(level), uintptr(name),
		uintptr(val), uintptr(unsafe.Pointer(vallen)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
