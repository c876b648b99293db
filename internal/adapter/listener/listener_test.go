package listener

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/olla-sidecard/internal/core/domain"
)

func TestBindAcceptsAndTagsDirection(t *testing.T) {
	ln, err := Bind("127.0.0.1:0", domain.DirectionInbound, nil)
	require.NoError(t, err)
	defer ln.Close()

	dialed := make(chan error, 1)
	go func() {
		c, derr := net.Dial("tcp", ln.Addr().String())
		if derr == nil {
			c.Close()
		}
		dialed <- derr
	}()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, domain.DirectionInbound, conn.Direction)
	assert.False(t, conn.HasOriginalDst())
	assert.NoError(t, <-dialed)
}

func TestBindResolvesOriginalDst(t *testing.T) {
	want := &net.TCPAddr{IP: net.ParseIP("10.1.1.1"), Port: 9090}
	ln, err := Bind("127.0.0.1:0", domain.DirectionOutbound, StaticResolver{Addr: want})
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, derr := net.Dial("tcp", ln.Addr().String())
		if derr == nil {
			c.Close()
		}
	}()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	require.True(t, conn.HasOriginalDst())
	assert.Equal(t, want.String(), conn.OriginalDst.String())
}

func TestCloseIsIdempotent(t *testing.T) {
	ln, err := Bind("127.0.0.1:0", domain.DirectionInbound, nil)
	require.NoError(t, err)

	require.NoError(t, ln.Close())
	require.NoError(t, ln.Close())

	_, err = ln.Accept()
	assert.Error(t, err)
}
