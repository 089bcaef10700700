package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/msgpack-rpc/msgpack-rpc-go/address"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

func TestConnectorSucceedsOnFirstReachableURI(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	good := address.NewTCP("127.0.0.1", uint16(tcpAddr.Port))
	unreachable := address.NewTCP("127.0.0.1", 1)

	c := NewConnector()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := c.Connect(ctx, []address.URI{unreachable, good})
	require.NoError(t, err)
	defer conn.Close()
}

func TestConnectorFailsAfterAllURIsExhausted(t *testing.T) {
	c := NewConnector()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Connect(ctx, []address.URI{address.NewTCP("127.0.0.1", 1), address.NewTCP("127.0.0.1", 2)})
	require.Error(t, err)
	require.Equal(t, status.ConnectionFailure, status.CodeOf(err))
}

func TestConnectorRejectsEmptyURIList(t *testing.T) {
	c := NewConnector()
	_, err := c.Connect(context.Background(), nil)
	require.Error(t, err)
	require.Equal(t, status.InvalidArgument, status.CodeOf(err))
}
