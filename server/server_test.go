package server

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/msgpack-rpc/msgpack-rpc-go/client"
	"github.com/msgpack-rpc/msgpack-rpc-go/config"
	"github.com/msgpack-rpc/msgpack-rpc-go/methods"
)

func startEchoServer(t *testing.T) *Server {
	t.Helper()
	proc := methods.NewProcessor(nil, nil)
	require.NoError(t, proc.Register("add", func(a, b int) (int, error) {
		return a + b, nil
	}))

	cfg := config.DefaultServerConfig().WithURIs("tcp://127.0.0.1:0")
	s := New(cfg, proc, nil)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s
}

func dialURI(t *testing.T, s *Server) string {
	t.Helper()
	addrs := s.Addrs()
	require.NotEmpty(t, addrs)
	tcpAddr := addrs[0].(*net.TCPAddr)
	return "tcp://127.0.0.1:" + strconv.Itoa(tcpAddr.Port)
}

func TestServerDispatchesRegisteredMethod(t *testing.T) {
	s := startEchoServer(t)

	c, err := client.New(config.DefaultClientConfig().WithURIs(dialURI(t, s)), nil)
	require.NoError(t, err)
	defer c.Stop()

	deadline := time.Now().Add(2 * time.Second)
	var result int
	for time.Now().Before(deadline) {
		result, err = client.Call[int](c, context.Background(), "add", 2, 3)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	require.Equal(t, 5, result)
}

func TestServerStartTwiceFailsPrecondition(t *testing.T) {
	s := startEchoServer(t)
	require.Error(t, s.Start())
}

func TestServerStopIsIdempotent(t *testing.T) {
	s := startEchoServer(t)
	s.Stop()
	s.Stop()
}

func TestServerRejectsUnregisteredMethod(t *testing.T) {
	s := startEchoServer(t)

	c, err := client.New(config.DefaultClientConfig().WithURIs(dialURI(t, s)), nil)
	require.NoError(t, err)
	defer c.Stop()

	deadline := time.Now().Add(2 * time.Second)
	var callErr error
	for time.Now().Before(deadline) {
		_, callErr = client.Call[int](c, context.Background(), "missing")
		if callErr != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Error(t, callErr)
}
