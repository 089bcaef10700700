package client

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/msgpack-rpc/msgpack-rpc-go/codec"
	"github.com/msgpack-rpc/msgpack-rpc-go/config"
	"github.com/msgpack-rpc/msgpack-rpc-go/message"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

// echoServer is a minimal hand-rolled peer for client tests: it decodes
// incoming requests and immediately echoes the first parameter back as
// the result, without pulling in the methods/server packages.
func echoServer(t *testing.T, ln net.Listener) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		parser := codec.NewParser()
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				parser.Feed(buf[:n])
				for {
					msg, perr := parser.TryNext()
					if perr != nil {
						break
					}
					if msg.Kind != message.TypeRequest {
						continue
					}
					var params []msgpack.RawMessage
					if err := msgpack.Unmarshal(msg.Request.Params, &params); err != nil || len(params) == 0 {
						continue
					}
					resp, _ := codec.Serialize(message.NewResponse(message.Response{
						ID:     msg.Request.ID,
						Result: params[0],
					}))
					conn.Write(resp)
				}
			}
			if err != nil {
				return
			}
		}
	}()
}

func newTestClient(t *testing.T, ln net.Listener) *Client {
	t.Helper()
	tcpAddr := ln.Addr().(*net.TCPAddr)
	cfg := config.DefaultClientConfig().WithURIs("tcp://127.0.0.1:" + strconv.Itoa(tcpAddr.Port))
	c, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func waitForConnection(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.currentConnection() != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for client to connect")
}

func TestCallRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	echoServer(t, ln)

	c := newTestClient(t, ln)
	waitForConnection(t, c)

	result, err := Call[int](c, context.Background(), "echo", 42)
	require.NoError(t, err)
	require.Equal(t, 42, result)
}

func TestCallWithoutConnectionFailsFast(t *testing.T) {
	cfg := config.DefaultClientConfig().WithURIs("tcp://127.0.0.1:1")
	c, err := New(cfg, nil)
	require.NoError(t, err)
	defer c.Stop()

	_, err = Call[int](c, context.Background(), "echo", 1)
	require.Equal(t, status.ConnectionFailure, status.CodeOf(err))
}

func TestNotifyWithoutConnectionFails(t *testing.T) {
	cfg := config.DefaultClientConfig().WithURIs("tcp://127.0.0.1:1")
	c, err := New(cfg, nil)
	require.NoError(t, err)
	defer c.Stop()

	err = c.Notify("log", "hi")
	require.Equal(t, status.ConnectionFailure, status.CodeOf(err))
}

func TestParseFailureDrainsOutstandingCallsWithConnectionFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr == nil {
			accepted <- conn
		}
	}()

	c := newTestClient(t, ln)
	waitForConnection(t, c)

	serverConn := <-accepted
	defer serverConn.Close()

	waiter, err := AsyncCall[int](c, "slow")
	require.NoError(t, err)

	// [9] — tag 9 is not 0/1/2, an unrecoverable parse error on the
	// client's read loop.
	_, err = serverConn.Write([]byte{0x91, 0x09})
	require.NoError(t, err)

	_, waitErr := waiter.Wait(context.Background())
	require.Equal(t, status.ConnectionFailure, status.CodeOf(waitErr))
}

func TestStopIsIdempotent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	echoServer(t, ln)

	c := newTestClient(t, ln)
	waitForConnection(t, c)
	c.Stop()
	c.Stop()
}
