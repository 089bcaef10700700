// Package client implements the client half of the RPC stack: a
// reconnecting connection to one of a list of candidate servers, a
// call registry correlating responses to waiters, and the call/notify
// entry points callers use.
//
// It replaces the teacher's registry-discovery-plus-load-balancer
// Client (etcd lookup -> balancer pick -> shared transport pool) with
// the spec's simpler "one logical current connection, multi-URI
// connect, exponential backoff with jitter on failure" model — the
// shape of NewClient/Call/Stop carries over, but getTransport's
// round-robin pool selection is gone: there is exactly one live
// connection at a time, reattached by the reconnect loop below.
package client

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/msgpack-rpc/msgpack-rpc-go/address"
	"github.com/msgpack-rpc/msgpack-rpc-go/callreg"
	"github.com/msgpack-rpc/msgpack-rpc-go/config"
	"github.com/msgpack-rpc/msgpack-rpc-go/executor"
	"github.com/msgpack-rpc/msgpack-rpc-go/message"
	"github.com/msgpack-rpc/msgpack-rpc-go/rpclog"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
	"github.com/msgpack-rpc/msgpack-rpc-go/transport"
)

// connectAttemptTimeout bounds a single pass over the candidate URI
// list before the reconnect loop falls back to its backoff delay.
const connectAttemptTimeout = 10 * time.Second

// Client maintains one live connection to a server chosen from a list
// of candidate URIs, reconnecting with exponential backoff and jitter
// whenever that connection is lost.
type Client struct {
	cfg       config.ClientConfig
	uris      []address.URI
	connector *transport.Connector
	registry  *callreg.Registry
	exec      *executor.Executor
	logger    *rpclog.Logger

	mu   sync.RWMutex
	conn *transport.Connection

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Client from cfg and starts its reconnect loop
// immediately; callers observe no live connection until the first
// connect attempt succeeds.
func New(cfg config.ClientConfig, logger *rpclog.Logger) (*Client, error) {
	uris, err := cfg.ParsedURIs()
	if err != nil {
		return nil, err
	}
	if len(uris) == 0 {
		return nil, status.New(status.InvalidArgument, "client config has no candidate URIs")
	}
	if logger == nil {
		logger = rpclog.Noop()
	}

	c := &Client{
		cfg:       cfg,
		uris:      uris,
		connector: transport.NewConnector(),
		registry:  callreg.New(),
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
	c.exec = executor.New(cfg.Executor, func(err error) {
		logger.Error("client executor exception", "error", err)
	})
	c.exec.Start()

	c.wg.Add(1)
	go c.reconnectLoop()
	return c, nil
}

// Stop performs an orderly shutdown: the reconnect loop exits, the
// current connection (if any) closes, every outstanding call is
// drained with ABORTED, and the executor is stopped. Stop is
// idempotent.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		// Drain before closing the connection: its onClosed callback
		// would otherwise fail the outstanding calls with
		// CONNECTION_FAILURE first.
		c.registry.DrainAll(status.New(status.Aborted, "client stopped"))
		if conn := c.currentConnection(); conn != nil {
			conn.AsyncClose()
		}
		c.wg.Wait()
		c.exec.Stop()
	})
}

// Notify serializes and enqueues a one-way call: no id is allocated and
// no registry entry is created. It always returns once the message is
// enqueued on the current connection, or a CONNECTION_FAILURE
// immediately if there is none — never a server-side failure, since
// notifications have no response to observe one through.
func (c *Client) Notify(method string, params ...any) error {
	conn := c.currentConnection()
	if conn == nil {
		c.logger.Trace("notify dropped, no live connection", "method", method)
		return status.New(status.ConnectionFailure, "no live connection")
	}

	encodedParams, err := encodeParams(params...)
	if err != nil {
		return err
	}
	serialized, err := serializeMessage(message.NewNotification(message.Notification{Method: method, Params: encodedParams}))
	if err != nil {
		return err
	}
	return conn.Send(serialized)
}

func (c *Client) currentConnection() *transport.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setConnection(conn *transport.Connection) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) handleReceived(msg message.Message) {
	if msg.Kind != message.TypeResponse {
		c.logger.Warn("client connection received a non-response message", "kind", msg.Kind)
		return
	}
	if !c.registry.Complete(*msg.Response) {
		c.logger.Trace("response for unknown or already-timed-out call", "id", msg.Response.ID)
	}
}

func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.Reconnection.InitialWaitingTime()
	bo.MaxInterval = c.cfg.Reconnection.MaxWaitingTime()
	bo.Multiplier = 2
	// RandomizationFactor 0 disables backoff/v4's own multiplicative
	// jitter; the spec wants fixed-range additive jitter instead, added
	// by hand below after NextBackOff computes the exponential delay.
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), connectAttemptTimeout)
		conn, err := c.connector.Connect(ctx, c.uris)
		cancel()
		if err != nil {
			c.logger.Warn("reconnect attempt failed", "error", err)
			delay := bo.NextBackOff() + additiveJitter(c.cfg.Reconnection.MaxJitterWaitingTime())
			select {
			case <-time.After(delay):
				continue
			case <-c.stopCh:
				return
			}
		}

		bo.Reset()
		connection := transport.NewConnection(conn, c.cfg.MessageParser.ReadBufferSize)
		closed := make(chan struct{})
		c.setConnection(connection)

		if startErr := connection.Start(c.handleReceived, nil, func(cause error) {
			c.setConnection(nil)
			// Always drain with CONNECTION_FAILURE here, never the
			// teardown cause's own code (e.g. PARSE_ERROR): status.Wrap
			// passes an existing *status.Error through unchanged, which
			// would leak the connection's internal failure kind to
			// every outstanding waiter instead of the spec's required
			// CONNECTION_FAILURE.
			c.registry.DrainAll(status.Newf(status.ConnectionFailure, "connection closed: %v", closeCause(cause)))
			close(closed)
		}); startErr != nil {
			c.logger.Error("failed to start accepted connection", "error", startErr)
			close(closed)
		}

		select {
		case <-closed:
			// loop back around and reattempt connecting.
		case <-c.stopCh:
			connection.AsyncClose()
			<-closed
			return
		}
	}
}

func closeCause(cause error) error {
	if cause != nil {
		return cause
	}
	return errors.New("connection closed")
}

// additiveJitter returns a uniformly distributed duration in [0, max].
func additiveJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}
