// Package transport implements the socket-facing half of the RPC stack:
// Connection (one stream socket's read loop, write queue, and close
// coordination), Acceptor (bind/listen/accept), and the multi-backend
// Connector that turns a list of candidate URIs into a live connection.
//
// It replaces the teacher's ClientTransport — a single struct that owned
// both the multiplexed pending-response map and the socket read/write
// loops — by splitting those two concerns: Connection owns only the
// socket, and callreg.Registry owns request correlation. The teacher's
// recvLoop/sending-mutex/closeAllPending shapes carry over almost
// unchanged as readLoop/writeLoop/closeWith below; what changes is that
// Connection speaks in message.Message and codec.SerializedMessage
// instead of protocol.Header frames and message.RPCMessage.
package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/msgpack-rpc/msgpack-rpc-go/codec"
	"github.com/msgpack-rpc/msgpack-rpc-go/message"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

// DefaultReadBufferSize is used when a Connection is built without an
// explicit buffer size override, matching the spec's
// message_parser.read_buffer_size configuration key default.
const DefaultReadBufferSize = 64 * 1024

// sendQueueDepth bounds how many serialized messages may be enqueued on
// Send before it blocks the caller; it is the transport's native
// backpressure the spec's non-goals defer flow control to.
const sendQueueDepth = 256

// Connection wraps one bidirectional stream socket. Its state machine is
// Init -> Processing -> Closing -> Closed, one-way, matching the spec:
// Start performs the Init->Processing transition exactly once, and
// AsyncClose (or any read/write failure) drives the rest.
type Connection struct {
	conn        net.Conn
	readBufSize int

	state     atomic.Int32
	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	sendCh    chan codec.SerializedMessage

	onReceived func(message.Message)
	onSent     func()
	onClosed   func(error)
}

// NewConnection wraps conn. readBufSize governs how many bytes the read
// loop requests from the socket per call; pass 0 to use
// DefaultReadBufferSize.
func NewConnection(conn net.Conn, readBufSize int) *Connection {
	if readBufSize <= 0 {
		readBufSize = DefaultReadBufferSize
	}
	return &Connection{
		conn:        conn,
		readBufSize: readBufSize,
		done:        make(chan struct{}),
		sendCh:      make(chan codec.SerializedMessage, sendQueueDepth),
	}
}

// Start transitions Init -> Processing and launches the read and write
// loops. Calling Start more than once fails with PreconditionNotMet,
// matching the spec's "called at most once" precondition.
func (c *Connection) Start(onReceived func(message.Message), onSent func(), onClosed func(error)) error {
	if !c.state.CompareAndSwap(int32(stateInit), int32(stateProcessing)) {
		return status.New(status.PreconditionNotMet, "connection.Start called more than once")
	}
	c.onReceived = onReceived
	c.onSent = onSent
	c.onClosed = onClosed
	go c.readLoop()
	go c.writeLoop()
	return nil
}

// Send enqueues a fully-serialized message for the write loop. It
// returns as soon as the message is queued, blocking only while the
// queue already holds sendQueueDepth messages (or until the connection
// closes); FIFO order is guaranteed for sends enqueued from
// a single goroutine. Concurrent Sends from different goroutines are
// serialized by sendCh, a multi-producer single-consumer queue.
func (c *Connection) Send(msg codec.SerializedMessage) error {
	if lifecycleState(c.state.Load()) != stateProcessing {
		return status.New(status.ConnectionFailure, "connection is not accepting sends")
	}
	select {
	case c.sendCh <- msg:
		return nil
	case <-c.done:
		return status.New(status.ConnectionFailure, "connection closed while enqueuing send")
	}
}

// AsyncClose transitions towards Closing/Closed and invokes onClosed
// exactly once with a nil cause (clean shutdown). It is idempotent: a
// second call, or a close already in flight from a read/write error, is
// a no-op.
func (c *Connection) AsyncClose() {
	c.closeWith(nil)
}

// State reports the connection's current lifecycle state, for tests and
// diagnostics.
func (c *Connection) State() string {
	switch lifecycleState(c.state.Load()) {
	case stateInit:
		return "init"
	case stateProcessing:
		return "processing"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (c *Connection) readLoop() {
	parser := codec.NewParser()
	buf := make([]byte, c.readBufSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			parser.Feed(buf[:n])
			for {
				msg, perr := parser.TryNext()
				if perr != nil {
					if errors.Is(perr, codec.ErrNeedMore) {
						break
					}
					c.closeWith(perr)
					return
				}
				if c.onReceived != nil {
					c.onReceived(msg)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.closeWith(nil)
				return
			}
			select {
			case <-c.done:
				// Read unblocked by our own conn.Close during AsyncClose.
			default:
				c.closeWith(status.Wrap(status.ConnectionFailure, err))
			}
			return
		}
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case msg, ok := <-c.sendCh:
			if !ok {
				return
			}
			if err := c.writeAll(msg); err != nil {
				c.closeWith(status.Wrap(status.ConnectionFailure, err))
				return
			}
			if c.onSent != nil {
				c.onSent()
			}
		case <-c.done:
			return
		}
	}
}

// writeAll retries partial writes without re-queuing, matching the
// spec's write loop algorithm.
func (c *Connection) writeAll(b []byte) error {
	for len(b) > 0 {
		n, err := c.conn.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func (c *Connection) closeWith(cause error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(stateClosing))
		close(c.done)
		c.conn.Close()
		c.state.Store(int32(stateClosed))
		if c.onClosed != nil {
			c.onClosed(cause)
		}
	})
}
