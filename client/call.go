package client

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/msgpack-rpc/msgpack-rpc-go/callreg"
	"github.com/msgpack-rpc/msgpack-rpc-go/codec"
	"github.com/msgpack-rpc/msgpack-rpc-go/message"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

// Go has no generic methods, so the typed call/async_call entry points
// the spec describes as Client members are free functions taking *Client
// as their first argument — the thin typed serialization/projection
// layer the spec's design notes call for, sitting over the untyped
// Client.Notify-style core of enqueue-and-correlate.

// AsyncCall serializes params, allocates a request id, registers a
// waiter for it with the call registry, and enqueues the request on c's
// current connection. If c has no live connection the call fails
// immediately with CONNECTION_FAILURE.
func AsyncCall[R any](c *Client, method string, params ...any) (*callreg.Waiter[R], error) {
	conn := c.currentConnection()
	if conn == nil {
		return nil, status.New(status.ConnectionFailure, "no live connection")
	}

	encodedParams, err := encodeParams(params...)
	if err != nil {
		return nil, err
	}

	id, waiter := callreg.Register[R](c.registry)
	serialized, err := serializeMessage(message.NewRequest(message.Request{ID: id, Method: method, Params: encodedParams}))
	if err != nil {
		c.registry.Cancel(id)
		return nil, err
	}

	if err := conn.Send(serialized); err != nil {
		c.registry.Cancel(id)
		return nil, err
	}
	return waiter, nil
}

// Call is the synchronous counterpart of AsyncCall: it is equivalent to
// AsyncCall(...).Wait(ctx), using the client's configured call timeout
// as ctx's deadline if ctx carries none of its own.
func Call[R any](c *Client, ctx context.Context, method string, params ...any) (R, error) {
	var zero R
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout())
		defer cancel()
	}

	waiter, err := AsyncCall[R](c, method, params...)
	if err != nil {
		return zero, err
	}
	return waiter.Wait(ctx)
}

func encodeParams(params ...any) (msgpack.RawMessage, error) {
	raw, err := codec.EncodeParams(params...)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func serializeMessage(msg message.Message) (codec.SerializedMessage, error) {
	return codec.Serialize(msg)
}
