package middleware

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/msgpack-rpc/msgpack-rpc-go/methods"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

// Timeout bounds how long next may run before the caller gives up
// waiting for it. Matching the teacher's TimeOutMiddleware, the handler
// goroutine is not forcibly canceled when the deadline passes — it
// keeps running in the background and its eventual result is
// discarded — but next is called with a context carrying the deadline
// so a cooperative handler can check ctx.Done() itself.
func Timeout(d time.Duration) methods.Middleware {
	return func(method string, next methods.Handler) methods.Handler {
		return func(ctx context.Context, params msgpack.RawMessage) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type outcome struct {
				result any
				err    error
			}
			done := make(chan outcome, 1)
			go func() {
				result, err := next(ctx, params)
				done <- outcome{result, err}
			}()

			select {
			case o := <-done:
				return o.result, o.err
			case <-ctx.Done():
				return nil, status.Newf(status.Timeout, "method %q did not complete within %s", method, d)
			}
		}
	}
}
