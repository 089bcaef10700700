package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/msgpack-rpc/msgpack-rpc-go/methods"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

// RateLimit throttles dispatch to r calls per second with bursts up to
// burst, using a shared token bucket across every call through this
// middleware instance — it must be built once at registration time, not
// per-call, or every call would see a fresh full bucket. This is an
// opt-in layer: the spec's non-goals exclude flow control beyond the
// transport's native backpressure, so nothing wires this in by default,
// but a server builder may still reach for it to protect one
// particularly expensive method.
func RateLimit(r float64, burst int) methods.Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(method string, next methods.Handler) methods.Handler {
		return func(ctx context.Context, params msgpack.RawMessage) (any, error) {
			if !limiter.Allow() {
				return nil, status.Newf(status.Aborted, "method %q rejected by rate limiter", method)
			}
			return next(ctx, params)
		}
	}
}
