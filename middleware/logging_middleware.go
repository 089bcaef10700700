// Package middleware provides dispatch-time interceptors for
// methods.Processor: cross-cutting concerns (structured logging,
// per-call timeout, rate limiting) layered around a registered handler
// without touching the handler itself.
//
// It generalizes the teacher's middleware package — the same onion
// model (each layer runs pre-processing, calls next, then
// post-processing, or short-circuits without calling next) — from
// *message.RPCMessage request/reply pairs to methods.Handler's
// params-in/result-out shape.
package middleware

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/msgpack-rpc/msgpack-rpc-go/methods"
	"github.com/msgpack-rpc/msgpack-rpc-go/rpclog"
)

// Logging records the method name, duration, and any error for every
// dispatched call through logger, matching the teacher's
// LoggingMiddleware but through structured fields instead of a package
// log.Printf call.
func Logging(logger *rpclog.Logger) methods.Middleware {
	return func(method string, next methods.Handler) methods.Handler {
		return func(ctx context.Context, params msgpack.RawMessage) (any, error) {
			start := time.Now()
			result, err := next(ctx, params)
			fields := []any{"method", method, "duration", time.Since(start)}
			if err != nil {
				fields = append(fields, "error", err)
				logger.Warn("dispatch failed", fields...)
			} else {
				logger.Debug("dispatch completed", fields...)
			}
			return result, err
		}
	}
}
