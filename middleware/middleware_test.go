package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/msgpack-rpc/msgpack-rpc-go/methods"
	"github.com/msgpack-rpc/msgpack-rpc-go/rpclog"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

func TestLoggingPassesThroughResultAndError(t *testing.T) {
	mw := Logging(rpclog.Noop())
	next := func(ctx context.Context, params msgpack.RawMessage) (any, error) {
		return 7, nil
	}
	result, err := mw("add", next)(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 7, result)
}

func TestTimeoutAllowsFastHandler(t *testing.T) {
	mw := Timeout(50 * time.Millisecond)
	next := func(ctx context.Context, params msgpack.RawMessage) (any, error) {
		return "ok", nil
	}
	result, err := mw("fast", next)(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "ok", result)
}

func TestTimeoutFiresOnSlowHandler(t *testing.T) {
	mw := Timeout(10 * time.Millisecond)
	next := func(ctx context.Context, params msgpack.RawMessage) (any, error) {
		time.Sleep(100 * time.Millisecond)
		return "too late", nil
	}
	_, err := mw("slow", next)(context.Background(), nil)
	require.Equal(t, status.Timeout, status.CodeOf(err))
}

func TestRateLimitRejectsBeyondBurst(t *testing.T) {
	mw := RateLimit(1, 1)
	next := func(ctx context.Context, params msgpack.RawMessage) (any, error) {
		return nil, nil
	}
	handler := mw("limited", next)

	_, err := handler(context.Background(), nil)
	require.NoError(t, err)

	_, err = handler(context.Background(), nil)
	require.Equal(t, status.Aborted, status.CodeOf(err))
}

var _ methods.Middleware = Logging(rpclog.Noop())
