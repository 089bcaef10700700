package callreg

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/msgpack-rpc/msgpack-rpc-go/message"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

func TestRegisterCompleteDeliversResult(t *testing.T) {
	r := New()
	id, w := Register[int](r)

	result, err := msgpack.Marshal(42)
	require.NoError(t, err)
	ok := r.Complete(message.Response{ID: id, Result: result})
	require.True(t, ok)

	v, err := w.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestCompleteWithServerErrorPopulatesObject(t *testing.T) {
	r := New()
	id, w := Register[string](r)

	errObj, err := msgpack.Marshal("boom")
	require.NoError(t, err)
	r.Complete(message.Response{ID: id, Error: errObj})

	_, err = w.Wait(context.Background())
	require.Error(t, err)
	require.Equal(t, status.ServerError, status.CodeOf(err))
}

func TestCompleteUnknownIDReportsFalse(t *testing.T) {
	r := New()
	ok := r.Complete(message.Response{ID: 999})
	require.False(t, ok)
}

func TestCancelFailsWaiterOnce(t *testing.T) {
	r := New()
	id, w := Register[int](r)

	require.True(t, r.Cancel(id))
	require.False(t, r.Cancel(id))

	_, err := w.Wait(context.Background())
	require.Equal(t, status.Timeout, status.CodeOf(err))

	result, _ := msgpack.Marshal(1)
	require.False(t, r.Complete(message.Response{ID: id, Result: result}))
}

func TestDrainAllFailsEveryOutstandingWaiter(t *testing.T) {
	r := New()
	_, w1 := Register[int](r)
	_, w2 := Register[int](r)
	require.Equal(t, 2, r.Outstanding())

	drainErr := status.New(status.ConnectionFailure, "connection closed")
	r.DrainAll(drainErr)
	require.Equal(t, 0, r.Outstanding())

	_, err1 := w1.Wait(context.Background())
	_, err2 := w2.Wait(context.Background())
	require.Equal(t, status.ConnectionFailure, status.CodeOf(err1))
	require.Equal(t, status.ConnectionFailure, status.CodeOf(err2))
}

func TestWaitRespectsContextDeadline(t *testing.T) {
	r := New()
	_, w := Register[int](r)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := w.Wait(ctx)
	require.Equal(t, status.Timeout, status.CodeOf(err))
}

func TestWaitOnDeadlineCancelsRegistryEntry(t *testing.T) {
	r := New()
	id, w := Register[int](r)
	require.Equal(t, 1, r.Outstanding())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := w.Wait(ctx)
	require.Equal(t, status.Timeout, status.CodeOf(err))
	require.Equal(t, 0, r.Outstanding())

	result, _ := msgpack.Marshal(1)
	require.False(t, r.Complete(message.Response{ID: id, Result: result}))
}

func TestAllocateIDNeverReusesOutstanding(t *testing.T) {
	r := New()
	seen := make(map[message.ID]bool)
	for i := 0; i < 5; i++ {
		id, _ := Register[int](r)
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestAllocateIDWrapsPastUint32Max(t *testing.T) {
	r := New()
	r.nextID = math.MaxUint32 // simulate being about to issue the maximum id
	maxID, _ := Register[int](r)
	require.Equal(t, message.ID(math.MaxUint32), maxID)
	id, _ := Register[int](r)
	require.Equal(t, message.ID(1), id)
}
