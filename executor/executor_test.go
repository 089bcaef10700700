package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/msgpack-rpc/msgpack-rpc-go/config"
)

func TestPostRunsTaskOnBothPools(t *testing.T) {
	e := New(config.ExecutorConfig{NumTransportThreads: 2, NumCallbackThreads: 2}, nil)
	e.Start()
	defer e.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	var transportRan, callbackRan atomic.Bool
	require.NoError(t, e.Post(PoolTransport, func() { transportRan.Store(true); wg.Done() }))
	require.NoError(t, e.Post(PoolCallback, func() { callbackRan.Store(true); wg.Done() }))

	waitWithTimeout(t, &wg, time.Second)
	require.True(t, transportRan.Load())
	require.True(t, callbackRan.Load())
}

func TestStopDrainsInFlightTasks(t *testing.T) {
	e := New(config.ExecutorConfig{NumTransportThreads: 1, NumCallbackThreads: 1}, nil)
	e.Start()

	var ran atomic.Bool
	require.NoError(t, e.Post(PoolTransport, func() { ran.Store(true) }))
	e.Stop()
	require.True(t, ran.Load())
}

func TestPostAfterStopFails(t *testing.T) {
	e := New(config.ExecutorConfig{NumTransportThreads: 1, NumCallbackThreads: 1}, nil)
	e.Start()
	e.Stop()

	err := e.Post(PoolTransport, func() {})
	require.Error(t, err)
}

func TestPanicInTaskIsCapturedAsLastException(t *testing.T) {
	var exceptionCh = make(chan error, 1)
	e := New(config.ExecutorConfig{NumTransportThreads: 1, NumCallbackThreads: 1}, func(err error) {
		exceptionCh <- err
	})
	e.Start()
	defer e.Stop()

	require.NoError(t, e.Post(PoolTransport, func() { panic("boom") }))

	select {
	case err := <-exceptionCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for captured exception")
	}
	require.Error(t, e.LastException())
}

func waitWithTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for tasks")
	}
}
