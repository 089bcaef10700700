// Package executor implements the two logical thread pools every
// client and server runs on top of: a transport pool for socket I/O,
// timers, and the parser, and a callback pool for user handlers,
// waiter notifications, and dispatched methods — kept separate so a
// slow handler cannot starve I/O.
//
// Each pool is a fixed set of goroutines draining a shared FIFO task
// queue, launched and awaited through golang.org/x/sync/errgroup's
// "launch N, wait for all" shape rather than a raw sync.WaitGroup.
// Workers never return an error: a panicking task is recovered and
// reported through the Executor's exception sink instead.
package executor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/msgpack-rpc/msgpack-rpc-go/config"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

// Pool identifies which of the two thread pools a task should run on.
type Pool int

const (
	PoolTransport Pool = iota
	PoolCallback
)

const taskQueueDepth = 1024

// Executor owns the transport and callback pools, and the process-wide
// exception sink: the first panic recovered from any task on either
// pool is captured here, and every recovered panic is forwarded to
// onException, so a lifetime owner (Server.RunUntilSignal) can halt.
type Executor struct {
	transport *workerPool
	callback  *workerPool

	mu          sync.Mutex
	lastErr     error
	onException func(error)
}

// New builds an Executor sized by cfg. A non-positive thread count in
// cfg is raised to 1, since both pools must have at least one worker.
func New(cfg config.ExecutorConfig, onException func(error)) *Executor {
	transportThreads := cfg.NumTransportThreads
	if transportThreads < 1 {
		transportThreads = 1
	}
	callbackThreads := cfg.NumCallbackThreads
	if callbackThreads < 1 {
		callbackThreads = 1
	}

	e := &Executor{onException: onException}
	e.transport = newWorkerPool(transportThreads, e.recordException)
	e.callback = newWorkerPool(callbackThreads, e.recordException)
	return e
}

// Start launches every worker goroutine on both pools.
func (e *Executor) Start() {
	e.transport.start()
	e.callback.start()
}

// Post schedules task on the named pool. Tasks are FIFO-ordered within
// a pool; across pools only partial order holds.
func (e *Executor) Post(pool Pool, task func()) error {
	switch pool {
	case PoolTransport:
		return e.transport.post(task)
	case PoolCallback:
		return e.callback.post(task)
	default:
		return status.Newf(status.InvalidArgument, "unknown executor pool %d", pool)
	}
}

// Stop drains and waits for in-flight tasks on both pools to finish.
// Never call Stop from inside a task running on either pool — that
// deadlocks waiting for its own goroutine. Use Interrupt from inside a
// task instead.
func (e *Executor) Stop() {
	e.transport.stop()
	e.callback.stop()
}

// Interrupt stops both pools from accepting further tasks without
// waiting for in-flight ones to finish, so it is safe to call from
// within a task.
func (e *Executor) Interrupt() {
	e.transport.interrupt()
	e.callback.interrupt()
}

// LastException returns the first panic recovered from any task on
// either pool, or nil if none occurred.
func (e *Executor) LastException() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Executor) recordException(err error) {
	e.mu.Lock()
	if e.lastErr == nil {
		e.lastErr = err
	}
	e.mu.Unlock()
	if e.onException != nil {
		e.onException(err)
	}
}

// workerPool is a fixed set of goroutines draining a shared task
// channel, matching the spec's "FIFO queue per pool" scheduling model.
type workerPool struct {
	tasks   chan func()
	group   *errgroup.Group
	workers int
	stopped atomic.Bool
	onPanic func(error)
}

func newWorkerPool(workers int, onPanic func(error)) *workerPool {
	return &workerPool{tasks: make(chan func(), taskQueueDepth), workers: workers, onPanic: onPanic}
}

func (p *workerPool) start() {
	p.group = new(errgroup.Group)
	for i := 0; i < p.workers; i++ {
		p.group.Go(p.run)
	}
}

func (p *workerPool) run() error {
	for task := range p.tasks {
		p.runTask(task)
	}
	return nil
}

func (p *workerPool) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(fmt.Errorf("executor: task panicked: %v", r))
		}
	}()
	task()
}

// post schedules task. It is a precondition violation to post after
// Stop or Interrupt, since the task channel may already be closed.
func (p *workerPool) post(task func()) error {
	if p.stopped.Load() {
		return status.New(status.PreconditionNotMet, "executor pool is no longer accepting tasks")
	}
	p.tasks <- task
	return nil
}

// stop closes the task channel — no more sends are accepted — and
// blocks until every worker has drained it and returned.
func (p *workerPool) stop() {
	if p.stopped.CompareAndSwap(false, true) {
		close(p.tasks)
	}
	if p.group != nil {
		_ = p.group.Wait()
	}
}

// interrupt stops accepting tasks without waiting for workers to drain
// the queue, so it is safe to call from within a running task. It still
// closes the channel — a non-blocking operation — so a subsequent stop
// from outside the task can proceed to wait on the same group.
func (p *workerPool) interrupt() {
	if p.stopped.CompareAndSwap(false, true) {
		close(p.tasks)
	}
}
