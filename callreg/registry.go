// Package callreg implements the call registry: correlating outgoing
// request message.ID values with the goroutine waiting on their
// eventual message.Response.
//
// It generalizes the teacher's ClientTransport pending sync.Map
// (seq -> chan *message.RPCMessage, drained wholesale by
// closeAllPending on a broken connection) into a typed, generic
// Waiter[R] with single-shot completion, explicit cancellation, and a
// wraparound-safe ID allocator, since a MessagePack-RPC message.ID is
// only 32 bits and a long-lived connection can exhaust it.
package callreg

import (
	"context"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/msgpack-rpc/msgpack-rpc-go/message"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

// waiter is the type-erased half of Waiter[R] the Registry can hold in
// one map regardless of each call's result type.
type waiter interface {
	complete(resp message.Response)
	fail(err error)
}

// Waiter[R] is the handle an in-flight call waits on. Exactly one of
// complete or fail ever runs, guarded by once, so a waiter that is both
// completed by an arriving Response and canceled by a disconnect never
// observes both outcomes.
type Waiter[R any] struct {
	id       message.ID
	registry *Registry
	done     chan struct{}
	once     sync.Once
	result   R
	err      error
}

func newWaiter[R any](id message.ID, r *Registry) *Waiter[R] {
	return &Waiter[R]{id: id, registry: r, done: make(chan struct{})}
}

func (w *Waiter[R]) complete(resp message.Response) {
	w.once.Do(func() {
		defer close(w.done)
		if !message.IsNilRaw(resp.Error) {
			var errVal any
			if err := msgpack.Unmarshal(resp.Error, &errVal); err != nil {
				w.err = status.Wrap(status.TypeError, err)
				return
			}
			w.err = status.New(status.ServerError, fmt.Sprint(errVal)).WithObject(errVal)
			return
		}
		if message.IsNilRaw(resp.Result) {
			return
		}
		if err := msgpack.Unmarshal(resp.Result, &w.result); err != nil {
			w.err = status.Wrap(status.TypeError, err)
		}
	})
}

func (w *Waiter[R]) fail(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.done)
	})
}

// Wait blocks until the call completes, the context is canceled, or the
// context's deadline passes, whichever happens first. On expiry it
// cancels its own registry entry (per spec, "on expiry, fails with
// TIMEOUT and cancels the registry entry") so a response that never
// arrives does not hold its id outstanding forever; a response that
// races in concurrently with the expiry still wins, since Cancel is a
// no-op once complete has already fired.
func (w *Waiter[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-w.done:
		return w.result, w.err
	case <-ctx.Done():
		w.registry.Cancel(w.id)
		<-w.done
		return w.result, w.err
	}
}

// Done reports whether the call has already completed, without
// blocking; useful for a non-blocking poll before committing to a Wait.
func (w *Waiter[R]) Done() <-chan struct{} {
	return w.done
}

// Registry correlates outstanding request IDs to their Waiter. It is
// safe for concurrent use by multiple callers and by the single
// connection read loop that delivers responses.
type Registry struct {
	mu          sync.Mutex
	nextID      uint32
	outstanding map[message.ID]waiter
}

// New creates an empty Registry. IDs are allocated starting at 1; 0 is
// never assigned so it can serve callers as a recognizable "no id"
// sentinel for notifications.
func New() *Registry {
	return &Registry{nextID: 1, outstanding: make(map[message.ID]waiter)}
}

// Register allocates a fresh message.ID and a Waiter[R] for it in one
// locked step, so a concurrent Register can never observe or reuse the
// same ID before this one is recorded.
func Register[R any](r *Registry) (message.ID, *Waiter[R]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.allocateLocked()
	w := newWaiter[R](id, r)
	r.outstanding[id] = w
	return id, w
}

// allocateLocked returns the next message.ID not currently outstanding,
// wrapping uint32 back to 1 (never 0) and skipping any id still in
// flight from a prior wrap.
func (r *Registry) allocateLocked() message.ID {
	for {
		id := message.ID(r.nextID)
		r.nextID++
		if r.nextID == 0 {
			r.nextID = 1
		}
		if _, exists := r.outstanding[id]; !exists {
			return id
		}
	}
}

// Complete delivers resp to the waiter registered under resp.ID, if
// any is still outstanding. It reports false if no call is waiting on
// that id — a stray or duplicate response, which the caller should log
// and otherwise ignore rather than treat as fatal.
func (r *Registry) Complete(resp message.Response) bool {
	r.mu.Lock()
	w, ok := r.outstanding[resp.ID]
	if ok {
		delete(r.outstanding, resp.ID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	w.complete(resp)
	return true
}

// Cancel removes id from the registry and fails its waiter with a
// Timeout status, if it is still outstanding. It is the registry-side
// half of a caller giving up on a call before any response arrives.
func (r *Registry) Cancel(id message.ID) bool {
	r.mu.Lock()
	w, ok := r.outstanding[id]
	if ok {
		delete(r.outstanding, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	w.fail(status.New(status.Timeout, "call canceled before a response arrived"))
	return true
}

// DrainAll empties the registry and fails every outstanding waiter with
// err. This is the registry-side counterpart of the teacher's
// closeAllPending: called once when a connection is declared broken, so
// that no caller blocks forever on a response that will never arrive.
func (r *Registry) DrainAll(err error) {
	r.mu.Lock()
	waiters := r.outstanding
	r.outstanding = make(map[message.ID]waiter)
	r.mu.Unlock()
	for _, w := range waiters {
		w.fail(err)
	}
}

// Outstanding reports how many calls are currently awaiting a response.
func (r *Registry) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outstanding)
}
