// Package methods implements the server-side method registry and
// dispatcher: projecting a request or notification's opaque params into
// a registered handler's declared argument types, invoking it, and
// producing a reply message.Response or a METHOD_NOT_FOUND/INVALID_ARGUMENT
// fault.
//
// It generalizes the teacher's server/service.go, which reflected over
// a registered struct's exported methods matching
// `func(*Args, *Reply) error` (the net/rpc calling convention: one
// struct of arguments, one struct of results). MessagePack-RPC calls
// pass a tuple of positional arguments instead of one argument struct,
// so Register here reflects over a plain function
// `func([ctx,] arg1, arg2, ...) (result, error)` and projects each
// element of the incoming params array into the corresponding
// declared parameter type.
package methods

import (
	"context"
	"reflect"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/msgpack-rpc/msgpack-rpc-go/message"
	"github.com/msgpack-rpc/msgpack-rpc-go/rpclog"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

// Handler is the type-erased form every registered method and every
// middleware layer operates on: given the method's raw params array,
// produce a result to serialize or an error to report.
type Handler func(ctx context.Context, params msgpack.RawMessage) (any, error)

// Middleware wraps a Handler with cross-cutting behavior. method is the
// name the handler was registered under, supplied so a middleware like
// logging can attribute its output without a closure per registration.
type Middleware func(method string, next Handler) Handler

// Chain composes middlewares in onion order: the first middleware in
// the list is outermost, observing the request first and the response
// last.
func Chain(mws ...Middleware) Middleware {
	return func(method string, next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](method, next)
		}
		return next
	}
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// methodType holds the reflection metadata for one registered function,
// built once at Register time so invoke avoids re-deriving it per call.
type methodType struct {
	fn         reflect.Value
	argTypes   []reflect.Type
	hasContext bool
}

func newMethodType(fn any) (*methodType, error) {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, status.Newf(status.InvalidArgument, "handler must be a function, got %s", t.Kind())
	}
	if t.NumOut() != 2 || !t.Out(1).Implements(errorType) {
		return nil, status.New(status.InvalidArgument, "handler must return (result, error)")
	}

	numIn := t.NumIn()
	argStart := 0
	hasContext := numIn > 0 && t.In(0).Implements(contextType)
	if hasContext {
		argStart = 1
	}
	argTypes := make([]reflect.Type, 0, numIn-argStart)
	for i := argStart; i < numIn; i++ {
		argTypes = append(argTypes, t.In(i))
	}
	return &methodType{fn: v, argTypes: argTypes, hasContext: hasContext}, nil
}

// invoke projects params — a MessagePack-encoded array — element-wise
// into the handler's declared argument types, then calls it.
func (mt *methodType) invoke(ctx context.Context, params msgpack.RawMessage) (any, error) {
	var elems []msgpack.RawMessage
	if !message.IsNilRaw(params) {
		if err := msgpack.Unmarshal(params, &elems); err != nil {
			return nil, status.Wrap(status.InvalidArgument, err)
		}
	}
	if len(elems) != len(mt.argTypes) {
		return nil, status.Newf(status.InvalidArgument, "expected %d parameters, got %d", len(mt.argTypes), len(elems))
	}

	in := make([]reflect.Value, 0, len(mt.argTypes)+1)
	if mt.hasContext {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, argType := range mt.argTypes {
		argPtr := reflect.New(argType)
		if err := msgpack.Unmarshal(elems[i], argPtr.Interface()); err != nil {
			return nil, status.Wrapf(status.InvalidArgument, err, "parameter %d", i)
		}
		in = append(in, argPtr.Elem())
	}

	results := mt.fn.Call(in)
	if errVal := results[1]; !errVal.IsNil() {
		return nil, errVal.Interface().(error)
	}
	return results[0].Interface(), nil
}

// Processor holds the server-side method registry and dispatches
// incoming requests and notifications to it. Registration is
// builder-time, before the server starts; Dispatch is safe for
// concurrent use by every connection's read loop.
type Processor struct {
	mu         sync.RWMutex
	handlers   map[string]Handler
	middleware Middleware
	logger     *rpclog.Logger
}

// NewProcessor creates an empty Processor. mw, if non-nil, wraps every
// handler registered afterwards; logger receives warnings for dropped
// notifications and responses this processor was never meant to see.
func NewProcessor(logger *rpclog.Logger, mw Middleware) *Processor {
	if logger == nil {
		logger = rpclog.Noop()
	}
	return &Processor{handlers: make(map[string]Handler), middleware: mw, logger: logger}
}

// Register binds name to fn, a function of the form
// `func([ctx context.Context,] arg1 T1, arg2 T2, ...) (R, error)`.
// Insertion after the server has started is not required by the spec
// but is not prevented here either — Dispatch reads handlers under a
// read lock.
func (p *Processor) Register(name string, fn any) error {
	mt, err := newMethodType(fn)
	if err != nil {
		return err
	}
	handler := Handler(mt.invoke)
	if p.middleware != nil {
		handler = p.middleware(name, handler)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[name] = handler
	return nil
}

// Dispatch routes msg — a Request or Notification — to its registered
// handler. For a Request, reply is always invoked exactly once, with
// either a successful Result or a populated Error slot. For a
// Notification, reply is never invoked; failures are logged instead.
func (p *Processor) Dispatch(ctx context.Context, msg message.Message, reply func(message.Response)) {
	switch msg.Kind {
	case message.TypeRequest:
		p.dispatchRequest(ctx, msg.Request, reply)
	case message.TypeNotification:
		p.dispatchNotification(ctx, msg.Notification)
	default:
		p.logger.Warn("processor received a non-dispatchable message", "kind", msg.Kind)
	}
}

func (p *Processor) dispatchRequest(ctx context.Context, req *message.Request, reply func(message.Response)) {
	handler, ok := p.lookup(req.Method)
	if !ok {
		reply(errorResponse(req.ID, status.Newf(status.MethodNotFound, "method %q is not registered", req.Method)))
		return
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		reply(errorResponse(req.ID, err))
		return
	}

	encoded, err := msgpack.Marshal(result)
	if err != nil {
		reply(errorResponse(req.ID, status.Wrap(status.TypeError, err)))
		return
	}
	reply(message.Response{ID: req.ID, Result: encoded})
}

func (p *Processor) dispatchNotification(ctx context.Context, note *message.Notification) {
	handler, ok := p.lookup(note.Method)
	if !ok {
		p.logger.Warn("notification for unregistered method", "method", note.Method)
		return
	}
	if _, err := handler(ctx, note.Params); err != nil {
		p.logger.Warn("notification handler failed", "method", note.Method, "error", err)
	}
}

func (p *Processor) lookup(name string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[name]
	return h, ok
}

// errorResponse builds a Response whose error slot carries the
// handler's serializable payload verbatim, or a textual description
// when the failure carries no such payload.
func errorResponse(id message.ID, err error) message.Response {
	var se *status.Error
	if !status.As(err, &se) {
		se = status.Wrap(status.ServerError, err)
	}

	var payload any = se.Error()
	if se.Object != nil {
		payload = se.Object
	}

	encoded, encErr := msgpack.Marshal(payload)
	if encErr != nil {
		encoded, _ = msgpack.Marshal(se.Error())
	}
	return message.Response{ID: id, Error: encoded}
}
