package transport

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/msgpack-rpc/msgpack-rpc-go/address"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

// acceptRetryRate bounds how often acceptLoop retries after a transient
// Accept error (e.g. the process briefly running out of file
// descriptors), so a persistently failing listener cannot spin the
// goroutine hot.
const acceptRetryRate = 10

// Acceptor binds a local address and emits accepted connections. Its
// lifecycle is Init -> Starting -> Processing -> Stopped; Starting is a
// transient state guarded by compare-and-swap so exactly one caller
// performs first-time setup even under concurrent Start calls.
type Acceptor struct {
	listener    net.Listener
	readBufSize int
	retryLimit  *rate.Limiter

	state    atomic.Int32
	stopOnce sync.Once
}

// NewAcceptor wraps an already-bound listener. readBufSize is forwarded
// to every Connection the acceptor hands to on_accept.
func NewAcceptor(listener net.Listener, readBufSize int) *Acceptor {
	return &Acceptor{
		listener:    listener,
		readBufSize: readBufSize,
		retryLimit:  rate.NewLimiter(rate.Limit(acceptRetryRate), 1),
	}
}

// Start begins accepting connections in a background goroutine, calling
// onAccept with a fresh, not-yet-started Connection for each one. It is
// one-time: a second Start fails with PreconditionNotMet.
func (a *Acceptor) Start(onAccept func(*Connection)) error {
	if !a.state.CompareAndSwap(int32(stateInit), int32(stateStarting)) {
		return status.New(status.PreconditionNotMet, "acceptor already started")
	}
	a.state.Store(int32(stateProcessing))
	go a.acceptLoop(onAccept)
	return nil
}

// acceptLoop retries transient Accept errors (those a net.Error reports
// as Temporary, such as a transient file-descriptor exhaustion) instead
// of tearing the acceptor down, throttled by retryLimit so a listener
// stuck in a failing state cannot spin the goroutine. Any other error,
// including the one Stop's listener.Close() produces, ends the loop.
func (a *Acceptor) acceptLoop(onAccept func(*Connection)) {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if lifecycleState(a.state.Load()) == stateStopped {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				a.retryLimit.Wait(context.Background())
				continue
			}
			return
		}
		if lifecycleState(a.state.Load()) == stateStopped {
			conn.Close()
			return
		}
		onAccept(NewConnection(conn, a.readBufSize))
	}
}

// Stop is idempotent and safe to call from any goroutine, including
// from within onAccept: it cancels the pending accept by closing the
// listener, which unblocks acceptLoop's call to Accept.
func (a *Acceptor) Stop() error {
	var err error
	a.stopOnce.Do(func() {
		a.state.Store(int32(stateStopped))
		err = a.listener.Close()
	})
	return err
}

// Addr returns the bound local address, useful when the acceptor was
// built against port 0 and the OS assigned one.
func (a *Acceptor) Addr() net.Addr {
	return a.listener.Addr()
}

// ResolveAcceptors turns a URI into zero or more bound Acceptors. For
// SchemeTCP it resolves the host to every matching endpoint (v4 and v6)
// and binds one listener per endpoint, so "tcp://localhost:0" typically
// yields two acceptors on a dual-stack host. For SchemeUnix it returns
// exactly one. Resolution failure is reported as HostUnresolved.
func ResolveAcceptors(ctx context.Context, uri address.URI, readBufSize int) ([]*Acceptor, error) {
	switch uri.Scheme() {
	case address.SchemeTCP:
		return resolveTCPAcceptors(ctx, uri, readBufSize)
	case address.SchemeUnix:
		ln, err := net.Listen("unix", uri.Path())
		if err != nil {
			return nil, status.Wrap(status.ConnectionFailure, err)
		}
		return []*Acceptor{NewAcceptor(ln, readBufSize)}, nil
	default:
		return nil, status.Newf(status.InvalidArgument, "unsupported scheme %q", uri.Scheme())
	}
}

func resolveTCPAcceptors(ctx context.Context, uri address.URI, readBufSize int) ([]*Acceptor, error) {
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, uri.Host())
	if err != nil {
		return nil, status.Wrap(status.HostUnresolved, err)
	}

	seen := make(map[string]bool, len(ips))
	var acceptors []*Acceptor
	for _, ip := range ips {
		key := ip.String()
		if seen[key] {
			continue
		}
		seen[key] = true

		addr := net.JoinHostPort(ip.String(), strconv.Itoa(int(uri.Port())))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, a := range acceptors {
				a.listener.Close()
			}
			return nil, status.Wrap(status.ConnectionFailure, err)
		}
		acceptors = append(acceptors, NewAcceptor(ln, readBufSize))
	}
	if len(acceptors) == 0 {
		return nil, status.Newf(status.HostUnresolved, "no addresses resolved for host %q", uri.Host())
	}
	return acceptors, nil
}
