// Package server implements the server half of the RPC stack: one or
// more listening acceptors feeding connections into a shared method
// processor, and the lifecycle (Start/RunUntilSignal/Stop) that owns
// them.
//
// It replaces the teacher's NewServer/Register/Serve/Shutdown, which
// bound a single net.Listener, an etcd registry deregistration hook,
// and a serviceMap of reflected net/rpc-style methods into one struct.
// The listener-management and graceful-shutdown shapes (a WaitGroup
// tracking in-flight work, a shutdown flag checked by the accept loop,
// Shutdown closing the listener then waiting with a timeout) carry over
// as Acceptor/Connection plus Server's own connection set below; method
// registration and dispatch move out entirely into methods.Processor,
// and discovery registration is dropped along with the registry package
// it depended on.
package server

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/msgpack-rpc/msgpack-rpc-go/codec"
	"github.com/msgpack-rpc/msgpack-rpc-go/config"
	"github.com/msgpack-rpc/msgpack-rpc-go/executor"
	"github.com/msgpack-rpc/msgpack-rpc-go/message"
	"github.com/msgpack-rpc/msgpack-rpc-go/methods"
	"github.com/msgpack-rpc/msgpack-rpc-go/rpclog"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
	"github.com/msgpack-rpc/msgpack-rpc-go/transport"
)

// Server listens on one or more URIs and dispatches every accepted
// connection's requests and notifications to a shared Processor.
type Server struct {
	cfg       config.ServerConfig
	processor *methods.Processor
	exec      *executor.Executor
	logger    *rpclog.Logger

	mu          sync.Mutex
	acceptors   []*transport.Acceptor
	connections map[*transport.Connection]struct{}

	started  bool
	stopOnce sync.Once
	fatalCh  chan error
}

// New builds a Server that dispatches to processor. The server owns no
// listeners until Start is called.
func New(cfg config.ServerConfig, processor *methods.Processor, logger *rpclog.Logger) *Server {
	if logger == nil {
		logger = rpclog.Noop()
	}
	s := &Server{
		cfg:         cfg,
		processor:   processor,
		logger:      logger,
		connections: make(map[*transport.Connection]struct{}),
		fatalCh:     make(chan error, 1),
	}
	s.exec = executor.New(cfg.Executor, func(err error) {
		logger.Error("server executor exception", "error", err)
		select {
		case s.fatalCh <- err:
		default:
		}
	})
	return s
}

// RegisterMethod binds name to fn on the server's processor. See
// methods.Processor.Register for the accepted function shapes.
func (s *Server) RegisterMethod(name string, fn any) error {
	return s.processor.Register(name, fn)
}

// Addrs returns the bound local address of every acceptor, useful for
// discovering the assigned port after starting against port 0.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]net.Addr, 0, len(s.acceptors))
	for _, a := range s.acceptors {
		addrs = append(addrs, a.Addr())
	}
	return addrs
}

// Start resolves every configured URI to one or more acceptors and
// begins accepting connections on each. It is one-time: a second call
// fails with PreconditionNotMet. On any resolution or bind failure,
// acceptors already started are stopped before the error is returned.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return status.New(status.PreconditionNotMet, "server already started")
	}
	s.started = true
	s.mu.Unlock()

	uris, err := s.cfg.ParsedURIs()
	if err != nil {
		return err
	}
	if len(uris) == 0 {
		return status.New(status.InvalidArgument, "server config has no listen URIs")
	}

	s.exec.Start()

	for _, uri := range uris {
		acceptors, err := transport.ResolveAcceptors(context.Background(), uri, transport.DefaultReadBufferSize)
		if err != nil {
			s.Stop()
			return err
		}
		for _, a := range acceptors {
			if err := a.Start(s.onAccept); err != nil {
				s.Stop()
				return err
			}
			s.mu.Lock()
			s.acceptors = append(s.acceptors, a)
			s.mu.Unlock()
		}
	}
	return nil
}

// RunUntilSignal blocks until SIGINT, SIGTERM, or a fatal executor
// exception occurs, then stops the server. It returns the fatal
// exception, if that is what woke it, or nil on a clean signal-driven
// shutdown.
func (s *Server) RunUntilSignal() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var fatal error
	select {
	case <-sigCh:
	case fatal = <-s.fatalCh:
	}
	s.Stop()
	return fatal
}

// Stop is idempotent: it stops every acceptor first so no new
// connections arrive, closes every connection currently open, then
// shuts down the executor, waiting for in-flight dispatches to finish.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		acceptors := s.acceptors
		s.mu.Unlock()
		for _, a := range acceptors {
			a.Stop()
		}

		s.mu.Lock()
		conns := make([]*transport.Connection, 0, len(s.connections))
		for c := range s.connections {
			conns = append(conns, c)
		}
		s.mu.Unlock()
		for _, c := range conns {
			c.AsyncClose()
		}

		s.exec.Stop()
	})
}

func (s *Server) onAccept(conn *transport.Connection) {
	s.mu.Lock()
	s.connections[conn] = struct{}{}
	s.mu.Unlock()

	if err := conn.Start(
		func(msg message.Message) { s.handleReceived(conn, msg) },
		nil,
		func(error) {
			s.mu.Lock()
			delete(s.connections, conn)
			s.mu.Unlock()
		},
	); err != nil {
		s.logger.Error("failed to start accepted connection", "error", err)
	}
}

// handleReceived routes an incoming message to the processor on the
// callback pool, so a slow handler never blocks conn's read loop. A
// Response arriving on a server connection is dropped with a warning:
// the protocol permits a peer to be both client and server over the
// same connection, but this server never initiates calls of its own.
func (s *Server) handleReceived(conn *transport.Connection, msg message.Message) {
	switch msg.Kind {
	case message.TypeRequest, message.TypeNotification:
		err := s.exec.Post(executor.PoolCallback, func() {
			s.processor.Dispatch(context.Background(), msg, func(resp message.Response) {
				s.reply(conn, resp)
			})
		})
		if err != nil {
			s.logger.Warn("dropped incoming message, executor not accepting tasks", "error", err)
		}
	case message.TypeResponse:
		s.logger.Warn("server connection received a response message, dropping")
	}
}

func (s *Server) reply(conn *transport.Connection, resp message.Response) {
	serialized, err := codec.Serialize(message.NewResponse(resp))
	if err != nil {
		s.logger.Error("failed to serialize response", "error", err)
		return
	}
	if err := conn.Send(serialized); err != nil {
		s.logger.Warn("failed to send response", "error", err)
	}
}
