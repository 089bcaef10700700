package transport

import (
	"context"
	"net"
	"strconv"

	"go.uber.org/multierr"

	"github.com/msgpack-rpc/msgpack-rpc-go/address"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

// Backend bundles, per transport scheme, the dial capability a
// Connector needs. It mirrors the spec's "per-scheme bundle providing
// acceptor-factory and connector capabilities" — ResolveAcceptors above
// is the acceptor-factory half; Backend.Dial is the connector half.
type Backend interface {
	Dial(ctx context.Context, uri address.URI) (net.Conn, error)
}

type tcpBackend struct {
	dialer net.Dialer
}

func (b tcpBackend) Dial(ctx context.Context, uri address.URI) (net.Conn, error) {
	addr := uri.Host()
	if uri.Port() != 0 {
		addr = net.JoinHostPort(uri.Host(), strconv.Itoa(int(uri.Port())))
	}
	return b.dialer.DialContext(ctx, "tcp", addr)
}

type unixBackend struct {
	dialer net.Dialer
}

func (b unixBackend) Dial(ctx context.Context, uri address.URI) (net.Conn, error) {
	return b.dialer.DialContext(ctx, "unix", uri.Path())
}

// Connector walks an ordered list of candidate URIs, attempting each in
// turn via its scheme's Backend, until one connects. It never calls
// back more than once: Connect returns either the first live connection
// or, once every URI has failed, a single aggregate CONNECTION_FAILURE.
type Connector struct {
	backends map[address.Scheme]Backend
}

// NewConnector builds a Connector wired to the tcp and unix backends.
func NewConnector() *Connector {
	return &Connector{
		backends: map[address.Scheme]Backend{
			address.SchemeTCP:  tcpBackend{},
			address.SchemeUnix: unixBackend{},
		},
	}
}

// Connect attempts uris strictly in order. A resolution or dial failure
// for one URI is an attempt failure, not a hard error — it is folded
// into the aggregate error and the next URI is tried.
func (c *Connector) Connect(ctx context.Context, uris []address.URI) (net.Conn, error) {
	if len(uris) == 0 {
		return nil, status.New(status.InvalidArgument, "no candidate URIs to connect to")
	}

	var errs error
	for _, uri := range uris {
		backend, ok := c.backends[uri.Scheme()]
		if !ok {
			errs = multierr.Append(errs, status.Newf(status.InvalidArgument, "no backend registered for scheme %q", uri.Scheme()))
			continue
		}
		conn, err := backend.Dial(ctx, uri)
		if err == nil {
			return conn, nil
		}
		errs = multierr.Append(errs, status.Wrapf(status.ConnectionFailure, err, "connecting to %s", uri.String()))
	}
	return nil, status.Newf(status.ConnectionFailure, "all %d candidate URIs failed: %v", len(uris), errs)
}
