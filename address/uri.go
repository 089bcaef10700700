// Package address parses and formats the transport URIs this library
// accepts: "tcp://host:port", "tcp://[ipv6]:port", and
// "unix:///absolute/path". It is deliberately narrower than net/url —
// only the two schemes the transport backends understand are valid, and
// formatting always round-trips through the same grammar parsing uses.
package address

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

// Scheme identifies the transport backend an endpoint uses.
type Scheme string

const (
	SchemeTCP  Scheme = "tcp"
	SchemeUnix Scheme = "unix"
)

// URI is an immutable endpoint descriptor. For SchemeTCP, Host and Port
// are populated and Path is empty; for SchemeUnix, Path is populated and
// Host/Port are zero values.
type URI struct {
	scheme Scheme
	host   string
	port   uint16
	path   string
}

// NewTCP builds a tcp:// URI from a host and port. host may be an IPv6
// literal; it is bracketed automatically by String when needed.
func NewTCP(host string, port uint16) URI {
	return URI{scheme: SchemeTCP, host: host, port: port}
}

// NewUnix builds a unix:// URI from an absolute filesystem path.
func NewUnix(path string) URI {
	return URI{scheme: SchemeUnix, path: path}
}

func (u URI) Scheme() Scheme { return u.scheme }
func (u URI) Host() string   { return u.host }
func (u URI) Port() uint16   { return u.port }
func (u URI) Path() string   { return u.path }

// IsZero reports whether u is the zero value (never produced by Parse).
func (u URI) IsZero() bool { return u.scheme == "" }

// String formats u using the same grammar Parse accepts.
func (u URI) String() string {
	switch u.scheme {
	case SchemeTCP:
		host := u.host
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		return fmt.Sprintf("tcp://%s:%d", host, u.port)
	case SchemeUnix:
		return "unix://" + u.path
	default:
		return ""
	}
}

// Parse parses a URI string of the form "tcp://host:port",
// "tcp://[ipv6]:port", or "unix:///absolute/path". Any other scheme, a
// malformed authority, or an out-of-range port fails with
// status.InvalidArgument.
func Parse(raw string) (URI, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return URI{}, status.Newf(status.InvalidArgument, "malformed URI %q: missing scheme separator", raw)
	}

	switch Scheme(scheme) {
	case SchemeTCP:
		host, portStr, err := net.SplitHostPort(rest)
		if err != nil {
			return URI{}, status.Newf(status.InvalidArgument, "malformed tcp URI %q: %v", raw, err)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return URI{}, status.Newf(status.InvalidArgument, "malformed tcp URI %q: invalid port %q", raw, portStr)
		}
		return NewTCP(host, uint16(port)), nil
	case SchemeUnix:
		if !strings.HasPrefix(rest, "/") {
			return URI{}, status.Newf(status.InvalidArgument, "malformed unix URI %q: path must be absolute", raw)
		}
		return NewUnix(rest), nil
	default:
		return URI{}, status.Newf(status.InvalidArgument, "unsupported URI scheme %q", scheme)
	}
}
