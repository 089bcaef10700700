// Package message defines the MessagePack-RPC message types exchanged
// between client and server. It is the typed "envelope" layer above the
// wire codec: a Message is produced by parsing bytes, and serializing a
// Message produces bytes, but the Message itself never touches I/O.
package message

import "github.com/vmihailenco/msgpack/v5"

// Type tags the three MessagePack-RPC message kinds, matching the first
// element of the wire-level array.
type Type int

const (
	TypeRequest Type = iota
	TypeResponse
	TypeNotification
)

// ID is the 32-bit request identifier a client assigns to an outstanding
// call. It is unique within a connection's lifetime; wraparound is
// permitted but must never collide with an id currently outstanding.
type ID uint32

// Request is a client-to-server call that expects a Response carrying
// the same ID.
type Request struct {
	ID     ID
	Method string
	// Params is the raw encoded MessagePack array of arguments —
	// opaque until a method's handler projects it into typed
	// parameters, or a client projects a typed argument list into it.
	Params msgpack.RawMessage
}

// Response answers a Request with the same ID. Exactly one of Error or
// Result is meant to be non-nil semantically, though the wire format
// always carries both slots (the unset one encodes as msgpack nil).
type Response struct {
	ID     ID
	Error  msgpack.RawMessage
	Result msgpack.RawMessage
}

// Notification is a one-way call: no ID, no Response.
type Notification struct {
	Method string
	Params msgpack.RawMessage
}

// Message is the tagged union of the three kinds above. Exactly one of
// Request, Response, Notification is non-nil, selected by Kind.
type Message struct {
	Kind         Type
	Request      *Request
	Response     *Response
	Notification *Notification
}

// NewRequest wraps r as a Message.
func NewRequest(r Request) Message {
	return Message{Kind: TypeRequest, Request: &r}
}

// NewResponse wraps r as a Message.
func NewResponse(r Response) Message {
	return Message{Kind: TypeResponse, Response: &r}
}

// NewNotification wraps n as a Message.
func NewNotification(n Notification) Message {
	return Message{Kind: TypeNotification, Notification: &n}
}

// IsNilRaw reports whether raw is empty or encodes msgpack nil — the two
// ways an "absent" error/result slot can show up after decoding,
// depending on whether the sender wrote a literal nil.
func IsNilRaw(raw msgpack.RawMessage) bool {
	return len(raw) == 0 || (len(raw) == 1 && raw[0] == 0xc0)
}
