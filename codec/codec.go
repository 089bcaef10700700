// Package codec implements the MessagePack-RPC wire format: serializing
// typed message.Message values into SerializedMessage byte buffers, and
// incrementally parsing a byte stream back into message.Message values.
//
// Two halves, matching the spec's split:
//   - Serializer (this file): pure, produces a SerializedMessage from a
//     typed message.Message.
//   - Parser (parser.go): incremental, consumes bytes fed from an
//     arbitrary stream and yields a lazy sequence of messages.
//
// Unlike the teacher's pluggable Codec interface (JSON vs. a hand-rolled
// binary format selected per frame), this module's wire format is fixed:
// MessagePack-RPC is the only format in scope, so there is exactly one
// codec and no per-message format tag.
package codec

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/msgpack-rpc/msgpack-rpc-go/message"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

// SerializedMessage is an owned byte buffer whose contents are a
// complete, valid MessagePack-encoded message. It is opaque downstream
// of Serialize — the transport layer only ever appends it to a write
// queue or writes it to a socket.
type SerializedMessage []byte

// emptyArray and nilValue are the pre-encoded forms of an empty
// MessagePack array and MessagePack nil, used to fill the params slot of
// a parameter-less call and the error/result slot of a Response whose
// counterpart is set, respectively.
var (
	emptyArray = msgpack.RawMessage{0x90}
	nilValue   = msgpack.RawMessage{0xc0}
)

// Serialize encodes msg as MessagePack-RPC:
//
//	Request:      [0, id, method, params]
//	Response:     [1, id, error, result]
//	Notification: [2, method, params]
//
// params is always encoded as a MessagePack array, even for a single
// parameter or an empty parameter list; method names are encoded as
// MessagePack strings (UTF-8, including non-ASCII).
func Serialize(msg message.Message) (SerializedMessage, error) {
	var arr []any

	switch msg.Kind {
	case message.TypeRequest:
		req := msg.Request
		arr = []any{int8(message.TypeRequest), uint32(req.ID), req.Method, orDefault(req.Params, emptyArray)}
	case message.TypeResponse:
		resp := msg.Response
		arr = []any{int8(message.TypeResponse), uint32(resp.ID), orDefault(resp.Error, nilValue), orDefault(resp.Result, nilValue)}
	case message.TypeNotification:
		note := msg.Notification
		arr = []any{int8(message.TypeNotification), note.Method, orDefault(note.Params, emptyArray)}
	default:
		return nil, status.Newf(status.InvalidArgument, "unknown message kind %d", msg.Kind)
	}

	b, err := msgpack.Marshal(arr)
	if err != nil {
		return nil, status.Wrap(status.UnexpectedError, err)
	}
	return SerializedMessage(b), nil
}

func orDefault(raw, fallback msgpack.RawMessage) msgpack.RawMessage {
	if len(raw) == 0 {
		return fallback
	}
	return raw
}

// EncodeParams encodes a variadic parameter list as a MessagePack array,
// for use building message.Request.Params / Notification.Params.
func EncodeParams(params ...any) (msgpack.RawMessage, error) {
	if len(params) == 0 {
		return emptyArray, nil
	}
	b, err := msgpack.Marshal(params)
	if err != nil {
		return nil, status.Wrap(status.InvalidArgument, err)
	}
	return msgpack.RawMessage(b), nil
}
