package codec

import (
	"bytes"
	"errors"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/msgpack-rpc/msgpack-rpc-go/message"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

// ErrNeedMore is returned by Parser.TryNext when the buffer does not yet
// contain a complete message; the caller should Feed more bytes and try
// again. It is a sentinel, never wrapped in a status.Error, because it
// is a normal, expected outcome rather than a failure.
var ErrNeedMore = errors.New("codec: need more bytes")

// Parser incrementally decodes a stream of bytes into MessagePack-RPC
// messages. It maintains an internal unbounded buffer: Feed appends to
// it, and TryNext returns the next complete message or ErrNeedMore.
//
// A single Feed call may hand the parser multiple complete messages
// and/or a partial tail in one chunk — callers must loop calling TryNext
// until it returns ErrNeedMore before feeding more bytes, so that all
// complete messages in a chunk are drained before another read is
// issued. This mirrors the teacher's frame decoder, which uses
// io.ReadFull against a length-prefixed header to solve the same
// "multiple messages arrived in one read" problem; here the length is
// implicit in MessagePack's self-describing array encoding instead of an
// explicit length-prefixed frame.
//
// On a malformed message, TryNext returns a status.Error with code
// ParseError and the Parser must not be used again — parser state after
// a parse error is not recoverable, matching the spec.
type Parser struct {
	buf    []byte
	failed bool
}

// NewParser creates an empty Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends newBytes to the parser's internal buffer.
func (p *Parser) Feed(newBytes []byte) {
	p.buf = append(p.buf, newBytes...)
}

// Buffered reports how many unconsumed bytes are currently held.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// TryNext attempts to decode the next complete message from the
// buffered bytes. It returns ErrNeedMore if the buffer holds an
// incomplete message (including an empty buffer), or a ParseError
// status.Error if the buffered bytes are not a valid MessagePack-RPC
// message.
func (p *Parser) TryNext() (message.Message, error) {
	if p.failed {
		return message.Message{}, status.New(status.ParseError, "parser is in a failed state after a previous parse error")
	}
	if len(p.buf) == 0 {
		return message.Message{}, ErrNeedMore
	}

	reader := bytes.NewReader(p.buf)
	dec := msgpack.NewDecoder(reader)

	msg, err := decodeOne(dec)
	if err != nil {
		if isIncomplete(err) {
			return message.Message{}, ErrNeedMore
		}
		p.failed = true
		return message.Message{}, status.Wrap(status.ParseError, err)
	}

	consumed := len(p.buf) - reader.Len()
	p.buf = p.buf[consumed:]
	return msg, nil
}

// isIncomplete reports whether err indicates that the buffered bytes
// are a valid-so-far prefix of a message rather than a malformed one.
func isIncomplete(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// decodeOne decodes one top-level MessagePack-RPC array from dec,
// validating the tag and arity as it goes.
func decodeOne(dec *msgpack.Decoder) (message.Message, error) {
	arrLen, err := dec.DecodeArrayLen()
	if err != nil {
		return message.Message{}, err
	}
	if arrLen < 0 {
		// msgpack encodes a nil top-level value as array length -1;
		// a MessagePack-RPC message must always be an array, never nil.
		return message.Message{}, status.New(status.ParseError, "top-level message must be a MessagePack array, got nil")
	}

	tag, err := dec.DecodeInt()
	if err != nil {
		return message.Message{}, err
	}

	switch message.Type(tag) {
	case message.TypeRequest:
		if arrLen != 4 {
			return message.Message{}, status.Newf(status.ParseError, "request array must have 4 elements, got %d", arrLen)
		}
		id, err := dec.DecodeUint32()
		if err != nil {
			return message.Message{}, err
		}
		method, err := dec.DecodeString()
		if err != nil {
			return message.Message{}, err
		}
		if err := requireArrayNext(dec); err != nil {
			return message.Message{}, err
		}
		var params msgpack.RawMessage
		if err := dec.Decode(&params); err != nil {
			return message.Message{}, err
		}
		return message.NewRequest(message.Request{ID: message.ID(id), Method: method, Params: params}), nil

	case message.TypeResponse:
		if arrLen != 4 {
			return message.Message{}, status.Newf(status.ParseError, "response array must have 4 elements, got %d", arrLen)
		}
		id, err := dec.DecodeUint32()
		if err != nil {
			return message.Message{}, err
		}
		var errObj msgpack.RawMessage
		if err := dec.Decode(&errObj); err != nil {
			return message.Message{}, err
		}
		var result msgpack.RawMessage
		if err := dec.Decode(&result); err != nil {
			return message.Message{}, err
		}
		return message.NewResponse(message.Response{ID: message.ID(id), Error: errObj, Result: result}), nil

	case message.TypeNotification:
		if arrLen != 3 {
			return message.Message{}, status.Newf(status.ParseError, "notification array must have 3 elements, got %d", arrLen)
		}
		method, err := dec.DecodeString()
		if err != nil {
			return message.Message{}, err
		}
		if err := requireArrayNext(dec); err != nil {
			return message.Message{}, err
		}
		var params msgpack.RawMessage
		if err := dec.Decode(&params); err != nil {
			return message.Message{}, err
		}
		return message.NewNotification(message.Notification{Method: method, Params: params}), nil

	default:
		return message.Message{}, status.Newf(status.ParseError, "unknown message tag %d", tag)
	}
}

// requireArrayNext peeks the next code and fails fast with ParseError
// (rather than a generic msgpack decode error further down the line) if
// params is not encoded as an array, matching the spec's requirement
// that a non-array params payload is a parse error.
func requireArrayNext(dec *msgpack.Decoder) error {
	code, err := dec.PeekCode()
	if err != nil {
		return err
	}
	if !isArrayCode(code) {
		return status.Newf(status.ParseError, "params must be an array, got code 0x%x", code)
	}
	return nil
}

// isArrayCode reports whether code is a MessagePack fixarray (0x90-0x9f),
// array16 (0xdc), or array32 (0xdd) type tag.
func isArrayCode(code byte) bool {
	return (code >= 0x90 && code <= 0x9f) || code == 0xdc || code == 0xdd
}
