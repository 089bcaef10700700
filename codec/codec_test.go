package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/msgpack-rpc/msgpack-rpc-go/message"
	"github.com/msgpack-rpc/msgpack-rpc-go/status"
)

func TestSerializeRequestWireShape(t *testing.T) {
	params, err := EncodeParams(2, 3)
	require.NoError(t, err)

	msg := message.NewRequest(message.Request{ID: 1, Method: "add", Params: params})
	b, err := Serialize(msg)
	require.NoError(t, err)

	// [0, 1, "add", [2,3]] encodes to a 4-element fixarray.
	require.Equal(t, byte(0x94), b[0])
}

func TestSerializeParseRoundTrip(t *testing.T) {
	cases := []message.Message{
		message.NewRequest(message.Request{ID: 1, Method: "add", Params: mustParams(t, 2, 3)}),
		message.NewResponse(message.Response{ID: 1, Result: mustEncode(t, 5)}),
		message.NewNotification(message.Notification{Method: "log", Params: mustParams(t, "hi")}),
		message.NewRequest(message.Request{ID: 0, Method: "noargs"}),
	}

	for _, original := range cases {
		serialized, err := Serialize(original)
		require.NoError(t, err)

		p := NewParser()
		p.Feed(serialized)
		decoded, err := p.TryNext()
		require.NoError(t, err)
		require.Equal(t, original.Kind, decoded.Kind)

		switch original.Kind {
		case message.TypeRequest:
			require.Equal(t, original.Request.ID, decoded.Request.ID)
			require.Equal(t, original.Request.Method, decoded.Request.Method)
		case message.TypeResponse:
			require.Equal(t, original.Response.ID, decoded.Response.ID)
		case message.TypeNotification:
			require.Equal(t, original.Notification.Method, decoded.Notification.Method)
		}
	}
}

func TestParserNeedsMoreOnPartialChunk(t *testing.T) {
	params, err := EncodeParams(1, 2)
	require.NoError(t, err)
	serialized, err := Serialize(message.NewRequest(message.Request{ID: 7, Method: "add", Params: params}))
	require.NoError(t, err)

	p := NewParser()
	p.Feed(serialized[:len(serialized)-1])
	_, err = p.TryNext()
	require.ErrorIs(t, err, ErrNeedMore)

	p.Feed(serialized[len(serialized)-1:])
	msg, err := p.TryNext()
	require.NoError(t, err)
	require.Equal(t, message.ID(7), msg.Request.ID)
}

func TestParserDrainsMultipleMessagesFromOneChunk(t *testing.T) {
	a, err := Serialize(message.NewNotification(message.Notification{Method: "a"}))
	require.NoError(t, err)
	b, err := Serialize(message.NewNotification(message.Notification{Method: "b"}))
	require.NoError(t, err)

	p := NewParser()
	p.Feed(append(append([]byte{}, a...), b...))

	first, err := p.TryNext()
	require.NoError(t, err)
	require.Equal(t, "a", first.Notification.Method)

	second, err := p.TryNext()
	require.NoError(t, err)
	require.Equal(t, "b", second.Notification.Method)

	_, err = p.TryNext()
	require.ErrorIs(t, err, ErrNeedMore)
}

func TestParserRejectsNonArrayTopLevel(t *testing.T) {
	p := NewParser()
	p.Feed([]byte{0xc0}) // a lone msgpack nil, not an array
	_, err := p.TryNext()
	require.Equal(t, status.ParseError, status.CodeOf(err))
}

func TestParserRejectsWrongArity(t *testing.T) {
	p := NewParser()
	// [0, 1] — a request tag with only 2 elements instead of 4.
	p.Feed([]byte{0x92, 0x00, 0x01})
	_, err := p.TryNext()
	require.Equal(t, status.ParseError, status.CodeOf(err))
}

func TestParserRejectsBadTag(t *testing.T) {
	p := NewParser()
	// [9, ...] — tag 9 is not 0/1/2.
	p.Feed([]byte{0x91, 0x09})
	_, err := p.TryNext()
	require.Equal(t, status.ParseError, status.CodeOf(err))
}

func TestParserUnrecoverableAfterFailure(t *testing.T) {
	p := NewParser()
	p.Feed([]byte{0xc0})
	_, err := p.TryNext()
	require.Error(t, err)

	p.Feed([]byte{0x93, 0x02, 0xa0, 0x90}) // a well-formed notification
	_, err = p.TryNext()
	require.Equal(t, status.ParseError, status.CodeOf(err))
}

func mustParams(t *testing.T, v ...any) []byte {
	t.Helper()
	raw, err := EncodeParams(v...)
	require.NoError(t, err)
	return raw
}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := msgpack.Marshal(v)
	require.NoError(t, err)
	return raw
}
