package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(Timeout, "waited too long")
	require.Equal(t, "TIMEOUT: waited too long", err.Error())
	require.Equal(t, Timeout, err.Code())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(ConnectionFailure, cause)
	require.Equal(t, cause, wrapped.Unwrap())
	require.True(t, errors.Is(wrapped, wrapped))
}

func TestWrapIdempotent(t *testing.T) {
	original := New(Timeout, "x")
	require.Same(t, original, Wrap(ParseError, original))
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(Timeout, "first")
	b := New(Timeout, "second")
	require.True(t, errors.Is(a, b))
	require.False(t, errors.Is(a, New(Aborted, "")))
}

func TestCodeOfDefaultsForPlainErrors(t *testing.T) {
	require.Equal(t, UnexpectedError, CodeOf(errors.New("plain")))
	require.Equal(t, Success, CodeOf(nil))
}

func TestWithObjectCopies(t *testing.T) {
	base := New(ServerError, "handler failed")
	withObj := base.WithObject(42)
	require.Nil(t, base.Object)
	require.Equal(t, 42, withObj.Object)
}
