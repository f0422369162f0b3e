package dbgerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	err := New(SessionNotFound, "no session %s", "abc")
	assert.Equal(t, "SessionNotFound: no session abc", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(TransportClosed, cause, "closed while sending")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

func TestAsAndKindOf(t *testing.T) {
	err := New(RateLimited, "too fast")
	wrapped := errors.New("outer: " + err.Error())
	_, ok := As(wrapped)
	assert.False(t, ok)

	got, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, RateLimited, got.Kind)
	assert.Equal(t, RateLimited, KindOf(err))
	assert.Equal(t, Internal, KindOf(cause()))
}

func cause() error { return errors.New("plain") }

func TestWithData(t *testing.T) {
	err := New(InvalidArgument, "bad arg").WithData(map[string]any{"field": "line"})
	assert.Equal(t, "line", err.Data["field"])
}
