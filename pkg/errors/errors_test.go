package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithInternalPreservesOriginal(t *testing.T) {
	base := ErrSeatsExhausted
	inner := errors.New("redis timeout")

	wrapped := base.WithInternal(inner)
	require.NotSame(t, base, wrapped)
	require.Nil(t, base.Internal)
	require.ErrorIs(t, wrapped, inner)
	require.Equal(t, http.StatusServiceUnavailable, wrapped.StatusCode)
}

func TestWithMessageKeepsCodeAndStatus(t *testing.T) {
	err := ErrConflict.WithMessage("Session is already terminated")

	require.Equal(t, ErrConflict.Code, err.Code)
	require.Equal(t, http.StatusConflict, err.StatusCode)
	require.Equal(t, "Session is already terminated", err.Message)
	require.Equal(t, "Request conflicts with current state", ErrConflict.Message)
}

func TestFromError(t *testing.T) {
	require.Nil(t, FromError(nil))

	appErr := FromError(ErrForbidden)
	require.Same(t, ErrForbidden, appErr)

	plain := errors.New("boom")
	converted := FromError(plain)
	require.Equal(t, ErrInternalServer.Code, converted.Code)
	require.ErrorIs(t, converted, plain)
}

func TestWrapExposesMessageAndInternal(t *testing.T) {
	inner := errors.New("dial tcp: refused")
	err := Wrap(inner, "allocator unavailable")

	require.Equal(t, "allocator unavailable: dial tcp: refused", err.Error())
	require.ErrorIs(t, err, inner)
}
