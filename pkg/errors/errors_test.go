package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppErrorErrorIncludesInternal(t *testing.T) {
	base := New("TEST", "something broke", http.StatusInternalServerError)
	require.Equal(t, "something broke", base.Error())

	wrapped := base.WithInternal(errors.New("root cause"))
	require.Equal(t, "something broke: root cause", wrapped.Error())
	require.ErrorContains(t, wrapped, "root cause")

	// WithInternal must not mutate the shared sentinel.
	require.Nil(t, base.Internal)
}

func TestFromErrorPreservesAppErrors(t *testing.T) {
	err := fmt.Errorf("outer: %w", ErrConflict)

	appErr := FromError(err)
	require.Equal(t, ErrConflict.Code, appErr.Code)
	require.Equal(t, http.StatusConflict, appErr.StatusCode)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("plain"))
	require.Equal(t, ErrInternalServer.Code, appErr.Code)
	require.ErrorContains(t, appErr, "plain")
}

func TestValidationHelpers(t *testing.T) {
	err := NewValidation("retention below floor")
	require.Equal(t, ErrValidationFailed.Code, err.Code)
	require.Equal(t, http.StatusUnprocessableEntity, err.StatusCode)
	require.Equal(t, "retention below floor", err.Message)

	copied := ErrNotFound.WithMessage("role not found")
	require.Equal(t, ErrNotFound.Code, copied.Code)
	require.Equal(t, "role not found", copied.Message)
	require.Equal(t, "Resource not found", ErrNotFound.Message)
}
