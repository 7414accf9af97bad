package authcore_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	ac "github.com/panyam/authcore"
)

func TestAuthError_StatusCode(t *testing.T) {
	tests := []struct {
		err    *ac.AuthError
		status int
	}{
		{ac.BadRequest("x"), http.StatusBadRequest},
		{ac.AuthFailed("x"), http.StatusForbidden},
		{ac.NotFound("x"), http.StatusNotFound},
		{ac.Conflict("x"), http.StatusConflict},
		{ac.InternalError(errors.New("x")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode())
		})
	}
}

func TestInternalError(t *testing.T) {
	cause := errors.New("connection refused")

	err := ac.InternalError(cause)
	assert.Equal(t, "connection refused", err.Message, "underlying message is passed through")
	assert.ErrorIs(t, err, cause)

	err = ac.InternalError(cause, ac.MsgEmailFailed)
	assert.Equal(t, ac.MsgEmailFailed, err.Message)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ac.KindNotFound, ac.KindOf(fmt.Errorf("wrapped: %w", ac.NotFound("gone"))))
	assert.Equal(t, ac.KindInternal, ac.KindOf(errors.New("plain")))
}
