package authcore

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies every failure a top-level operation can return.
type ErrorKind string

const (
	KindBadRequest ErrorKind = "bad_request"
	KindAuthFailed ErrorKind = "auth_failed"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindInternal   ErrorKind = "internal_error"
)

// Errors returned by Store implementations.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Messages shared between operations and their tests.
const (
	MsgMissingIdentifier  = "missing identifier"
	MsgMissingPassword    = "missing password"
	MsgInvalidCredentials = "invalid identifier or password"
	MsgMissingAccessToken = "missing access token"
	MsgInvalidPassword    = "invalid password"
	MsgMissingEmail       = "missing email"
	MsgEmailDoesNotExist  = "email does not exist"
	MsgNoLocalPassport    = "no local authentication method"
	MsgEmailFailed        = "email delivery failed"
	MsgIdentityTaken      = "username or email already taken"
	MsgMissingCode        = "missing reset code"
	MsgInvalidCode        = "invalid reset code"
	MsgCodeExpired        = "reset code expired"
	MsgPasswordMismatch   = "passwords do not match"
)

// AuthError is the error type returned by every operation in this package.
// Message is safe to show to callers, Err is kept for logs.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status used when this error is written to a response.
func (e *AuthError) StatusCode() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindAuthFailed:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func NewAuthError(kind ErrorKind, message string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: err}
}

func BadRequest(message string) *AuthError { return NewAuthError(KindBadRequest, message, nil) }
func AuthFailed(message string) *AuthError { return NewAuthError(KindAuthFailed, message, nil) }
func NotFound(message string) *AuthError   { return NewAuthError(KindNotFound, message, nil) }
func Conflict(message string) *AuthError   { return NewAuthError(KindConflict, message, nil) }

// InternalError wraps a collaborator failure. The underlying message is passed
// through unless an explicit message is given.
func InternalError(err error, message ...string) *AuthError {
	msg := "internal error"
	if len(message) > 0 {
		msg = message[0]
	} else if err != nil {
		msg = err.Error()
	}
	return NewAuthError(KindInternal, msg, err)
}

// KindOf reports the kind of err, or KindInternal if err is not an *AuthError.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// asAuthError converts any error into an *AuthError, treating unknown errors as internal.
func asAuthError(err error) *AuthError {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return InternalError(err)
}
