package authcore_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ac "github.com/panyam/authcore"
)

func TestMiddleware_Bearer(t *testing.T) {
	tokens := ac.NewJWTIssuer(testSecret, "iss", time.Hour)
	token, err := tokens.Issue(&ac.User{ID: "u1"})
	require.NoError(t, err)

	mw := &ac.Middleware{Verifier: tokens}
	var seen string
	handler := mw.ExtractUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ac.UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "u1", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, seen)
}

func TestMiddleware_EnsureUser(t *testing.T) {
	tokens := ac.NewJWTIssuer(testSecret, "iss", time.Hour)
	mw := &ac.Middleware{Verifier: tokens}
	called := false
	handler := mw.EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}
