package authcore

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
)

type userIDKey struct{}

// Middleware finds the logged in user of a request, either from the server
// side session or from a bearer token.
type Middleware struct {
	Verifier TokenVerifier
	Session  *scs.SessionManager
	Logger   *slog.Logger

	AuthTokenHeaderName string
	UserParamName       string
}

func (a *Middleware) EnsureReasonableDefaults() {
	if a.UserParamName == "" {
		a.UserParamName = "loggedInUserId"
	}
	if a.AuthTokenHeaderName == "" {
		a.AuthTokenHeaderName = "Authorization"
	}
}

// GetLoggedInUserId returns the id of the user making the request, or "".
func (a *Middleware) GetLoggedInUserId(r *http.Request) string {
	if id, ok := r.Context().Value(userIDKey{}).(string); ok && id != "" {
		return id
	}
	if a.Session != nil {
		if id := a.Session.GetString(r.Context(), a.UserParamName); id != "" {
			return id
		}
	}
	if a.Verifier == nil {
		return ""
	}
	for _, header := range r.Header.Values(a.AuthTokenHeaderName) {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			continue
		}
		userID, err := a.Verifier.Verify(token)
		if err == nil && userID != "" {
			return userID
		}
		loggerOrDefault(a.Logger).Debug("rejected bearer token", "error", err)
	}
	return ""
}

// ExtractUser makes the logged in user id, if any, available via UserIDFromContext.
func (a *Middleware) ExtractUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, withUserID(r, a.GetLoggedInUserId(r)))
	})
}

// EnsureUser is ExtractUser that answers 401 when nobody is logged in.
func (a *Middleware) EnsureUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := a.GetLoggedInUserId(r)
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "authentication required"})
			return
		}
		next.ServeHTTP(w, withUserID(r, userID))
	})
}

// UserIDFromContext returns the user id stored by ExtractUser or EnsureUser.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

func withUserID(r *http.Request, userID string) *http.Request {
	if userID == "" {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID))
}
