package authcore

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh random identifier for users, roles and passports.
func NewID() string {
	return uuid.NewString()
}

// appendQuery adds an encoded query to base, joining with & when base already
// has a query string.
func appendQuery(base, query string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + query
}

// withTimeout bounds ctx by d. A non-positive d leaves ctx unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func clockOrDefault(now func() time.Time) func() time.Time {
	if now != nil {
		return now
	}
	return time.Now
}

// newSession sanitizes user and signs a token for it.
func newSession(issuer TokenIssuer, user *User) (*Session, error) {
	token, err := issuer.Issue(user)
	if err != nil {
		return nil, InternalError(err)
	}
	return &Session{Token: token, User: user.Sanitized()}, nil
}
