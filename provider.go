package authcore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// ProviderExchange turns a provider access token into a local user, linking or
// creating the user as needed. Implementations must never create two users for
// the same provider identity.
type ProviderExchange interface {
	Connect(ctx context.Context, provider, accessToken string) (*User, error)
}

// ProviderAuth resolves a third-party access token to a local session.
type ProviderAuth struct {
	Exchange ProviderExchange
	Tokens   TokenIssuer
	Logger   *slog.Logger

	// URL the browser is sent to after a provider login. It may already
	// carry a query string.
	FrontendURL string

	// Upper bound on the provider exchange. Zero means no bound.
	Timeout time.Duration
}

func NewProviderAuth(exchange ProviderExchange, tokens TokenIssuer, frontendURL string) *ProviderAuth {
	return &ProviderAuth{Exchange: exchange, Tokens: tokens, FrontendURL: frontendURL}
}

func (a *ProviderAuth) AuthenticateProvider(ctx context.Context, provider, accessToken string) (*Session, error) {
	if accessToken == "" {
		return nil, BadRequest(MsgMissingAccessToken)
	}
	ctx, cancel := withTimeout(ctx, a.Timeout)
	defer cancel()

	user, err := a.Exchange.Connect(ctx, provider, accessToken)
	if err != nil {
		loggerOrDefault(a.Logger).WarnContext(ctx, "provider exchange failed", "provider", provider, "error", err)
		return nil, InternalError(err)
	}
	if user == nil {
		return nil, InternalError(fmt.Errorf("provider %s returned no user", provider))
	}
	return newSession(a.Tokens, user)
}

// RedirectURL is where the browser is sent after a provider login: FrontendURL
// with the token and the JSON encoded user added as the jwt and user query
// parameters.
func (a *ProviderAuth) RedirectURL(session *Session) (string, error) {
	userJSON, err := json.Marshal(session.User)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("jwt", session.Token)
	q.Set("user", string(userJSON))
	return appendQuery(a.FrontendURL, q.Encode()), nil
}
