// Package oauth2 resolves third-party access tokens to authcore users.
//
// The authorization-code handshake happens elsewhere; this package starts
// from an access token, asks the provider who it belongs to and links that
// identity to a local user through a provider passport.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// Profile is the provider identity behind an access token.
type Profile struct {
	// Provider-side subject id. Stable across logins.
	ID            string
	Username      string
	Email         string
	EmailVerified bool
	Name          string
}

// ProfileFetcher looks up the owner of an access token at one provider.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// BaseFetcher holds what every userinfo fetcher needs.
type BaseFetcher struct {
	// UserInfoURL is the provider endpoint returning the token owner.
	// Can be overridden for testing.
	UserInfoURL string

	// HTTPClient is used as the transport under the bearer token. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// getUserInfo GETs UserInfoURL with accessToken as a bearer credential and
// decodes the JSON response into out.
func (b *BaseFetcher) getUserInfo(ctx context.Context, accessToken string, out any) error {
	if b.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.UserInfoURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	response, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed getting user info: %w", err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed read response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("user info request failed with status %d", response.StatusCode)
	}
	if err := json.Unmarshal(contents, out); err != nil {
		return fmt.Errorf("failed to parse user info: %w", err)
	}
	return nil
}
