package oauth2

import (
	"context"
	"fmt"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleFetcher reads the token owner from Google's OpenID userinfo endpoint.
type GoogleFetcher struct {
	BaseFetcher
}

func NewGoogleFetcher(userInfoURL string) *GoogleFetcher {
	if userInfoURL == "" {
		userInfoURL = googleUserInfoURL
	}
	return &GoogleFetcher{BaseFetcher{UserInfoURL: userInfoURL}}
}

type googleUser struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (g *GoogleFetcher) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	var u googleUser
	if err := g.getUserInfo(ctx, accessToken, &u); err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}
	if u.Sub == "" {
		return nil, fmt.Errorf("google: user info has no subject")
	}
	return &Profile{
		ID:            u.Sub,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Name:          u.Name,
	}, nil
}
