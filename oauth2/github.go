package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
)

const githubUserInfoURL = "https://api.github.com/user"

// GithubFetcher reads the token owner from the GitHub users API.
type GithubFetcher struct {
	BaseFetcher
}

func NewGithubFetcher(userInfoURL string) *GithubFetcher {
	if userInfoURL == "" {
		userInfoURL = githubUserInfoURL
	}
	return &GithubFetcher{BaseFetcher{UserInfoURL: userInfoURL}}
}

type githubUser struct {
	ID    json.Number `json:"id"`
	Login string      `json:"login"`
	Email string      `json:"email"`
	Name  string      `json:"name"`
}

func (g *GithubFetcher) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	var u githubUser
	if err := g.getUserInfo(ctx, accessToken, &u); err != nil {
		return nil, fmt.Errorf("github: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("github: user info has no id")
	}
	// GitHub only exposes an email on the profile once the user has verified it.
	return &Profile{
		ID:            u.ID.String(),
		Username:      u.Login,
		Email:         u.Email,
		EmailVerified: u.Email != "",
		Name:          u.Name,
	}, nil
}
