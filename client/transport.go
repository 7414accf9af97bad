package client

import (
	"net/http"
)

// AuthTransport wraps an http.RoundTripper to add Authorization headers
type AuthTransport struct {
	Base  http.RoundTripper
	Token string
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return bearerRoundTrip(t.Base, req, t.Token)
}

// NewAuthTransport creates an AuthTransport with the given token
func NewAuthTransport(token string) *AuthTransport {
	return &AuthTransport{
		Base:  http.DefaultTransport,
		Token: token,
	}
}

// NewAuthTransportWithBase creates an AuthTransport with a custom base transport
func NewAuthTransportWithBase(base http.RoundTripper, token string) *AuthTransport {
	return &AuthTransport{
		Base:  base,
		Token: token,
	}
}

// storeTransport reads the token from the client's credential store on every request
type storeTransport struct {
	client *AuthClient
	base   http.RoundTripper
}

func (t *storeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.client.GetToken()
	if err != nil {
		return nil, err
	}
	resp, err := bearerRoundTrip(t.base, req, token)
	if err != nil {
		return nil, err
	}
	// the server no longer accepts the token; forget it
	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		t.client.forget()
	}
	return resp, nil
}

func bearerRoundTrip(base http.RoundTripper, req *http.Request, token string) (*http.Response, error) {
	if token != "" {
		// Clone the request to avoid mutating the original
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
