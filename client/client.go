package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	ac "github.com/panyam/authcore"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("request failed: HTTP %d", e.StatusCode)
}

// Kind maps the error back onto the server's error classification.
func (e *APIError) Kind() ac.ErrorKind {
	return ac.ErrorKind(e.Code)
}

// RegisterRequest is the body of a registration call.
type RegisterRequest struct {
	Username string         `json:"username,omitempty"`
	Email    string         `json:"email,omitempty"`
	Password string         `json:"password"`
	Extra    map[string]any `json:"-"`
}

func (r RegisterRequest) body() map[string]any {
	out := map[string]any{}
	for k, v := range r.Extra {
		out[k] = v
	}
	out["password"] = r.Password
	if r.Username != "" {
		out["username"] = r.Username
	}
	if r.Email != "" {
		out["email"] = r.Email
	}
	return out
}

// AuthClient talks to an authcore server and keeps the resulting token
// in a CredentialStore.
type AuthClient struct {
	mu            sync.Mutex
	serverURL     string
	prefix        string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithPrefix sets the path the auth routes are mounted under (default /auth)
func WithPrefix(prefix string) ClientOption {
	return func(c *AuthClient) {
		c.prefix = strings.TrimSuffix(prefix, "/")
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// The transport from this client will be wrapped with auth handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		c.httpClient.Jar = client.Jar
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// NewAuthClient creates a new authenticated HTTP client for a server
func NewAuthClient(serverURL string, store CredentialStore, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &AuthClient{
		serverURL:     serverURL,
		prefix:        "/auth",
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	// redirects from provider callbacks are for browsers, not for us
	c.httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	c.httpClient.Transport = &storeTransport{client: c, base: c.baseTransport}
	return c
}

// HTTPClient returns the underlying HTTP client. Requests made with it carry
// the stored bearer token.
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ServerURL returns the server URL this client is configured for
func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// GetToken returns the current access token or "" if there is no usable one
func (c *AuthClient) GetToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil {
		return "", err
	}
	if cred == nil || cred.IsExpired() {
		return "", nil
	}
	return cred.AccessToken, nil
}

// GetCredential returns the stored credential for this server
func (c *AuthClient) GetCredential() (*ServerCredential, error) {
	return c.store.GetCredential(c.serverURL)
}

// IsLoggedIn returns true if there is a valid (non-expired) credential
func (c *AuthClient) IsLoggedIn() bool {
	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil || cred == nil {
		return false
	}
	return !cred.IsExpired()
}

// Login authenticates with a username or email and a password.
func (c *AuthClient) Login(ctx context.Context, identifier, password string) (*ServerCredential, error) {
	var session ac.Session
	err := c.post(ctx, "/local", map[string]any{"identifier": identifier, "password": password}, &session)
	if err != nil {
		return nil, err
	}
	return c.remember(&session)
}

// Register creates a local account and logs in as it.
func (c *AuthClient) Register(ctx context.Context, req RegisterRequest) (*ServerCredential, error) {
	var session ac.Session
	if err := c.post(ctx, "/local/register", req.body(), &session); err != nil {
		return nil, err
	}
	return c.remember(&session)
}

// RequestPasswordReset asks the server to email a reset link. callbackURL
// may be empty to use the server's configured reset page.
func (c *AuthClient) RequestPasswordReset(ctx context.Context, email, callbackURL string) error {
	body := map[string]any{"email": email}
	if callbackURL != "" {
		body["url"] = callbackURL
	}
	return c.post(ctx, "/forgot-password", body, nil)
}

// ResetPassword redeems a reset code and logs in with the new password.
func (c *AuthClient) ResetPassword(ctx context.Context, code, password, confirmation string) (*ServerCredential, error) {
	var session ac.Session
	err := c.post(ctx, "/reset-password", map[string]any{
		"code":                 code,
		"password":             password,
		"passwordConfirmation": confirmation,
	}, &session)
	if err != nil {
		return nil, err
	}
	return c.remember(&session)
}

// Me returns the logged in user as the server sees it.
func (c *AuthClient) Me(ctx context.Context) (*ac.User, error) {
	var user ac.User
	if err := c.do(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout ends the server side session and removes the local credential.
func (c *AuthClient) Logout(ctx context.Context) error {
	if err := c.post(ctx, "/logout", nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	return c.store.Save()
}

func (c *AuthClient) remember(session *ac.Session) (*ServerCredential, error) {
	if session.Token == "" || session.User == nil {
		return nil, fmt.Errorf("invalid response from server: missing session")
	}
	cred := &ServerCredential{
		AccessToken: session.Token,
		UserID:      session.User.ID,
		Username:    session.User.Username,
		UserEmail:   session.User.Email,
		ExpiresAt:   tokenExpiry(session.Token),
		CreatedAt:   time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	return cred, nil
}

func (c *AuthClient) forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.RemoveCredential(c.serverURL); err == nil {
		c.store.Save()
	}
}

func (c *AuthClient) post(ctx context.Context, path string, body map[string]any, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *AuthClient) do(ctx context.Context, method, path string, body map[string]any, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+c.prefix+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}
