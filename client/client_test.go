package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ac "github.com/panyam/authcore"
	fsstore "github.com/panyam/authcore/stores/fs"
)

// mockCredentialStore is an in-memory credential store for testing
type mockCredentialStore struct {
	mu    sync.Mutex
	creds map[string]*ServerCredential
	saves int
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{creds: make(map[string]*ServerCredential)}
}

func (m *mockCredentialStore) GetCredential(serverURL string) (*ServerCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds[serverURL], nil
}

func (m *mockCredentialStore) SetCredential(serverURL string, cred *ServerCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[serverURL] = cred
	return nil
}

func (m *mockCredentialStore) RemoveCredential(serverURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, serverURL)
	return nil
}

func (m *mockCredentialStore) ListServers() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.creds {
		out = append(out, k)
	}
	return out, nil
}

func (m *mockCredentialStore) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	return nil
}

type testServer struct {
	*httptest.Server
	mail *ac.RecordingEmailSender
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := fsstore.NewStore(t.TempDir())
	require.NoError(t, store.SeedRoles(context.Background(), ac.RoleAdmin, ac.RoleMember))

	mail := &ac.RecordingEmailSender{}
	cfg := &ac.Config{
		AppName:      "clienttest",
		JWTSecretKey: "client-test-secret",
		BcryptCost:   4,
		ResetURL:     "http://frontend.test/reset",
		ResetCodeTTL: time.Hour,
	}
	server := ac.NewAuthServer(cfg, store, mail, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, mail: mail}
}

var codePattern = regexp.MustCompile(`code=([0-9a-f]+)`)

func TestCredential_Expiry(t *testing.T) {
	assert.False(t, (&ServerCredential{}).IsExpired(), "unknown expiry never expires")
	assert.True(t, (&ServerCredential{ExpiresAt: time.Now().Add(-time.Minute)}).IsExpired())
	assert.True(t, (&ServerCredential{ExpiresAt: time.Now().Add(time.Minute)}).IsExpiringSoon(5*time.Minute))
	assert.False(t, (&ServerCredential{ExpiresAt: time.Now().Add(time.Hour)}).IsExpiringSoon(5*time.Minute))
}

func TestTokenExpiry(t *testing.T) {
	issuer := ac.NewJWTIssuer("k", "iss", 2*time.Hour)
	token, err := issuer.Issue(&ac.User{ID: "u1"})
	require.NoError(t, err)

	exp := tokenExpiry(token)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), exp, time.Minute)
	assert.True(t, tokenExpiry("not-a-jwt").IsZero())
}

func TestAuthClient_RegisterLoginMe(t *testing.T) {
	ts := newTestServer(t)
	store := newMockCredentialStore()
	c := NewAuthClient(ts.URL+"/some/path", store)
	ctx := context.Background()

	assert.Equal(t, ts.URL, c.ServerURL())
	assert.False(t, c.IsLoggedIn())

	cred, err := c.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "s3cret"})
	require.NoError(t, err)
	assert.NotEmpty(t, cred.AccessToken)
	assert.Equal(t, "alice", cred.Username)
	assert.False(t, cred.ExpiresAt.IsZero())
	assert.True(t, c.IsLoggedIn())

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, cred.UserID, me.ID)
	assert.Equal(t, "alice@example.com", me.Email)
	assert.True(t, me.HasRole(ac.RoleAdmin), "first user is admin")

	require.NoError(t, c.Logout(ctx))
	assert.False(t, c.IsLoggedIn())

	_, err = c.Me(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	cred, err = c.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, me.ID, cred.UserID)
}

func TestAuthClient_LoginFailure(t *testing.T) {
	ts := newTestServer(t)
	c := NewAuthClient(ts.URL, newMockCredentialStore())

	_, err := c.Login(context.Background(), "nobody", "pw")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, ac.KindAuthFailed, apiErr.Kind())
	assert.Equal(t, ac.MsgInvalidCredentials, apiErr.Message)
	assert.False(t, c.IsLoggedIn())
}

func TestAuthClient_RegisterDuplicate(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	c := NewAuthClient(ts.URL, newMockCredentialStore())

	_, err := c.Register(ctx, RegisterRequest{Username: "bob", Password: "pw"})
	require.NoError(t, err)
	_, err = c.Register(ctx, RegisterRequest{Username: "bob", Password: "pw2"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestAuthClient_PasswordReset(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	c := NewAuthClient(ts.URL, newMockCredentialStore())

	_, err := c.Register(ctx, RegisterRequest{Email: "carol@example.com", Password: "old"})
	require.NoError(t, err)

	require.NoError(t, c.RequestPasswordReset(ctx, "carol@example.com", "http://app.test/reset?x=1"))
	sent := ts.mail.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "http://app.test/reset?x=1&code=")
	m := codePattern.FindStringSubmatch(sent[0].Text)
	require.Len(t, m, 2)

	_, err = c.ResetPassword(ctx, m[1], "new", "other")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	_, err = c.ResetPassword(ctx, m[1], "new", "new")
	require.NoError(t, err)

	_, err = c.Login(ctx, "carol@example.com", "old")
	assert.Error(t, err)
	_, err = c.Login(ctx, "carol@example.com", "new")
	assert.NoError(t, err)

	// codes are single use
	_, err = c.ResetPassword(ctx, m[1], "again", "again")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestAuthClient_UnknownEmailReset(t *testing.T) {
	ts := newTestServer(t)
	c := NewAuthClient(ts.URL, newMockCredentialStore())

	err := c.RequestPasswordReset(context.Background(), "ghost@example.com", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, ac.MsgEmailDoesNotExist, apiErr.Message)
}

func TestAuthClient_RejectedTokenIsForgotten(t *testing.T) {
	ts := newTestServer(t)
	store := newMockCredentialStore()
	c := NewAuthClient(ts.URL, store)

	store.SetCredential(ts.URL, &ServerCredential{AccessToken: "forged", ExpiresAt: time.Now().Add(time.Hour)})
	require.True(t, c.IsLoggedIn())

	_, err := c.Me(context.Background())
	require.Error(t, err)
	assert.False(t, c.IsLoggedIn())
}

func TestAuthTransport(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer ts.Close()

	hc := &http.Client{Transport: NewAuthTransport("tok")}
	resp, err := hc.Get(ts.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer tok", got)

	hc = &http.Client{Transport: NewAuthTransportWithBase(nil, "")}
	resp, err = hc.Get(ts.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, got)
}
