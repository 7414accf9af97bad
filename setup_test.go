package authcore_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ac "github.com/panyam/authcore"
	fsstore "github.com/panyam/authcore/stores/fs"
)

const testSecret = "test-secret-key"

// countingStore wraps a Store and counts writes. It deliberately hides
// CreateUserBootstrap so Registration takes the count-then-create path.
type countingStore struct {
	ac.Store
	writes atomic.Int32
}

func (c *countingStore) CreateUser(ctx context.Context, u *ac.User) (*ac.User, error) {
	c.writes.Add(1)
	return c.Store.CreateUser(ctx, u)
}

func (c *countingStore) SaveUser(ctx context.Context, u *ac.User) (*ac.User, error) {
	c.writes.Add(1)
	return c.Store.SaveUser(ctx, u)
}

func (c *countingStore) SavePassport(ctx context.Context, p *ac.Passport) (*ac.Passport, error) {
	c.writes.Add(1)
	return c.Store.SavePassport(ctx, p)
}

// testEnv holds one of each component, all sharing a fresh fs store.
type testEnv struct {
	Store  *fsstore.Store
	Hasher *ac.BcryptHasher
	Tokens *ac.JWTIssuer
	Mail   *ac.RecordingEmailSender

	Local    *ac.LocalAuth
	Register *ac.Registration
	Reset    *ac.PasswordReset
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := fsstore.NewStore(t.TempDir())
	require.NoError(t, store.SeedRoles(context.Background(), ac.RoleAdmin, ac.RoleMember))

	hasher := ac.NewBcryptHasher(4)
	tokens := ac.NewJWTIssuer(testSecret, "test-issuer", time.Hour)
	mail := &ac.RecordingEmailSender{}
	return &testEnv{
		Store:    store,
		Hasher:   hasher,
		Tokens:   tokens,
		Mail:     mail,
		Local:    ac.NewLocalAuth(store, hasher, tokens),
		Register: ac.NewRegistration(store, hasher, tokens),
		Reset:    ac.NewPasswordReset(store, hasher, tokens, mail, "http://frontend.test/reset"),
	}
}

func (e *testEnv) mustRegister(t *testing.T, username, email, password string) *ac.Session {
	t.Helper()
	session, err := e.Register.Register(context.Background(), ac.RegisterParams{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return session
}

// requireKind asserts err is an *AuthError of the given kind and message.
func requireKind(t *testing.T, err error, kind ac.ErrorKind, message string) {
	t.Helper()
	require.Error(t, err)
	var ae *ac.AuthError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, kind, ae.Kind, "error: %v", err)
	if message != "" {
		require.Equal(t, message, ae.Message)
	}
}
