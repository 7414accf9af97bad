package authcore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ac "github.com/panyam/authcore"
)

func TestRegister_FirstUserIsAdmin(t *testing.T) {
	env := newTestEnv(t)

	alice := env.mustRegister(t, "alice", "alice@x.com", "pw1")
	assert.NotEmpty(t, alice.Token)
	assert.True(t, alice.User.HasRole(ac.RoleAdmin))
	assert.Empty(t, alice.User.PasswordHash)

	bob := env.mustRegister(t, "bob", "bob@x.com", "pw2")
	assert.False(t, bob.User.HasRole(ac.RoleAdmin))
}

func TestRegister_Defaults(t *testing.T) {
	env := newTestEnv(t)
	session, err := env.Register.Register(context.Background(), ac.RegisterParamsFromMap(map[string]any{
		"username": "dave",
		"password": "pw",
		"nickname": "D",
		"lang":     "fr_FR",
		"template": "fancy",
		"provider": "github",
	}))
	require.NoError(t, err)

	user := session.User
	assert.Equal(t, ac.ProviderLocal, user.Provider)
	assert.Equal(t, ac.DefaultLocale, user.Locale)
	assert.Equal(t, ac.DefaultTemplate, user.Template)
	assert.Equal(t, "D", user.Profile["nickname"])
	assert.NotContains(t, user.Profile, "lang")
	require.NotNil(t, user.Passport(ac.ProviderLocal))
}

func TestRegister_EmptyPasswordWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	store := &countingStore{Store: env.Store}
	env.Register.Store = store

	_, err := env.Register.Register(context.Background(), ac.RegisterParams{Username: "eve", Email: "eve@x.com"})
	requireKind(t, err, ac.KindBadRequest, ac.MsgInvalidPassword)
	assert.Zero(t, store.writes.Load())

	count, err := env.Store.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRegister_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.mustRegister(t, "alice", "alice@x.com", "pw")

	_, err := env.Register.Register(context.Background(), ac.RegisterParams{Username: "alice", Password: "pw"})
	requireKind(t, err, ac.KindConflict, ac.MsgIdentityTaken)

	_, err = env.Register.Register(context.Background(), ac.RegisterParams{Email: "alice@x.com", Password: "pw"})
	requireKind(t, err, ac.KindConflict, ac.MsgIdentityTaken)
}

func TestRegister_CountThenCreate(t *testing.T) {
	env := newTestEnv(t)
	store := &countingStore{Store: env.Store}
	env.Register.Store = store

	first, err := env.Register.Register(context.Background(), ac.RegisterParams{Username: "a", Password: "pw"})
	require.NoError(t, err)
	assert.True(t, first.User.HasRole(ac.RoleAdmin))

	second, err := env.Register.Register(context.Background(), ac.RegisterParams{Username: "b", Password: "pw"})
	require.NoError(t, err)
	assert.False(t, second.User.HasRole(ac.RoleAdmin))
	assert.EqualValues(t, 2, store.writes.Load())
}

func TestRegister_AdminRoleNotSeeded(t *testing.T) {
	env := newTestEnv(t)
	env.Register.AdminRole = "superuser"

	session := env.mustRegister(t, "alice", "", "pw")
	assert.Empty(t, session.User.Roles)
}

func TestRegister_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.Register.Store = failingStore{Store: env.Store, err: errors.New("disk full")}

	_, err := env.Register.Register(context.Background(), ac.RegisterParams{Username: "a", Password: "pw"})
	requireKind(t, err, ac.KindInternal, "disk full")
}

func TestRegister_ConcurrentBootstrap(t *testing.T) {
	env := newTestEnv(t)
	const n = 10

	var wg sync.WaitGroup
	sessions := make([]*ac.Session, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = env.Register.Register(context.Background(), ac.RegisterParams{
				Username: fmt.Sprintf("user%d", i),
				Password: "pw",
			})
		}(i)
	}
	wg.Wait()

	admins := 0
	for i := range sessions {
		require.NoError(t, errs[i])
		if sessions[i].User.HasRole(ac.RoleAdmin) {
			admins++
		}
	}
	assert.Equal(t, 1, admins)
}
