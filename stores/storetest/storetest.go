// Package storetest holds the behavior every authcore.Store implementation
// must share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ac "github.com/panyam/authcore"
)

// Store is what a backend under test must provide.
type Store interface {
	ac.Store
	ac.BootstrapStore
	SeedRoles(ctx context.Context, names ...string) error
}

// Run executes the shared suite. newStore must return an empty store on every call.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"CreateAndFind", testCreateAndFind},
		{"Duplicates", testDuplicates},
		{"SaveUser", testSaveUser},
		{"SaveUserIdentity", testSaveUserIdentity},
		{"Roles", testRoles},
		{"Passports", testPassports},
		{"ResetCode", testResetCode},
		{"Bootstrap", testBootstrap},
		{"ConcurrentBootstrap", testConcurrentBootstrap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, s.SeedRoles(context.Background(), ac.RoleAdmin, ac.RoleMember))
			tt.fn(t, s)
		})
	}
}

func localUser(username, email string) *ac.User {
	id := ac.NewID()
	return &ac.User{
		ID:           id,
		Username:     username,
		Email:        email,
		Provider:     ac.ProviderLocal,
		PasswordHash: "hash-" + username,
		Locale:       ac.DefaultLocale,
		Template:     ac.DefaultTemplate,
		Profile:      map[string]any{"nickname": username},
		Passports:    []*ac.Passport{{ID: ac.NewID(), UserID: id, Protocol: ac.ProviderLocal}},
	}
}

func testCreateAndFind(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.FindUser(ctx, ac.UserFilter{Username: "alice"})
	require.ErrorIs(t, err, ac.ErrNotFound)

	created, err := s.CreateUser(ctx, localUser("alice", "alice@x.com"))
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Username)
	require.Len(t, created.Passports, 1)

	for _, f := range []ac.UserFilter{
		{ID: created.ID},
		{Username: "alice"},
		{Email: "alice@x.com"},
		{Email: "alice@x.com", Provider: ac.ProviderLocal},
	} {
		f.WithPassports = true
		user, err := s.FindUser(ctx, f)
		require.NoError(t, err, "filter %+v", f)
		assert.Equal(t, created.ID, user.ID)
		assert.Equal(t, "hash-alice", user.PasswordHash)
		assert.Equal(t, ac.DefaultLocale, user.Locale)
		assert.Equal(t, "alice", user.Profile["nickname"])
		assert.NotNil(t, user.Passport(ac.ProviderLocal))
	}

	_, err = s.FindUser(ctx, ac.UserFilter{Email: "alice@x.com", Provider: "github"})
	assert.ErrorIs(t, err, ac.ErrNotFound)

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func testDuplicates(t *testing.T, s Store) {
	ctx := context.Background()
	_, err := s.CreateUser(ctx, localUser("alice", "alice@x.com"))
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, localUser("alice", "other@x.com"))
	assert.ErrorIs(t, err, ac.ErrDuplicate)

	_, err = s.CreateUser(ctx, localUser("other", "alice@x.com"))
	assert.ErrorIs(t, err, ac.ErrDuplicate)

	// users without username or email do not collide with each other
	_, err = s.CreateUser(ctx, localUser("", ""))
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, localUser("", ""))
	require.NoError(t, err)

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func testSaveUser(t *testing.T, s Store) {
	ctx := context.Background()
	created, err := s.CreateUser(ctx, localUser("alice", "alice@x.com"))
	require.NoError(t, err)

	created.PasswordHash = "new-hash"
	created.Locale = "fr_FR"
	saved, err := s.SaveUser(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", saved.PasswordHash)

	user, err := s.FindUser(ctx, ac.UserFilter{ID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, "new-hash", user.PasswordHash)
	assert.Equal(t, "fr_FR", user.Locale)
}

func testSaveUserIdentity(t *testing.T, s Store) {
	ctx := context.Background()
	_, err := s.CreateUser(ctx, localUser("alice", "alice@x.com"))
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, localUser("bob", "bob@x.com"))
	require.NoError(t, err)

	taken := *bob
	taken.Username = "alice"
	_, err = s.SaveUser(ctx, &taken)
	assert.ErrorIs(t, err, ac.ErrDuplicate)

	taken = *bob
	taken.Email = "alice@x.com"
	_, err = s.SaveUser(ctx, &taken)
	assert.ErrorIs(t, err, ac.ErrDuplicate)

	user, err := s.FindUser(ctx, ac.UserFilter{ID: bob.ID})
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)
	assert.Equal(t, "bob@x.com", user.Email)

	renamed := *bob
	renamed.Username = "robert"
	_, err = s.SaveUser(ctx, &renamed)
	require.NoError(t, err)
	user, err = s.FindUser(ctx, ac.UserFilter{Username: "robert"})
	require.NoError(t, err)
	assert.Equal(t, bob.ID, user.ID)

	// the old username is free again
	_, err = s.CreateUser(ctx, localUser("bob", "bob2@x.com"))
	require.NoError(t, err)
}

func testRoles(t *testing.T, s Store) {
	ctx := context.Background()

	roles, err := s.FindRoles(ctx, ac.RoleFilter{})
	require.NoError(t, err)
	assert.Len(t, roles, 2)

	// seeding is idempotent
	require.NoError(t, s.SeedRoles(ctx, ac.RoleAdmin))
	roles, err = s.FindRoles(ctx, ac.RoleFilter{Name: ac.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, roles, 1)
	admin := roles[0]

	roles, err = s.FindRoles(ctx, ac.RoleFilter{Name: "nope"})
	require.NoError(t, err)
	assert.Empty(t, roles)

	u := localUser("alice", "")
	u.Roles = []*ac.Role{admin}
	created, err := s.CreateUser(ctx, u)
	require.NoError(t, err)
	assert.True(t, created.HasRole(ac.RoleAdmin))

	members, err := s.FindRoles(ctx, ac.RoleFilter{Name: ac.RoleMember})
	require.NoError(t, err)
	created.Roles = members
	_, err = s.SaveUser(ctx, created)
	require.NoError(t, err)

	user, err := s.FindUser(ctx, ac.UserFilter{ID: created.ID, WithRoles: true})
	require.NoError(t, err)
	assert.False(t, user.HasRole(ac.RoleAdmin))
	assert.True(t, user.HasRole(ac.RoleMember))
}

func testPassports(t *testing.T, s Store) {
	ctx := context.Background()
	alice, err := s.CreateUser(ctx, localUser("alice", "alice@x.com"))
	require.NoError(t, err)

	gh, err := s.SavePassport(ctx, &ac.Passport{UserID: alice.ID, Protocol: "github", Identifier: "42"})
	require.NoError(t, err)
	assert.NotEmpty(t, gh.ID)

	found, err := s.FindPassport(ctx, "github", "42")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.UserID)

	_, err = s.FindPassport(ctx, "github", "43")
	assert.ErrorIs(t, err, ac.ErrNotFound)

	bob, err := s.CreateUser(ctx, localUser("bob", "bob@x.com"))
	require.NoError(t, err)
	_, err = s.SavePassport(ctx, &ac.Passport{UserID: bob.ID, Protocol: "github", Identifier: "42"})
	assert.ErrorIs(t, err, ac.ErrDuplicate, "a provider identity belongs to one user")

	provider := &ac.User{
		ID:        ac.NewID(),
		Provider:  "google",
		Passports: []*ac.Passport{{Protocol: "google", Identifier: "g-1"}},
	}
	_, err = s.CreateUser(ctx, provider)
	require.NoError(t, err)
	again := &ac.User{
		ID:        ac.NewID(),
		Provider:  "google",
		Passports: []*ac.Passport{{Protocol: "google", Identifier: "g-1"}},
	}
	_, err = s.CreateUser(ctx, again)
	assert.ErrorIs(t, err, ac.ErrDuplicate)

	user, err := s.FindUser(ctx, ac.UserFilter{ID: alice.ID, WithPassports: true})
	require.NoError(t, err)
	assert.Len(t, user.Passports, 2)
}

func testResetCode(t *testing.T, s Store) {
	ctx := context.Background()
	alice, err := s.CreateUser(ctx, localUser("alice", "alice@x.com"))
	require.NoError(t, err)

	_, err = s.FindPassportByCode(ctx, "")
	assert.ErrorIs(t, err, ac.ErrNotFound)

	p := alice.Passport(ac.ProviderLocal)
	issued := time.Now().UTC().Truncate(time.Second)
	p.ResetCode = "code-1"
	p.ResetCodeIssuedAt = &issued
	_, err = s.SavePassport(ctx, p)
	require.NoError(t, err)

	found, err := s.FindPassportByCode(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)
	require.NotNil(t, found.ResetCodeIssuedAt)
	assert.WithinDuration(t, issued, *found.ResetCodeIssuedAt, time.Second)

	user, err := s.RedeemResetCode(ctx, found, "redeemed-hash")
	require.NoError(t, err)
	assert.Equal(t, "redeemed-hash", user.PasswordHash)

	_, err = s.FindPassportByCode(ctx, "code-1")
	assert.ErrorIs(t, err, ac.ErrNotFound)

	_, err = s.RedeemResetCode(ctx, found, "second-hash")
	assert.ErrorIs(t, err, ac.ErrNotFound, "a code redeems once")

	stored, err := s.FindUser(ctx, ac.UserFilter{ID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, "redeemed-hash", stored.PasswordHash)
}

func testBootstrap(t *testing.T, s Store) {
	ctx := context.Background()
	first, granted, err := s.CreateUserBootstrap(ctx, localUser("alice", ""), ac.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.True(t, first.HasRole(ac.RoleAdmin))

	second, granted, err := s.CreateUserBootstrap(ctx, localUser("bob", ""), ac.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.False(t, second.HasRole(ac.RoleAdmin))

	_, _, err = s.CreateUserBootstrap(ctx, localUser("bob", ""), ac.RoleAdmin)
	assert.ErrorIs(t, err, ac.ErrDuplicate)
}

func testConcurrentBootstrap(t *testing.T, s Store) {
	ctx := context.Background()
	const n = 8

	var wg sync.WaitGroup
	granted := make([]bool, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, granted[i], errs[i] = s.CreateUserBootstrap(ctx, localUser(fmt.Sprintf("user%d", i), ""), ac.RoleAdmin)
		}(i)
	}
	wg.Wait()

	admins := 0
	for i := range granted {
		if errs[i] != nil && !errors.Is(errs[i], ac.ErrDuplicate) {
			require.NoError(t, errs[i])
		}
		if granted[i] {
			admins++
		}
	}
	assert.LessOrEqual(t, admins, 1)
}
