package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ac "github.com/panyam/authcore"
	"github.com/panyam/authcore/stores/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return NewStore(t.TempDir())
	})
}

func TestStore_Layout(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	ctx := context.Background()
	require.NoError(t, s.SeedRoles(ctx, ac.RoleAdmin))

	user, err := s.CreateUser(ctx, &ac.User{
		ID:           "u1",
		Username:     "alice",
		PasswordHash: "hash",
		Provider:     ac.ProviderLocal,
		Passports:    []*ac.Passport{{ID: "p1", Protocol: ac.ProviderLocal}},
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	for _, rel := range []string{"users/u1.json", "passports/p1.json", "roles/admin.json"} {
		_, err := os.Stat(filepath.Join(dir, rel))
		assert.NoError(t, err, rel)
	}

	data, err := os.ReadFile(filepath.Join(dir, "users/u1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"password_hash": "hash"`)
}

func TestStore_IgnoresStrayFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "users"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users", ".tmp-123"), []byte("partial"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users", "README"), []byte("notes"), 0644))

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	_, err := NewStore(dir).CreateUser(ctx, &ac.User{ID: "u1", Email: "a@x.com", Provider: ac.ProviderLocal})
	require.NoError(t, err)

	user, err := NewStore(dir).FindUser(ctx, ac.UserFilter{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestStore_BootstrapSentinel(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	ctx := context.Background()
	require.NoError(t, s.SeedRoles(ctx, ac.RoleAdmin))

	first := &ac.User{ID: "u1", Username: "alice", Provider: ac.ProviderLocal}
	_, granted, err := s.CreateUserBootstrap(ctx, first, ac.RoleAdmin)
	require.NoError(t, err)
	require.True(t, granted)

	var rec bootstrapRecord
	require.NoError(t, readJSON(filepath.Join(dir, "bootstrap", "first_user.json"), &rec))
	assert.Equal(t, "u1", rec.UserID)

	// an emptied users directory never grants again
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "users")))
	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	second, granted, err := s.CreateUserBootstrap(ctx, &ac.User{ID: "u2", Username: "bob", Provider: ac.ProviderLocal}, ac.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.False(t, second.HasRole(ac.RoleAdmin))
}

func TestStore_BootstrapFailedCreateReleasesSentinel(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	ctx := context.Background()
	require.NoError(t, s.SeedRoles(ctx, ac.RoleAdmin))
	_, err := s.SavePassport(ctx, &ac.Passport{ID: "p0", UserID: "other", Protocol: "github", Identifier: "gh-1"})
	require.NoError(t, err)

	clash := &ac.User{ID: "u1", Provider: "github", Passports: []*ac.Passport{{Protocol: "github", Identifier: "gh-1"}}}
	_, _, err = s.CreateUserBootstrap(ctx, clash, ac.RoleAdmin)
	require.ErrorIs(t, err, ac.ErrDuplicate)
	_, err = os.Stat(filepath.Join(dir, "bootstrap", "first_user.json"))
	assert.True(t, os.IsNotExist(err))

	_, granted, err := s.CreateUserBootstrap(ctx, &ac.User{ID: "u2", Username: "alice", Provider: ac.ProviderLocal}, ac.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, granted)
}
