//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	ac "github.com/panyam/authcore"
	"github.com/panyam/authcore/stores/storetest"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection serializes transactions the way a real database would lock
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return NewStore(setupTestDB(t))
	})
}

func TestSeedRoles_Repeated(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, s.SeedRoles(ctx, ac.RoleAdmin, "member"))
	before, err := s.FindRoles(ctx, ac.RoleFilter{Name: ac.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, before, 1)

	require.NoError(t, s.SeedRoles(ctx, ac.RoleAdmin, "member", "auditor"))
	roles, err := s.FindRoles(ctx, ac.RoleFilter{})
	require.NoError(t, err)
	assert.Len(t, roles, 3)

	after, err := s.FindRoles(ctx, ac.RoleFilter{Name: ac.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID, "existing role keeps its id")
}

func TestBootstrapSentinel(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	ctx := context.Background()
	require.NoError(t, s.SeedRoles(ctx, ac.RoleAdmin))

	first := &ac.User{ID: ac.NewID(), Username: "alice", Provider: ac.ProviderLocal}
	_, granted, err := s.CreateUserBootstrap(ctx, first, ac.RoleAdmin)
	require.NoError(t, err)
	require.True(t, granted)

	var sentinel BootstrapModel
	require.NoError(t, db.First(&sentinel, "key = ?", firstUserKey).Error)
	assert.Equal(t, first.ID, sentinel.UserID)

	// a store emptied behind our back still never grants twice
	require.NoError(t, db.Exec("DELETE FROM user_roles").Error)
	require.NoError(t, db.Exec("DELETE FROM users").Error)
	_, granted, err = s.CreateUserBootstrap(ctx, &ac.User{ID: ac.NewID(), Username: "bob", Provider: ac.ProviderLocal}, ac.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestJSONMap(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan([]byte(`{"a":1}`)))
	assert.Equal(t, float64(1), m["a"])
	require.NoError(t, m.Scan(`{"b":"x"}`))
	assert.Equal(t, "x", m["b"])
	require.NoError(t, m.Scan(nil))
	assert.Nil(t, m)
	assert.Error(t, m.Scan(42))

	v, err := JSONMap(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
	v, err = JSONMap{"k": "v"}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, v.(string))
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(gorm.ErrRecordNotFound), ac.ErrNotFound)
	assert.ErrorIs(t, mapError(gorm.ErrDuplicatedKey), ac.ErrDuplicate)
	assert.Nil(t, mapError(nil))
}
