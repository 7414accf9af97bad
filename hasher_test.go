package authcore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	ac "github.com/panyam/authcore"
)

func TestBcryptHasher(t *testing.T) {
	h := ac.NewBcryptHasher(bcrypt.MinCost)
	digest, err := h.Hash("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", digest)

	assert.True(t, h.Verify("hunter2", digest))
	assert.False(t, h.Verify("hunter3", digest))
	assert.False(t, h.Verify("hunter2", ""))
	assert.False(t, h.NeedsRehash(digest))

	stronger := ac.NewBcryptHasher(bcrypt.MinCost + 1)
	assert.True(t, stronger.NeedsRehash(digest))
	assert.False(t, stronger.NeedsRehash("not a bcrypt hash"))
}

func TestBcryptHasher_InvalidCost(t *testing.T) {
	h := ac.NewBcryptHasher(0)
	digest, err := h.Hash("pw")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(digest))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}
