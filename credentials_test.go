package authcore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	ac "github.com/panyam/authcore"
)

func TestIsEmail(t *testing.T) {
	for _, s := range []string{"a@b.co", "first.last+tag@sub.example.org"} {
		assert.True(t, ac.IsEmail(s), s)
	}
	for _, s := range []string{"", "alice", "alice@", "@example.com", "alice@localhost", "a b@c.com"} {
		assert.False(t, ac.IsEmail(s), s)
	}
}

func TestIdentifierFilter(t *testing.T) {
	f := ac.IdentifierFilter("bob@x.com")
	assert.Equal(t, "bob@x.com", f.Email)
	assert.Empty(t, f.Username)
	assert.Equal(t, ac.ProviderLocal, f.Provider)

	f = ac.IdentifierFilter("bob")
	assert.Equal(t, "bob", f.Username)
	assert.Empty(t, f.Email)
	assert.True(t, f.WithPassports)
}

func TestRegisterParamsFromMap(t *testing.T) {
	p := ac.RegisterParamsFromMap(map[string]any{
		"username": "alice",
		"email":    "Alice@X.com",
		"password": "pw",
		"lang":     "fr_FR",
		"template": "fancy",
		"provider": "github",
		"roles":    []any{"admin"},
		"nickname": "al",
	})
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "Alice@X.com", p.Email, "attributes are taken verbatim")
	assert.Equal(t, map[string]any{"nickname": "al"}, p.Extra)
}
