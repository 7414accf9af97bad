package authcore_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ac "github.com/panyam/authcore"
)

func TestJWTIssuer_RoundTrip(t *testing.T) {
	issuer := ac.NewJWTIssuer("secret", "authcore-Issuer", time.Hour)
	token, err := issuer.Issue(&ac.User{ID: "user-1"})
	require.NoError(t, err)

	userID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	var claims ac.Claims
	_, err = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "authcore-Issuer", claims.Issuer)
}

func TestJWTIssuer_Rejects(t *testing.T) {
	issuer := ac.NewJWTIssuer("secret", "iss", time.Hour)
	token, err := issuer.Issue(&ac.User{ID: "user-1"})
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		_, err := ac.NewJWTIssuer("other", "iss", time.Hour).Verify(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := ac.NewJWTIssuer("secret", "someone-else", time.Hour).Verify(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		late := ac.NewJWTIssuer("secret", "iss", time.Hour)
		late.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.Verify(token)
		assert.Error(t, err)
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1", Issuer: "iss"})
		s, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = issuer.Verify(s)
		assert.Error(t, err)
	})

	t.Run("no user", func(t *testing.T) {
		_, err := issuer.Issue(&ac.User{})
		assert.Error(t, err)
	})
}

func TestJWTIssuer_DefaultTTL(t *testing.T) {
	assert.Equal(t, ac.DefaultTokenTTL, ac.NewJWTIssuer("k", "", 0).TTL)
}

func TestGenerateResetCode_Unique(t *testing.T) {
	const draws = 10000
	seen := make(map[string]struct{}, draws)
	for i := 0; i < draws; i++ {
		code, err := ac.GenerateResetCode()
		require.NoError(t, err)
		require.Len(t, code, ac.ResetCodeBytes*2)
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate code after %d draws", i)
		}
		seen[code] = struct{}{}
	}
}
