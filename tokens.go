package authcore

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default lifetimes
const (
	DefaultTokenTTL     = 30 * 24 * time.Hour
	DefaultResetCodeTTL = 1 * time.Hour
)

// ResetCodeBytes is the number of random bytes in a reset code (hex encoded on the wire).
const ResetCodeBytes = 64

// Session is the result of a successful authentication or registration.
// Nothing about it is persisted.
type Session struct {
	Token string `json:"jwt"`
	User  *User  `json:"user"`
}

// TokenIssuer signs bearer tokens for users.
type TokenIssuer interface {
	Issue(user *User) (string, error)
}

// TokenVerifier checks a bearer token and returns the user id it was issued for.
type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}

// Claims carried by tokens from JWTIssuer.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
}

// JWTIssuer signs HS256 tokens. It holds no state beyond its key and clock
// and is safe for concurrent use.
type JWTIssuer struct {
	SecretKey []byte
	Issuer    string
	TTL       time.Duration
	Now       func() time.Time
}

func NewJWTIssuer(secret, issuer string, ttl time.Duration) *JWTIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTIssuer{SecretKey: []byte(secret), Issuer: issuer, TTL: ttl}
}

func (j *JWTIssuer) Issue(user *User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("cannot issue token without a user id")
	}
	now := clockOrDefault(j.Now)()
	claims := Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    j.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.SecretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (j *JWTIssuer) Verify(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(clockOrDefault(j.Now)),
	}
	if j.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.Issuer))
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return j.SecretKey, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("subject not found")
	}
	return claims.Subject, nil
}

// CodeGenerator produces opaque single-use codes.
type CodeGenerator func() (string, error)

// GenerateResetCode returns ResetCodeBytes of crypto/rand output, hex encoded.
func GenerateResetCode() (string, error) {
	b := make([]byte, ResetCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
