package authcore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// LocalAuth verifies an identifier (username or email) and password against
// users that have a local passport.
type LocalAuth struct {
	Store  Store
	Hasher PasswordHasher
	Tokens TokenIssuer
	Logger *slog.Logger

	// When set, hashes produced with a stale cost are upgraded after a successful login.
	RehashOnLogin bool

	dummyOnce sync.Once
	dummyHash string
}

func NewLocalAuth(store Store, hasher PasswordHasher, tokens TokenIssuer) *LocalAuth {
	return &LocalAuth{Store: store, Hasher: hasher, Tokens: tokens, RehashOnLogin: true}
}

// AuthenticateLocal returns a session for the user matching identifier and password.
// Unknown identifiers and wrong passwords fail with the same AuthFailed error.
func (a *LocalAuth) AuthenticateLocal(ctx context.Context, identifier, password string) (*Session, error) {
	if identifier == "" {
		return nil, BadRequest(MsgMissingIdentifier)
	}
	if password == "" {
		return nil, BadRequest(MsgMissingPassword)
	}

	user, err := a.Store.FindUser(ctx, IdentifierFilter(identifier))
	if errors.Is(err, ErrNotFound) {
		user = nil
	} else if err != nil {
		return nil, InternalError(err)
	}

	if user == nil || user.Passport(ProviderLocal) == nil || user.PasswordHash == "" {
		// burn a comparison so unknown users cost the same as wrong passwords
		a.Hasher.Verify(password, a.fallbackHash())
		return nil, AuthFailed(MsgInvalidCredentials)
	}
	if !a.Hasher.Verify(password, user.PasswordHash) {
		return nil, AuthFailed(MsgInvalidCredentials)
	}

	if a.RehashOnLogin && a.Hasher.NeedsRehash(user.PasswordHash) {
		a.rehash(ctx, user, password)
	}
	return newSession(a.Tokens, user)
}

func (a *LocalAuth) rehash(ctx context.Context, user *User, password string) {
	logger := loggerOrDefault(a.Logger)
	digest, err := a.Hasher.Hash(password)
	if err != nil {
		logger.WarnContext(ctx, "rehash failed", "user", user.ID, "error", err)
		return
	}
	user.PasswordHash = digest
	if _, err := a.Store.SaveUser(ctx, user); err != nil {
		logger.WarnContext(ctx, "saving rehashed password failed", "user", user.ID, "error", err)
	}
}

func (a *LocalAuth) fallbackHash() string {
	a.dummyOnce.Do(func() {
		a.dummyHash, _ = a.Hasher.Hash("authcore-placeholder-password")
	})
	return a.dummyHash
}
