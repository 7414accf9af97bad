package authcore

import (
	"context"
	"errors"
	"log/slog"
)

// Defaults applied to every registration.
const (
	DefaultLocale   = "en_US"
	DefaultTemplate = "standard"
)

// Registration creates local users. The very first user to register is
// granted the admin role.
type Registration struct {
	Store  Store
	Hasher PasswordHasher
	Tokens TokenIssuer
	Logger *slog.Logger

	DefaultLocale   string
	DefaultTemplate string

	// Name of the role attached to the first user. Defaults to RoleAdmin.
	AdminRole string
}

func NewRegistration(store Store, hasher PasswordHasher, tokens TokenIssuer) *Registration {
	return &Registration{Store: store, Hasher: hasher, Tokens: tokens}
}

func (r *Registration) getLocale() string {
	if r.DefaultLocale != "" {
		return r.DefaultLocale
	}
	return DefaultLocale
}

func (r *Registration) getTemplate() string {
	if r.DefaultTemplate != "" {
		return r.DefaultTemplate
	}
	return DefaultTemplate
}

func (r *Registration) getAdminRole() string {
	if r.AdminRole != "" {
		return r.AdminRole
	}
	return RoleAdmin
}

// Register creates a local user from params and returns a session for it.
//
// When the store implements BootstrapStore the first-user check and the role
// grant happen in one transaction. Otherwise the count and the grant are two
// separate calls and two concurrent first registrations may both become admin.
func (r *Registration) Register(ctx context.Context, params RegisterParams) (*Session, error) {
	if params.Password == "" {
		return nil, BadRequest(MsgInvalidPassword)
	}

	digest, err := r.Hasher.Hash(params.Password)
	if err != nil {
		return nil, InternalError(err)
	}
	user := r.newUser(params, digest)
	logger := loggerOrDefault(r.Logger)

	var created *User
	if bs, ok := r.Store.(BootstrapStore); ok {
		var granted bool
		created, granted, err = bs.CreateUserBootstrap(ctx, user, r.getAdminRole())
		if err != nil {
			return nil, storeError(err)
		}
		if granted {
			logger.InfoContext(ctx, "first user registered", "user", created.ID, "role", r.getAdminRole())
		}
		return newSession(r.Tokens, created)
	}

	count, err := r.Store.CountUsers(ctx)
	if err != nil {
		return nil, InternalError(err)
	}
	if count == 0 {
		roles, err := r.Store.FindRoles(ctx, RoleFilter{Name: r.getAdminRole()})
		if err != nil {
			return nil, InternalError(err)
		}
		if len(roles) == 0 {
			logger.WarnContext(ctx, "admin role not seeded, first user gets no role", "role", r.getAdminRole())
		} else {
			user.Roles = append(user.Roles, roles[0])
			logger.InfoContext(ctx, "first user registered", "role", r.getAdminRole())
		}
	}

	created, err = r.Store.CreateUser(ctx, user)
	if err != nil {
		return nil, storeError(err)
	}
	return newSession(r.Tokens, created)
}

func (r *Registration) newUser(params RegisterParams, digest string) *User {
	user := &User{
		ID:           NewID(),
		Username:     params.Username,
		Email:        params.Email,
		Provider:     ProviderLocal,
		PasswordHash: digest,
		Locale:       r.getLocale(),
		Template:     r.getTemplate(),
		Profile:      params.Extra,
	}
	user.Passports = []*Passport{{
		ID:       NewID(),
		UserID:   user.ID,
		Protocol: ProviderLocal,
	}}
	return user
}

func storeError(err error) error {
	if errors.Is(err, ErrDuplicate) {
		return NewAuthError(KindConflict, MsgIdentityTaken, err)
	}
	return InternalError(err)
}
