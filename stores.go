package authcore

import (
	"context"
	"time"
)

const (
	// ProviderLocal marks users and passports that authenticate with a password.
	ProviderLocal = "local"

	// RoleAdmin is attached to the first user that registers.
	RoleAdmin = "admin"

	// RoleMember is the default role seeded alongside RoleAdmin.
	RoleMember = "member"
)

// User is a single logical identity, however many passports it authenticates with.
type User struct {
	ID           string         `json:"id"`
	Username     string         `json:"username,omitempty"`
	Email        string         `json:"email,omitempty"`
	Provider     string         `json:"provider"`
	PasswordHash string         `json:"-"`
	Locale       string         `json:"lang,omitempty"`
	Template     string         `json:"template,omitempty"`
	Profile      map[string]any `json:"profile,omitempty"`
	Roles        []*Role        `json:"roles,omitempty"`
	Passports    []*Passport    `json:"passports,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Passport returns the user's passport for protocol, or nil.
func (u *User) Passport(protocol string) *Passport {
	for _, p := range u.Passports {
		if p.Protocol == protocol {
			return p
		}
	}
	return nil
}

// HasRole reports whether a role with the given name is attached to the user.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Sanitized returns a copy of the user that is safe to hand to callers:
// no password hash and no reset codes.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.PasswordHash = ""
	if u.Passports != nil {
		out.Passports = make([]*Passport, len(u.Passports))
		for i, p := range u.Passports {
			cp := *p
			cp.ResetCode = ""
			cp.ResetCodeIssuedAt = nil
			out.Passports[i] = &cp
		}
	}
	return &out
}

// Role is an authorization label. Roles are seeded outside of this package
// and only ever attached to users.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Passport is a per-protocol credential record owned by exactly one user.
type Passport struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Protocol string `json:"protocol"`

	// Subject id at the provider. Empty for local passports.
	Identifier string `json:"identifier,omitempty"`

	ResetCode         string     `json:"-"`
	ResetCodeIssuedAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResetCodeExpired reports whether the passport's reset code is older than ttl.
// A non-positive ttl never expires; a code without issuance time is treated as expired.
func (p *Passport) ResetCodeExpired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	if p.ResetCodeIssuedAt == nil {
		return true
	}
	return now.After(p.ResetCodeIssuedAt.Add(ttl))
}

// UserFilter selects a single user. Empty fields are ignored.
type UserFilter struct {
	ID       string
	Username string
	Email    string
	Provider string

	WithPassports bool
	WithRoles     bool
}

// RoleFilter selects roles. An empty filter matches every role.
type RoleFilter struct {
	Name string
}

// Store persists users, roles and passports.
// Lookups return ErrNotFound when nothing matches; unique constraint violations
// are reported as ErrDuplicate.
type Store interface {
	FindUser(ctx context.Context, filter UserFilter) (*User, error)
	CountUsers(ctx context.Context) (int64, error)

	// CreateUser inserts the user along with user.Passports and user.Roles.
	CreateUser(ctx context.Context, user *User) (*User, error)

	// SaveUser updates user attributes and role assignments.
	SaveUser(ctx context.Context, user *User) (*User, error)

	FindRoles(ctx context.Context, filter RoleFilter) ([]*Role, error)
	FindPassportByCode(ctx context.Context, code string) (*Passport, error)
	FindPassport(ctx context.Context, protocol, identifier string) (*Passport, error)
	SavePassport(ctx context.Context, passport *Passport) (*Passport, error)

	// RedeemResetCode stores newHash on the passport's owner and clears the
	// passport's reset code in a single atomic write.
	RedeemResetCode(ctx context.Context, passport *Passport, newHash string) (*User, error)
}

// BootstrapStore is implemented by stores that can serialize the first
// registration. CreateUserBootstrap creates user and, only if no other user
// exists, attaches the role named adminRole. granted reports whether it did.
type BootstrapStore interface {
	CreateUserBootstrap(ctx context.Context, user *User, adminRole string) (created *User, granted bool, err error)
}
