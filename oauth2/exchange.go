package oauth2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ac "github.com/panyam/authcore"
)

// ErrEmailTaken is returned when a provider identity carries an unverified
// email that already belongs to another user.
var ErrEmailTaken = errors.New("email already registered with another login method")

// Exchange implements authcore.ProviderExchange. A provider identity maps to
// exactly one user through the (provider, subject id) passport; the store's
// uniqueness on that pair keeps concurrent first logins from creating two users.
type Exchange struct {
	Store     ac.Store
	Providers map[string]ProfileFetcher
	Logger    *slog.Logger

	DefaultLocale   string
	DefaultTemplate string
}

func NewExchange(store ac.Store) *Exchange {
	return &Exchange{Store: store, Providers: map[string]ProfileFetcher{}}
}

// Register makes provider available under name.
func (e *Exchange) Register(name string, fetcher ProfileFetcher) *Exchange {
	if e.Providers == nil {
		e.Providers = map[string]ProfileFetcher{}
	}
	e.Providers[name] = fetcher
	return e
}

func (e *Exchange) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Exchange) Connect(ctx context.Context, provider, accessToken string) (*ac.User, error) {
	fetcher, ok := e.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	profile, err := fetcher.FetchProfile(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user, err := e.resolve(ctx, provider, profile)
	if errors.Is(err, ac.ErrDuplicate) {
		// lost a race with a concurrent login of the same identity
		e.logger().InfoContext(ctx, "retrying provider link after conflict", "provider", provider, "subject", profile.ID)
		user, err = e.resolve(ctx, provider, profile)
	}
	return user, err
}

func (e *Exchange) resolve(ctx context.Context, provider string, profile *Profile) (*ac.User, error) {
	passport, err := e.Store.FindPassport(ctx, provider, profile.ID)
	if err == nil {
		return e.Store.FindUser(ctx, ac.UserFilter{ID: passport.UserID, WithPassports: true, WithRoles: true})
	}
	if !errors.Is(err, ac.ErrNotFound) {
		return nil, err
	}

	if profile.Email != "" {
		existing, err := e.Store.FindUser(ctx, ac.UserFilter{Email: profile.Email, WithPassports: true})
		if err == nil {
			if !profile.EmailVerified {
				return nil, ErrEmailTaken
			}
			return e.link(ctx, existing, provider, profile)
		}
		if !errors.Is(err, ac.ErrNotFound) {
			return nil, err
		}
	}
	return e.create(ctx, provider, profile)
}

// link attaches a new provider passport to an existing user.
func (e *Exchange) link(ctx context.Context, user *ac.User, provider string, profile *Profile) (*ac.User, error) {
	if p := user.Passport(provider); p != nil {
		return nil, fmt.Errorf("user %s is linked to a different %s account: %w", user.ID, provider, ac.ErrDuplicate)
	}
	_, err := e.Store.SavePassport(ctx, &ac.Passport{
		ID:         ac.NewID(),
		UserID:     user.ID,
		Protocol:   provider,
		Identifier: profile.ID,
	})
	if err != nil {
		return nil, err
	}
	e.logger().InfoContext(ctx, "linked provider identity", "provider", provider, "user", user.ID)
	return e.Store.FindUser(ctx, ac.UserFilter{ID: user.ID, WithPassports: true, WithRoles: true})
}

func (e *Exchange) create(ctx context.Context, provider string, profile *Profile) (*ac.User, error) {
	username := profile.Username
	if username != "" {
		if _, err := e.Store.FindUser(ctx, ac.UserFilter{Username: username}); err == nil {
			username = ""
		}
	}
	user := &ac.User{
		ID:       ac.NewID(),
		Username: username,
		Email:    profile.Email,
		Provider: provider,
		Locale:   e.DefaultLocale,
		Template: e.DefaultTemplate,
	}
	if user.Locale == "" {
		user.Locale = ac.DefaultLocale
	}
	if user.Template == "" {
		user.Template = ac.DefaultTemplate
	}
	if profile.Name != "" {
		user.Profile = map[string]any{"name": profile.Name}
	}
	user.Passports = []*ac.Passport{{
		ID:         ac.NewID(),
		UserID:     user.ID,
		Protocol:   provider,
		Identifier: profile.ID,
	}}
	created, err := e.Store.CreateUser(ctx, user)
	if err != nil {
		return nil, err
	}
	e.logger().InfoContext(ctx, "created user from provider identity", "provider", provider, "user", created.ID)
	return created, nil
}
