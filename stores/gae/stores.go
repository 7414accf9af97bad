//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	ac "github.com/panyam/authcore"
)

// Kind constants for Datastore entities
const (
	KindUser      = "User"
	KindRole      = "Role"
	KindPassport  = "Passport"
	KindClaim     = "Claim"
	KindBootstrap = "Bootstrap"
)

const firstUserKey = "first_user"

// Store implements authcore.Store and authcore.BootstrapStore on Cloud Datastore.
// Uniqueness of usernames, emails and passports is enforced with Claim
// entities written in the same transaction as the records they guard.
type Store struct {
	client    *datastore.Client
	namespace string
}

// NewStore creates a Datastore-backed store in namespace ("" for the default).
func NewStore(client *datastore.Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace}
}

func (s *Store) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *Store) query(kind string) *datastore.Query {
	q := datastore.NewQuery(kind)
	if s.namespace != "" {
		q = q.Namespace(s.namespace)
	}
	return q
}

func mapError(err error) error {
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return ac.ErrNotFound
	}
	return err
}

func (s *Store) claimKeys(u *ac.User) map[string]*datastore.Key {
	keys := map[string]*datastore.Key{}
	if u.Username != "" {
		keys["username:"+u.Username] = s.namespacedKey(KindClaim, "username:"+u.Username)
	}
	if u.Email != "" {
		keys["email:"+u.Email] = s.namespacedKey(KindClaim, "email:"+u.Email)
	}
	return keys
}

func (s *Store) passportClaimKeys(p *ac.Passport) []*datastore.Key {
	keys := []*datastore.Key{
		s.namespacedKey(KindClaim, fmt.Sprintf("user-protocol:%s:%s", p.UserID, p.Protocol)),
	}
	if p.Identifier != "" {
		keys = append(keys, s.namespacedKey(KindClaim, fmt.Sprintf("passport:%s:%s", p.Protocol, p.Identifier)))
	}
	return keys
}

// claim reserves key for userID inside tx, failing with ErrDuplicate if
// another user holds it.
func claim(tx *datastore.Transaction, key *datastore.Key, userID string) error {
	var existing ClaimEntity
	err := tx.Get(key, &existing)
	if err == nil {
		if existing.UserID == userID {
			return nil
		}
		return fmt.Errorf("%s: %w", key.Name, ac.ErrDuplicate)
	}
	if !errors.Is(err, datastore.ErrNoSuchEntity) {
		return err
	}
	_, err = tx.Put(key, &ClaimEntity{UserID: userID, CreatedAt: time.Now()})
	return err
}

// SeedRoles creates the named roles if they do not exist yet.
func (s *Store) SeedRoles(ctx context.Context, names ...string) error {
	for _, name := range names {
		key := s.namespacedKey(KindRole, name)
		_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
			var existing RoleEntity
			err := tx.Get(key, &existing)
			if err == nil {
				return nil
			}
			if !errors.Is(err, datastore.ErrNoSuchEntity) {
				return err
			}
			_, err = tx.Put(key, &RoleEntity{RoleID: ac.NewID()})
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) FindUser(ctx context.Context, filter ac.UserFilter) (*ac.User, error) {
	userID := filter.ID
	for field, value := range map[string]string{"username": filter.Username, "email": filter.Email} {
		if value == "" {
			continue
		}
		var c ClaimEntity
		if err := s.client.Get(ctx, s.namespacedKey(KindClaim, field+":"+value), &c); err != nil {
			return nil, mapError(err)
		}
		if userID != "" && userID != c.UserID {
			return nil, ac.ErrNotFound
		}
		userID = c.UserID
	}
	if userID == "" {
		return nil, ac.ErrNotFound
	}

	key := s.namespacedKey(KindUser, userID)
	var entity UserEntity
	if err := s.client.Get(ctx, key, &entity); err != nil {
		return nil, mapError(err)
	}
	entity.Key = key
	if filter.Provider != "" && entity.Provider != filter.Provider {
		return nil, ac.ErrNotFound
	}
	return s.loadUser(ctx, &entity, filter.WithPassports, filter.WithRoles)
}

func (s *Store) loadUser(ctx context.Context, entity *UserEntity, withPassports, withRoles bool) (*ac.User, error) {
	user := entity.ToUser()
	if withRoles {
		for _, name := range entity.RoleNames {
			key := s.namespacedKey(KindRole, name)
			var role RoleEntity
			if err := s.client.Get(ctx, key, &role); err != nil {
				if errors.Is(err, datastore.ErrNoSuchEntity) {
					continue
				}
				return nil, err
			}
			role.Key = key
			user.Roles = append(user.Roles, role.ToRole())
		}
	}
	if withPassports {
		it := s.client.Run(ctx, s.query(KindPassport).FilterField("user_id", "=", user.ID))
		for {
			var p PassportEntity
			_, err := it.Next(&p)
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, err
			}
			user.Passports = append(user.Passports, p.ToPassport())
		}
	}
	return user, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	n, err := s.client.Count(ctx, s.query(KindUser).KeysOnly())
	return int64(n), err
}

func (s *Store) CreateUser(ctx context.Context, user *ac.User) (*ac.User, error) {
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		return s.createUser(tx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUserBootstrap grants adminRole to user only if no users exist and the
// first-user sentinel has not been claimed. The sentinel is written in the
// same transaction as the user.
func (s *Store) CreateUserBootstrap(ctx context.Context, user *ac.User, adminRole string) (*ac.User, bool, error) {
	count, err := s.CountUsers(ctx)
	if err != nil {
		return nil, false, err
	}
	granted := false
	baseRoles := user.Roles
	_, err = s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		user.Roles = baseRoles
		granted = false
		if count == 0 {
			sentinel := s.namespacedKey(KindBootstrap, firstUserKey)
			var c ClaimEntity
			err := tx.Get(sentinel, &c)
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				roleKey := s.namespacedKey(KindRole, adminRole)
				var role RoleEntity
				rerr := tx.Get(roleKey, &role)
				if rerr == nil {
					role.Key = roleKey
					if _, err := tx.Put(sentinel, &ClaimEntity{UserID: user.ID, CreatedAt: time.Now()}); err != nil {
						return err
					}
					user.Roles = append(user.Roles, role.ToRole())
					granted = true
				} else if !errors.Is(rerr, datastore.ErrNoSuchEntity) {
					return rerr
				}
			} else if err != nil {
				return err
			}
		}
		return s.createUser(tx, user)
	})
	if err != nil {
		return nil, false, err
	}
	return user, granted, nil
}

func (s *Store) createUser(tx *datastore.Transaction, user *ac.User) error {
	if user.ID == "" {
		user.ID = ac.NewID()
	}
	key := s.namespacedKey(KindUser, user.ID)
	var existing UserEntity
	if err := tx.Get(key, &existing); err == nil {
		return fmt.Errorf("user %s: %w", user.ID, ac.ErrDuplicate)
	} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
		return err
	}
	for _, k := range s.claimKeys(user) {
		if err := claim(tx, k, user.ID); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	if _, err := tx.Put(key, UserToEntity(user, key)); err != nil {
		return err
	}
	for _, p := range user.Passports {
		p.UserID = user.ID
		if p.ID == "" {
			p.ID = ac.NewID()
		}
		p.CreatedAt, p.UpdatedAt = now, now
		for _, k := range s.passportClaimKeys(p) {
			if err := claim(tx, k, user.ID); err != nil {
				return err
			}
		}
		pkey := s.namespacedKey(KindPassport, p.ID)
		if _, err := tx.Put(pkey, PassportToEntity(p, pkey)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveUser(ctx context.Context, user *ac.User) (*ac.User, error) {
	key := s.namespacedKey(KindUser, user.ID)
	var saved *UserEntity
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing UserEntity
		if err := tx.Get(key, &existing); err != nil {
			return mapError(err)
		}
		existing.Key = key
		old := existing.ToUser()
		oldClaims := s.claimKeys(old)
		newClaims := s.claimKeys(user)
		for name, k := range newClaims {
			if _, ok := oldClaims[name]; !ok {
				if err := claim(tx, k, user.ID); err != nil {
					return err
				}
			}
		}
		for name, k := range oldClaims {
			if _, ok := newClaims[name]; !ok {
				if err := tx.Delete(k); err != nil {
					return err
				}
			}
		}
		entity := UserToEntity(user, key)
		entity.CreatedAt = existing.CreatedAt
		entity.UpdatedAt = time.Now().UTC()
		if _, err := tx.Put(key, entity); err != nil {
			return err
		}
		saved = entity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadUser(ctx, saved, true, true)
}

func (s *Store) FindRoles(ctx context.Context, filter ac.RoleFilter) ([]*ac.Role, error) {
	if filter.Name != "" {
		key := s.namespacedKey(KindRole, filter.Name)
		var role RoleEntity
		err := s.client.Get(ctx, key, &role)
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return []*ac.Role{}, nil
		} else if err != nil {
			return nil, err
		}
		role.Key = key
		return []*ac.Role{role.ToRole()}, nil
	}
	var roles []*ac.Role
	it := s.client.Run(ctx, s.query(KindRole))
	for {
		var role RoleEntity
		_, err := it.Next(&role)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		roles = append(roles, role.ToRole())
	}
	return roles, nil
}

func (s *Store) findPassport(ctx context.Context, q *datastore.Query) (*ac.Passport, error) {
	it := s.client.Run(ctx, q.Limit(1))
	var entity PassportEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, ac.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entity.ToPassport(), nil
}

func (s *Store) FindPassportByCode(ctx context.Context, code string) (*ac.Passport, error) {
	if code == "" {
		return nil, ac.ErrNotFound
	}
	return s.findPassport(ctx, s.query(KindPassport).FilterField("reset_code", "=", code))
}

func (s *Store) FindPassport(ctx context.Context, protocol, identifier string) (*ac.Passport, error) {
	return s.findPassport(ctx, s.query(KindPassport).
		FilterField("protocol", "=", protocol).
		FilterField("identifier", "=", identifier))
}

func (s *Store) SavePassport(ctx context.Context, passport *ac.Passport) (*ac.Passport, error) {
	if passport.ID == "" {
		passport.ID = ac.NewID()
	}
	key := s.namespacedKey(KindPassport, passport.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing PassportEntity
		err := tx.Get(key, &existing)
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			passport.CreatedAt = time.Now().UTC()
		} else if err != nil {
			return err
		}
		for _, k := range s.passportClaimKeys(passport) {
			if err := claim(tx, k, passport.UserID); err != nil {
				return err
			}
		}
		passport.UpdatedAt = time.Now().UTC()
		_, err = tx.Put(key, PassportToEntity(passport, key))
		return err
	})
	if err != nil {
		return nil, err
	}
	return passport, nil
}

func (s *Store) RedeemResetCode(ctx context.Context, passport *ac.Passport, newHash string) (*ac.User, error) {
	pkey := s.namespacedKey(KindPassport, passport.ID)
	var user *UserEntity
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var p PassportEntity
		if err := tx.Get(pkey, &p); err != nil {
			return mapError(err)
		}
		p.Key = pkey
		if p.ResetCode == "" || p.ResetCode != passport.ResetCode {
			return ac.ErrNotFound
		}
		ukey := s.namespacedKey(KindUser, p.UserID)
		var u UserEntity
		if err := tx.Get(ukey, &u); err != nil {
			return mapError(err)
		}
		u.Key = ukey
		now := time.Now().UTC()
		u.PasswordHash = newHash
		u.UpdatedAt = now
		p.ResetCode = ""
		p.ResetCodeIssuedAt = time.Time{}
		p.UpdatedAt = now
		if _, err := tx.PutMulti([]*datastore.Key{pkey, ukey}, []any{&p, &u}); err != nil {
			return err
		}
		user = &u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadUser(ctx, user, true, true)
}
