//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	ac "github.com/panyam/authcore"
)

const firstUserKey = "first_user"

// AutoMigrate runs database migrations for all authcore tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&RoleModel{},
		&UserRoleModel{},
		&PassportModel{},
		&BootstrapModel{},
	)
}

// Store implements authcore.Store and authcore.BootstrapStore using GORM
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// mapError translates gorm errors into the authcore store sentinels.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ac.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return fmt.Errorf("%w: %v", ac.ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

// SeedRoles creates the named roles if they do not exist yet.
func (s *Store) SeedRoles(ctx context.Context, names ...string) error {
	for _, name := range names {
		var role RoleModel
		err := s.db.WithContext(ctx).
			Where(RoleModel{Name: name}).
			Attrs(RoleModel{ID: ac.NewID()}).
			FirstOrCreate(&role).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) FindUser(ctx context.Context, filter ac.UserFilter) (*ac.User, error) {
	db := s.db.WithContext(ctx)
	q := db.Model(&UserModel{})
	if filter.ID != "" {
		q = q.Where("id = ?", filter.ID)
	}
	if filter.Username != "" {
		q = q.Where("username = ?", filter.Username)
	}
	if filter.Email != "" {
		q = q.Where("email = ?", filter.Email)
	}
	if filter.Provider != "" {
		q = q.Where("provider = ?", filter.Provider)
	}
	var model UserModel
	if err := q.First(&model).Error; err != nil {
		return nil, mapError(err)
	}
	return loadUser(db, &model, filter.WithPassports, filter.WithRoles)
}

func loadUser(db *gorm.DB, model *UserModel, withPassports, withRoles bool) (*ac.User, error) {
	user := model.ToUser()
	if withPassports {
		var passports []PassportModel
		if err := db.Where("user_id = ?", model.ID).Order("created_at").Find(&passports).Error; err != nil {
			return nil, err
		}
		for i := range passports {
			user.Passports = append(user.Passports, passports[i].ToPassport())
		}
	}
	if withRoles {
		var roles []RoleModel
		err := db.Model(&RoleModel{}).
			Joins("JOIN user_roles ON user_roles.role_id = roles.id").
			Where("user_roles.user_id = ?", model.ID).
			Order("roles.name").
			Find(&roles).Error
		if err != nil {
			return nil, err
		}
		for i := range roles {
			user.Roles = append(user.Roles, roles[i].ToRole())
		}
	}
	return user, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&UserModel{}).Count(&count).Error
	return count, err
}

func (s *Store) CreateUser(ctx context.Context, user *ac.User) (*ac.User, error) {
	var out *ac.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = createUser(tx, user)
		return err
	})
	return out, mapError(err)
}

// CreateUserBootstrap creates user and, if the users table was empty, claims
// the first-user sentinel row and attaches adminRole. Concurrent callers that
// lose the sentinel insert are created without the role.
func (s *Store) CreateUserBootstrap(ctx context.Context, user *ac.User, adminRole string) (*ac.User, bool, error) {
	var out *ac.User
	granted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&UserModel{}).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			var role RoleModel
			err := tx.Where("name = ?", adminRole).First(&role).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err == nil {
				// savepoint so a lost race does not abort the outer transaction
				claim := tx.Transaction(func(tx2 *gorm.DB) error {
					return tx2.Create(&BootstrapModel{Key: firstUserKey, UserID: user.ID}).Error
				})
				if claim == nil {
					user.Roles = append(user.Roles, role.ToRole())
					granted = true
				} else if !errors.Is(mapError(claim), ac.ErrDuplicate) {
					return claim
				}
			}
		}
		var err error
		out, err = createUser(tx, user)
		return err
	})
	if err != nil {
		return nil, false, mapError(err)
	}
	return out, granted, nil
}

func createUser(tx *gorm.DB, user *ac.User) (*ac.User, error) {
	if user.ID == "" {
		user.ID = ac.NewID()
	}
	model := UserToModel(user)
	if err := tx.Create(model).Error; err != nil {
		return nil, err
	}
	for _, p := range user.Passports {
		p.UserID = model.ID
		if p.ID == "" {
			p.ID = ac.NewID()
		}
		if err := tx.Create(PassportToModel(p)).Error; err != nil {
			return nil, err
		}
	}
	for _, r := range user.Roles {
		if err := tx.Create(&UserRoleModel{UserID: model.ID, RoleID: r.ID}).Error; err != nil {
			return nil, err
		}
	}
	return loadUser(tx, model, true, true)
}

func (s *Store) SaveUser(ctx context.Context, user *ac.User) (*ac.User, error) {
	var out *ac.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := UserToModel(user)
		res := tx.Model(&UserModel{ID: user.ID}).
			Select("username", "email", "provider", "password_hash", "locale", "template", "profile").
			Updates(model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&UserRoleModel{}).Error; err != nil {
			return err
		}
		for _, r := range user.Roles {
			if err := tx.Create(&UserRoleModel{UserID: user.ID, RoleID: r.ID}).Error; err != nil {
				return err
			}
		}
		var saved UserModel
		if err := tx.First(&saved, "id = ?", user.ID).Error; err != nil {
			return err
		}
		var err error
		out, err = loadUser(tx, &saved, true, true)
		return err
	})
	return out, mapError(err)
}

func (s *Store) FindRoles(ctx context.Context, filter ac.RoleFilter) ([]*ac.Role, error) {
	q := s.db.WithContext(ctx).Model(&RoleModel{})
	if filter.Name != "" {
		q = q.Where("name = ?", filter.Name)
	}
	var models []RoleModel
	if err := q.Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	roles := make([]*ac.Role, len(models))
	for i := range models {
		roles[i] = models[i].ToRole()
	}
	return roles, nil
}

func (s *Store) FindPassportByCode(ctx context.Context, code string) (*ac.Passport, error) {
	if code == "" {
		return nil, ac.ErrNotFound
	}
	var model PassportModel
	if err := s.db.WithContext(ctx).First(&model, "reset_code = ?", code).Error; err != nil {
		return nil, mapError(err)
	}
	return model.ToPassport(), nil
}

func (s *Store) FindPassport(ctx context.Context, protocol, identifier string) (*ac.Passport, error) {
	var model PassportModel
	err := s.db.WithContext(ctx).First(&model, "protocol = ? AND identifier = ?", protocol, identifier).Error
	if err != nil {
		return nil, mapError(err)
	}
	return model.ToPassport(), nil
}

func (s *Store) SavePassport(ctx context.Context, passport *ac.Passport) (*ac.Passport, error) {
	if passport.ID == "" {
		passport.ID = ac.NewID()
	}
	model := PassportToModel(passport)
	if err := s.db.WithContext(ctx).Save(model).Error; err != nil {
		return nil, mapError(err)
	}
	return model.ToPassport(), nil
}

// RedeemResetCode clears the code only if it still matches, then stores the
// new hash, all in one transaction.
func (s *Store) RedeemResetCode(ctx context.Context, passport *ac.Passport, newHash string) (*ac.User, error) {
	if passport.ResetCode == "" {
		return nil, ac.ErrNotFound
	}
	var out *ac.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&PassportModel{}).
			Where("id = ? AND reset_code = ?", passport.ID, passport.ResetCode).
			Updates(map[string]any{
				"reset_code":           nil,
				"reset_code_issued_at": nil,
				"updated_at":           time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		res = tx.Model(&UserModel{}).Where("id = ?", passport.UserID).Update("password_hash", newHash)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		var user UserModel
		if err := tx.First(&user, "id = ?", passport.UserID).Error; err != nil {
			return err
		}
		var err error
		out, err = loadUser(tx, &user, true, true)
		return err
	})
	return out, mapError(err)
}
