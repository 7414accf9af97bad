//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	ac "github.com/panyam/authcore"
)

// JSONMap is a helper type for storing JSON maps in GORM
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return fmt.Errorf("cannot scan %T into JSONMap", value)
}

// UserModel is the GORM model for users. Username and Email are nullable so
// provider-only users without them do not collide on the unique indexes.
type UserModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Username     *string   `gorm:"size:255;uniqueIndex"`
	Email        *string   `gorm:"size:320;uniqueIndex"`
	Provider     string    `gorm:"size:32;index"`
	PasswordHash string    `gorm:"size:255"`
	Locale       string    `gorm:"size:16"`
	Template     string    `gorm:"size:64"`
	Profile      JSONMap   `gorm:"type:jsonb"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

// RoleModel is the GORM model for roles
type RoleModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"size:64;uniqueIndex"`
	Description string `gorm:"size:255"`
}

func (RoleModel) TableName() string {
	return "roles"
}

// UserRoleModel joins users to roles
type UserRoleModel struct {
	UserID string `gorm:"primaryKey;size:64"`
	RoleID string `gorm:"primaryKey;size:64"`
}

func (UserRoleModel) TableName() string {
	return "user_roles"
}

// PassportModel is the GORM model for passports.
// (user_id, protocol) and (protocol, identifier) are both unique.
type PassportModel struct {
	ID                string     `gorm:"primaryKey;size:64"`
	UserID            string     `gorm:"size:64;uniqueIndex:idx_passport_user_protocol"`
	Protocol          string     `gorm:"size:32;uniqueIndex:idx_passport_user_protocol;uniqueIndex:idx_passport_protocol_identifier"`
	Identifier        *string    `gorm:"size:255;uniqueIndex:idx_passport_protocol_identifier"`
	ResetCode         *string    `gorm:"size:255;index"`
	ResetCodeIssuedAt *time.Time
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (PassportModel) TableName() string {
	return "passports"
}

// BootstrapModel holds the sentinel row claimed by the first registered user.
type BootstrapModel struct {
	Key       string    `gorm:"primaryKey;size:32"`
	UserID    string    `gorm:"size:64"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (BootstrapModel) TableName() string {
	return "bootstrap"
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (m *UserModel) ToUser() *ac.User {
	return &ac.User{
		ID:           m.ID,
		Username:     deref(m.Username),
		Email:        deref(m.Email),
		Provider:     m.Provider,
		PasswordHash: m.PasswordHash,
		Locale:       m.Locale,
		Template:     m.Template,
		Profile:      m.Profile,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func UserToModel(u *ac.User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Username:     nullable(u.Username),
		Email:        nullable(u.Email),
		Provider:     u.Provider,
		PasswordHash: u.PasswordHash,
		Locale:       u.Locale,
		Template:     u.Template,
		Profile:      u.Profile,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (m *RoleModel) ToRole() *ac.Role {
	return &ac.Role{ID: m.ID, Name: m.Name, Description: m.Description}
}

func (m *PassportModel) ToPassport() *ac.Passport {
	return &ac.Passport{
		ID:                m.ID,
		UserID:            m.UserID,
		Protocol:          m.Protocol,
		Identifier:        deref(m.Identifier),
		ResetCode:         deref(m.ResetCode),
		ResetCodeIssuedAt: m.ResetCodeIssuedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func PassportToModel(p *ac.Passport) *PassportModel {
	return &PassportModel{
		ID:                p.ID,
		UserID:            p.UserID,
		Protocol:          p.Protocol,
		Identifier:        nullable(p.Identifier),
		ResetCode:         nullable(p.ResetCode),
		ResetCodeIssuedAt: p.ResetCodeIssuedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
