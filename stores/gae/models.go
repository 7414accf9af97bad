//go:build !wasm
// +build !wasm

package gae

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/datastore"
	ac "github.com/panyam/authcore"
)

// UserEntity is the Datastore entity for users. Key name is the user id.
type UserEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	Username     string         `datastore:"username"`
	Email        string         `datastore:"email"`
	Provider     string         `datastore:"provider"`
	PasswordHash string         `datastore:"password_hash,noindex"`
	Locale       string         `datastore:"lang,noindex"`
	Template     string         `datastore:"template,noindex"`
	Profile      []byte         `datastore:"profile,noindex"` // JSON encoded
	RoleNames    []string       `datastore:"roles"`
	CreatedAt    time.Time      `datastore:"created_at"`
	UpdatedAt    time.Time      `datastore:"updated_at"`
}

// RoleEntity is the Datastore entity for roles. Key name is the role name.
type RoleEntity struct {
	Key         *datastore.Key `datastore:"__key__"`
	RoleID      string         `datastore:"id"`
	Description string         `datastore:"description,noindex"`
}

// PassportEntity is the Datastore entity for passports. Key name is the passport id.
type PassportEntity struct {
	Key               *datastore.Key `datastore:"__key__"`
	UserID            string         `datastore:"user_id"`
	Protocol          string         `datastore:"protocol"`
	Identifier        string         `datastore:"identifier"`
	ResetCode         string         `datastore:"reset_code"`
	ResetCodeIssuedAt time.Time      `datastore:"reset_code_issued_at,noindex"`
	CreatedAt         time.Time      `datastore:"created_at"`
	UpdatedAt         time.Time      `datastore:"updated_at"`
}

// ClaimEntity reserves a unique value (username, email, provider identity).
// Key name is "<field>:<value>".
type ClaimEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

func (e *UserEntity) ToUser() *ac.User {
	u := &ac.User{
		ID:           e.Key.Name,
		Username:     e.Username,
		Email:        e.Email,
		Provider:     e.Provider,
		PasswordHash: e.PasswordHash,
		Locale:       e.Locale,
		Template:     e.Template,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	if e.Profile != nil {
		json.Unmarshal(e.Profile, &u.Profile)
	}
	return u
}

func UserToEntity(u *ac.User, key *datastore.Key) *UserEntity {
	e := &UserEntity{
		Key:          key,
		Username:     u.Username,
		Email:        u.Email,
		Provider:     u.Provider,
		PasswordHash: u.PasswordHash,
		Locale:       u.Locale,
		Template:     u.Template,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.Profile != nil {
		e.Profile, _ = json.Marshal(u.Profile)
	}
	for _, r := range u.Roles {
		e.RoleNames = append(e.RoleNames, r.Name)
	}
	return e
}

func (e *RoleEntity) ToRole() *ac.Role {
	return &ac.Role{ID: e.RoleID, Name: e.Key.Name, Description: e.Description}
}

func (e *PassportEntity) ToPassport() *ac.Passport {
	p := &ac.Passport{
		ID:         e.Key.Name,
		UserID:     e.UserID,
		Protocol:   e.Protocol,
		Identifier: e.Identifier,
		ResetCode:  e.ResetCode,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
	if e.ResetCode != "" && !e.ResetCodeIssuedAt.IsZero() {
		issued := e.ResetCodeIssuedAt
		p.ResetCodeIssuedAt = &issued
	}
	return p
}

func PassportToEntity(p *ac.Passport, key *datastore.Key) *PassportEntity {
	e := &PassportEntity{
		Key:        key,
		UserID:     p.UserID,
		Protocol:   p.Protocol,
		Identifier: p.Identifier,
		ResetCode:  p.ResetCode,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.ResetCodeIssuedAt != nil {
		e.ResetCodeIssuedAt = *p.ResetCodeIssuedAt
	}
	return e
}
