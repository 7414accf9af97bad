package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	ac "github.com/panyam/authcore"
)

// Store implements authcore.Store with one JSON file per record.
//
// # File Structure
//
//	{StoragePath}/
//	├── users/{id}.json
//	├── passports/{id}.json
//	├── roles/{name}.json
//	└── bootstrap/first_user.json
//
// # Concurrency Model
//
// A single mutex serializes writers within the process, so CreateUserBootstrap
// and RedeemResetCode are atomic for one process. Several processes sharing a
// directory get last-write-wins semantics.
const firstUserKey = "first_user"

type Store struct {
	StoragePath string

	mu sync.RWMutex
}

func NewStore(storagePath string) *Store {
	return &Store{StoragePath: storagePath}
}

type userRecord struct {
	ID           string         `json:"id"`
	Username     string         `json:"username,omitempty"`
	Email        string         `json:"email,omitempty"`
	Provider     string         `json:"provider"`
	PasswordHash string         `json:"password_hash,omitempty"`
	Locale       string         `json:"lang,omitempty"`
	Template     string         `json:"template,omitempty"`
	Profile      map[string]any `json:"profile,omitempty"`
	RoleNames    []string       `json:"roles,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type passportRecord struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Protocol          string     `json:"protocol"`
	Identifier        string     `json:"identifier,omitempty"`
	ResetCode         string     `json:"reset_code,omitempty"`
	ResetCodeIssuedAt *time.Time `json:"reset_code_issued_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (s *Store) dir(kind string) string {
	return filepath.Join(s.StoragePath, kind)
}

func (s *Store) path(kind, id string) string {
	return filepath.Join(s.StoragePath, kind, id+".json")
}

// SeedRoles creates the named roles if they do not exist yet.
func (s *Store) SeedRoles(ctx context.Context, names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		path := s.path("roles", name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		role := &ac.Role{ID: ac.NewID(), Name: name}
		if err := writeJSON(path, role); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) FindUser(ctx context.Context, filter ac.UserFilter) (*ac.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.findUserRecord(filter)
	if err != nil {
		return nil, err
	}
	return s.toUser(rec, filter.WithPassports, filter.WithRoles)
}

func (s *Store) findUserRecord(filter ac.UserFilter) (*userRecord, error) {
	if filter.ID != "" {
		var rec userRecord
		if err := readJSON(s.path("users", filter.ID), &rec); err != nil {
			return nil, err
		}
		if matchUser(&rec, filter) {
			return &rec, nil
		}
		return nil, ac.ErrNotFound
	}
	users, err := s.allUsers()
	if err != nil {
		return nil, err
	}
	for _, rec := range users {
		if matchUser(rec, filter) {
			return rec, nil
		}
	}
	return nil, ac.ErrNotFound
}

func matchUser(rec *userRecord, f ac.UserFilter) bool {
	return (f.ID == "" || rec.ID == f.ID) &&
		(f.Username == "" || rec.Username == f.Username) &&
		(f.Email == "" || rec.Email == f.Email) &&
		(f.Provider == "" || rec.Provider == f.Provider)
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users, err := s.allUsers()
	return int64(len(users)), err
}

func (s *Store) CreateUser(ctx context.Context, user *ac.User) (*ac.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUser(user)
}

type bootstrapRecord struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateUserBootstrap creates user and grants adminRole if it is the first
// user. The grant writes bootstrap/first_user.json, which is never removed, so
// a directory emptied later does not grant again.
func (s *Store) CreateUserBootstrap(ctx context.Context, user *ac.User, adminRole string) (*ac.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sentinel := s.path("bootstrap", firstUserKey)
	if _, err := os.Stat(sentinel); err == nil {
		created, err := s.createUser(user)
		return created, false, err
	} else if !os.IsNotExist(err) {
		return nil, false, err
	}

	users, err := s.allUsers()
	if err != nil {
		return nil, false, err
	}
	var role ac.Role
	if len(users) > 0 {
		created, err := s.createUser(user)
		return created, false, err
	}
	if err := readJSON(s.path("roles", adminRole), &role); err == ac.ErrNotFound {
		created, err := s.createUser(user)
		return created, false, err
	} else if err != nil {
		return nil, false, err
	}

	if user.ID == "" {
		user.ID = ac.NewID()
	}
	if err := writeJSON(sentinel, bootstrapRecord{UserID: user.ID, CreatedAt: time.Now().UTC()}); err != nil {
		return nil, false, err
	}
	user.Roles = append(user.Roles, &role)
	created, err := s.createUser(user)
	if err != nil {
		os.Remove(sentinel)
		return nil, false, err
	}
	return created, true, nil
}

func (s *Store) createUser(user *ac.User) (*ac.User, error) {
	users, err := s.allUsers()
	if err != nil {
		return nil, err
	}
	for _, rec := range users {
		if rec.ID == user.ID ||
			(user.Username != "" && rec.Username == user.Username) ||
			(user.Email != "" && rec.Email == user.Email) {
			return nil, fmt.Errorf("user %s: %w", user.ID, ac.ErrDuplicate)
		}
	}
	for _, p := range user.Passports {
		if p.Identifier == "" {
			continue
		}
		if _, err := s.findPassport(p.Protocol, p.Identifier); err == nil {
			return nil, fmt.Errorf("passport %s/%s: %w", p.Protocol, p.Identifier, ac.ErrDuplicate)
		}
	}

	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = ac.NewID()
	}
	user.CreatedAt, user.UpdatedAt = now, now
	if err := writeJSON(s.path("users", user.ID), fromUser(user)); err != nil {
		return nil, err
	}
	for _, p := range user.Passports {
		p.UserID = user.ID
		if p.ID == "" {
			p.ID = ac.NewID()
		}
		p.CreatedAt, p.UpdatedAt = now, now
		if err := writeJSON(s.path("passports", p.ID), fromPassport(p)); err != nil {
			return nil, err
		}
	}
	return s.toUser(fromUser(user), true, true)
}

func (s *Store) SaveUser(ctx context.Context, user *ac.User) (*ac.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var existing userRecord
	if err := readJSON(s.path("users", user.ID), &existing); err != nil {
		return nil, err
	}
	if user.Username != existing.Username || user.Email != existing.Email {
		users, err := s.allUsers()
		if err != nil {
			return nil, err
		}
		for _, rec := range users {
			if rec.ID == user.ID {
				continue
			}
			if (user.Username != "" && rec.Username == user.Username) ||
				(user.Email != "" && rec.Email == user.Email) {
				return nil, fmt.Errorf("user %s: %w", user.ID, ac.ErrDuplicate)
			}
		}
	}
	rec := fromUser(user)
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	if err := writeJSON(s.path("users", user.ID), rec); err != nil {
		return nil, err
	}
	return s.toUser(rec, true, true)
}

func (s *Store) FindRoles(ctx context.Context, filter ac.RoleFilter) ([]*ac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if filter.Name != "" {
		var role ac.Role
		if err := readJSON(s.path("roles", filter.Name), &role); err != nil {
			if err == ac.ErrNotFound {
				return []*ac.Role{}, nil
			}
			return nil, err
		}
		return []*ac.Role{&role}, nil
	}
	var roles []*ac.Role
	err := eachFile(s.dir("roles"), func(data []byte) error {
		var role ac.Role
		if err := json.Unmarshal(data, &role); err != nil {
			return err
		}
		roles = append(roles, &role)
		return nil
	})
	return roles, err
}

func (s *Store) FindPassportByCode(ctx context.Context, code string) (*ac.Passport, error) {
	if code == "" {
		return nil, ac.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	passports, err := s.allPassports()
	if err != nil {
		return nil, err
	}
	for _, p := range passports {
		if p.ResetCode == code {
			return toPassport(p), nil
		}
	}
	return nil, ac.ErrNotFound
}

func (s *Store) FindPassport(ctx context.Context, protocol, identifier string) (*ac.Passport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.findPassport(protocol, identifier)
	if err != nil {
		return nil, err
	}
	return toPassport(rec), nil
}

func (s *Store) findPassport(protocol, identifier string) (*passportRecord, error) {
	passports, err := s.allPassports()
	if err != nil {
		return nil, err
	}
	for _, p := range passports {
		if p.Protocol == protocol && p.Identifier == identifier {
			return p, nil
		}
	}
	return nil, ac.ErrNotFound
}

func (s *Store) SavePassport(ctx context.Context, passport *ac.Passport) (*ac.Passport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	passports, err := s.allPassports()
	if err != nil {
		return nil, err
	}
	for _, p := range passports {
		if p.ID == passport.ID {
			continue
		}
		if p.UserID == passport.UserID && p.Protocol == passport.Protocol {
			return nil, fmt.Errorf("passport %s for user %s: %w", passport.Protocol, passport.UserID, ac.ErrDuplicate)
		}
		if passport.Identifier != "" && p.Protocol == passport.Protocol && p.Identifier == passport.Identifier {
			return nil, fmt.Errorf("passport %s/%s: %w", passport.Protocol, passport.Identifier, ac.ErrDuplicate)
		}
	}
	now := time.Now().UTC()
	if passport.ID == "" {
		passport.ID = ac.NewID()
	}
	if passport.CreatedAt.IsZero() {
		passport.CreatedAt = now
	}
	passport.UpdatedAt = now
	if err := writeJSON(s.path("passports", passport.ID), fromPassport(passport)); err != nil {
		return nil, err
	}
	return passport, nil
}

func (s *Store) RedeemResetCode(ctx context.Context, passport *ac.Passport, newHash string) (*ac.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current passportRecord
	if err := readJSON(s.path("passports", passport.ID), &current); err != nil {
		return nil, err
	}
	if current.ResetCode == "" || current.ResetCode != passport.ResetCode {
		return nil, ac.ErrNotFound
	}
	var user userRecord
	if err := readJSON(s.path("users", current.UserID), &user); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user.PasswordHash = newHash
	user.UpdatedAt = now
	current.ResetCode = ""
	current.ResetCodeIssuedAt = nil
	current.UpdatedAt = now
	// passport first: a crash in between leaves the old password and no code
	if err := writeJSON(s.path("passports", current.ID), &current); err != nil {
		return nil, err
	}
	if err := writeJSON(s.path("users", user.ID), &user); err != nil {
		return nil, err
	}
	return s.toUser(&user, true, true)
}

func (s *Store) allUsers() ([]*userRecord, error) {
	var out []*userRecord
	err := eachFile(s.dir("users"), func(data []byte) error {
		var rec userRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		out = append(out, &rec)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (s *Store) allPassports() ([]*passportRecord, error) {
	var out []*passportRecord
	err := eachFile(s.dir("passports"), func(data []byte) error {
		var rec passportRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		out = append(out, &rec)
		return nil
	})
	return out, err
}

func (s *Store) toUser(rec *userRecord, withPassports, withRoles bool) (*ac.User, error) {
	user := &ac.User{
		ID:           rec.ID,
		Username:     rec.Username,
		Email:        rec.Email,
		Provider:     rec.Provider,
		PasswordHash: rec.PasswordHash,
		Locale:       rec.Locale,
		Template:     rec.Template,
		Profile:      rec.Profile,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if withRoles {
		for _, name := range rec.RoleNames {
			var role ac.Role
			if err := readJSON(s.path("roles", name), &role); err != nil {
				if err == ac.ErrNotFound {
					continue
				}
				return nil, err
			}
			user.Roles = append(user.Roles, &role)
		}
	}
	if withPassports {
		passports, err := s.allPassports()
		if err != nil {
			return nil, err
		}
		for _, p := range passports {
			if p.UserID == rec.ID {
				user.Passports = append(user.Passports, toPassport(p))
			}
		}
	}
	return user, nil
}

func fromUser(u *ac.User) *userRecord {
	rec := &userRecord{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Provider:     u.Provider,
		PasswordHash: u.PasswordHash,
		Locale:       u.Locale,
		Template:     u.Template,
		Profile:      u.Profile,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	for _, r := range u.Roles {
		rec.RoleNames = append(rec.RoleNames, r.Name)
	}
	return rec
}

func fromPassport(p *ac.Passport) *passportRecord {
	return &passportRecord{
		ID:                p.ID,
		UserID:            p.UserID,
		Protocol:          p.Protocol,
		Identifier:        p.Identifier,
		ResetCode:         p.ResetCode,
		ResetCodeIssuedAt: p.ResetCodeIssuedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func toPassport(r *passportRecord) *ac.Passport {
	return &ac.Passport{
		ID:                r.ID,
		UserID:            r.UserID,
		Protocol:          r.Protocol,
		Identifier:        r.Identifier,
		ResetCode:         r.ResetCode,
		ResetCodeIssuedAt: r.ResetCodeIssuedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}
