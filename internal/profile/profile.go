package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

// Storage keys.
const (
	KeyLoggedIn  = "IS_LOGGED_IN"
	KeyFirstName = "FIRSTNAME"
	KeyLastName  = "LASTNAME"
	KeyEmail     = "EMAIL"
	KeyPhone     = "PHONE_NUMBER"
	KeyAvatar    = "AVATAR"
)

var allKeys = []string{KeyLoggedIn, KeyFirstName, KeyLastName, KeyEmail, KeyPhone, KeyAvatar}

// ErrInvalidProfile is returned when onboarding fields fail validation.
var ErrInvalidProfile = errors.New("invalid profile")

// Profile holds the user's onboarding and profile fields.
type Profile struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Avatar      string `json:"avatar"`
	LoggedIn    bool   `json:"logged_in"`
}

// Initials returns the first letters of first and last name, used when no
// avatar is set.
func (p Profile) Initials() string {
	var sb strings.Builder
	for _, name := range []string{p.FirstName, p.LastName} {
		for _, r := range strings.TrimSpace(name) {
			sb.WriteRune(unicode.ToUpper(r))
			break
		}
	}
	return sb.String()
}

// Validate checks the fields required to complete onboarding.
func (p Profile) Validate() error {
	first := strings.TrimSpace(p.FirstName)
	if first == "" {
		return fmt.Errorf("%w: first name is required", ErrInvalidProfile)
	}
	for _, r := range first {
		if !unicode.IsLetter(r) && r != ' ' && r != '-' && r != '\'' {
			return fmt.Errorf("%w: first name may only contain letters", ErrInvalidProfile)
		}
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(p.Email))
	if err != nil || addr.Name != "" {
		return fmt.Errorf("%w: email %q is not valid", ErrInvalidProfile, p.Email)
	}
	return nil
}

// Store is a key-value store for the profile fields.
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store on a migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the value for key, or "" when it is not set.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM profile WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}

// Set stores a single value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.MultiSet(ctx, map[string]string{key: value})
}

// MultiSet stores several values in one transaction.
func (s *Store) MultiSet(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO profile (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("failed to write %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// Clear removes every profile key.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profile`); err != nil {
		return fmt.Errorf("failed to clear profile: %w", err)
	}
	return nil
}

// Load reads all profile fields.
func (s *Store) Load(ctx context.Context) (Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM profile`)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to load profile: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, len(allKeys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Profile{}, fmt.Errorf("failed to scan profile row: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return Profile{}, err
	}

	return Profile{
		FirstName:   values[KeyFirstName],
		LastName:    values[KeyLastName],
		Email:       values[KeyEmail],
		PhoneNumber: values[KeyPhone],
		Avatar:      values[KeyAvatar],
		LoggedIn:    values[KeyLoggedIn] == "true",
	}, nil
}

// IsLoggedIn reports whether onboarding was completed.
func (s *Store) IsLoggedIn(ctx context.Context) (bool, error) {
	v, err := s.Get(ctx, KeyLoggedIn)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// LogIn validates p, saves its fields and marks the user as logged in.
func (s *Store) LogIn(ctx context.Context, p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.MultiSet(ctx, map[string]string{
		KeyFirstName: strings.TrimSpace(p.FirstName),
		KeyLastName:  strings.TrimSpace(p.LastName),
		KeyEmail:     strings.TrimSpace(p.Email),
		KeyPhone:     strings.TrimSpace(p.PhoneNumber),
		KeyAvatar:    p.Avatar,
		KeyLoggedIn:  "true",
	})
}

// LogOut clears all profile data.
func (s *Store) LogOut(ctx context.Context) error {
	return s.Clear(ctx)
}
