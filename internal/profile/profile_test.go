package profile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"little-lemon/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "profile.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db.SQL)
}

func TestLoginGate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	loggedIn, err := s.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.False(t, loggedIn)

	p := Profile{FirstName: " Tilly ", LastName: "Lemon", Email: "tilly@littlelemon.test", PhoneNumber: "(312) 555-0100"}
	require.NoError(t, s.LogIn(ctx, p))

	loggedIn, err = s.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.True(t, loggedIn)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Tilly", loaded.FirstName)
	assert.Equal(t, "tilly@littlelemon.test", loaded.Email)
	assert.True(t, loaded.LoggedIn)
	assert.Equal(t, "TL", loaded.Initials())

	require.NoError(t, s.LogOut(ctx))
	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Profile{}, loaded)
}

func TestLoggedInOnlyForTrue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, KeyLoggedIn, "yes"))
	loggedIn, err := s.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.False(t, loggedIn)

	require.NoError(t, s.Set(ctx, KeyLoggedIn, "true"))
	loggedIn, err = s.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.True(t, loggedIn)
}

func TestSetOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, KeyAvatar, "file:///a.png"))
	require.NoError(t, s.Set(ctx, KeyAvatar, "file:///b.png"))

	v, err := s.Get(ctx, KeyAvatar)
	require.NoError(t, err)
	assert.Equal(t, "file:///b.png", v)

	missing, err := s.Get(ctx, KeyPhone)
	require.NoError(t, err)
	assert.Equal(t, "", missing)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		valid   bool
	}{
		{"Valid", Profile{FirstName: "Adrian", Email: "adrian@example.com"}, true},
		{"MissingName", Profile{Email: "adrian@example.com"}, false},
		{"DigitsInName", Profile{FirstName: "Adr1an", Email: "adrian@example.com"}, false},
		{"BadEmail", Profile{FirstName: "Adrian", Email: "adrian@"}, false},
		{"NamedAddress", Profile{FirstName: "Adrian", Email: "Adrian <adrian@example.com>"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidProfile), "expected ErrInvalidProfile, got %v", err)
			}
		})
	}
}

func TestLogInRejectsInvalidProfile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.LogIn(ctx, Profile{FirstName: "", Email: "x@example.com"})
	assert.True(t, errors.Is(err, ErrInvalidProfile))

	loggedIn, err := s.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.False(t, loggedIn)
}
