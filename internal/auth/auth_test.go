package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestJWTManagerRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "kwetu-store", time.Hour)

	token, expires, err := m.Generate("user-1", "a@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
}

func TestJWTManagerRejectsBadTokens(t *testing.T) {
	m := NewJWTManager("secret", "kwetu-store", time.Hour)

	other := NewJWTManager("other-secret", "kwetu-store", time.Hour)
	token, _, err := other.Generate("user-1", "a@example.com")
	require.NoError(t, err)
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign := NewJWTManager("secret", "someone-else", time.Hour)
	token, _, err = foreign.Generate("user-1", "a@example.com")
	require.NoError(t, err)
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewJWTManager("secret", "kwetu-store", -time.Minute)
	token, _, err = expired.Generate("user-1", "a@example.com")
	require.NoError(t, err)
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = m.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("hunter22")
	require.NoError(t, err)
	assert.True(t, h.Verify("hunter22", hash))
	assert.False(t, h.Verify("hunter23", hash))

	assert.Equal(t, DefaultBcryptCost, NewPasswordHasher(0).cost)
}

type fakeChecker struct {
	admins map[string]bool
	err    error
}

func (f fakeChecker) IsAdmin(_ context.Context, userID string) (bool, error) {
	return f.admins[userID], f.err
}

func TestRequireAdmin(t *testing.T) {
	checker := fakeChecker{admins: map[string]bool{"admin-1": true}}

	capability, err := RequireAdmin(context.Background(), checker, Session{UserID: "admin-1"})
	require.NoError(t, err)
	assert.True(t, capability.Valid())
	assert.Equal(t, "admin-1", capability.UserID())

	_, err = RequireAdmin(context.Background(), checker, Session{UserID: "customer-1"})
	assert.ErrorIs(t, err, ErrNotAdmin)

	_, err = RequireAdmin(context.Background(), checker, Session{})
	assert.ErrorIs(t, err, ErrNotAdmin)

	boom := errors.New("db down")
	_, err = RequireAdmin(context.Background(), fakeChecker{err: boom}, Session{UserID: "admin-1"})
	assert.ErrorIs(t, err, boom)

	assert.False(t, AdminCapability{}.Valid())
}
