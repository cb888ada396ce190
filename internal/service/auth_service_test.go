package service

import (
	"context"
	"testing"
	"time"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuthFixture() (*AuthService, *fakeUsers, *fakeTokens, *fakeEvents) {
	users := newFakeUsers()
	tokens := &fakeTokens{}
	events := &fakeEvents{}
	svc := NewAuthService(users, tokens, events,
		auth.NewJWTManager("test-secret", "kwetu-store", time.Hour),
		auth.NewPasswordHasher(bcrypt.MinCost),
		time.Hour)
	return svc, users, tokens, events
}

func TestAuthService_SignUpAndSignIn(t *testing.T) {
	svc, _, _, _ := newAuthFixture()
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, SignUpRequest{Email: "Ama@Example.com", Password: "secret1", FullName: "Ama"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.False(t, resp.IsAdmin)

	sess, err := svc.Authenticate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ama@example.com", sess.Email)

	_, err = svc.SignUp(ctx, SignUpRequest{Email: "ama@example.com", Password: "another"})
	assert.True(t, apperr.HasCode(err, apperr.CodeEmailTaken))

	signedIn, err := svc.SignIn(ctx, "ama@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, signedIn.UserID)

	_, err = svc.SignIn(ctx, "ama@example.com", "wrong-password")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
	_, err = svc.SignIn(ctx, "ghost@example.com", "secret1")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
}

func TestAuthService_SignUpValidation(t *testing.T) {
	svc, _, _, _ := newAuthFixture()
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpRequest{Email: "not-an-email", Password: "secret1"})
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidInput))

	_, err = svc.SignUp(ctx, SignUpRequest{Email: "ama@example.com", Password: "12345"})
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidInput))
}

func TestAuthService_Authenticate(t *testing.T) {
	svc, _, _, _ := newAuthFixture()

	_, err := svc.Authenticate("garbage")
	appErr, ok := apperr.From(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeUnauthenticated, appErr.Code)
	assert.Equal(t, "/auth", appErr.Redirect)
}

func TestAuthService_PasswordReset(t *testing.T) {
	svc, _, tokens, events := newAuthFixture()
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpRequest{Email: "ama@example.com", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "ghost@example.com"))
	assert.Empty(t, events.resets)

	require.NoError(t, svc.RequestPasswordReset(ctx, "ama@example.com"))
	require.Len(t, events.resets, 1)
	token := events.resets[0].Token
	assert.Len(t, token, 64)
	assert.Contains(t, tokens.tokens, token)

	err = svc.ResetPassword(ctx, token, "short")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidInput))

	require.NoError(t, svc.ResetPassword(ctx, token, "new-secret"))
	err = svc.ResetPassword(ctx, token, "new-secret")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidResetToken))

	_, err = svc.SignIn(ctx, "ama@example.com", "secret1")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
	_, err = svc.SignIn(ctx, "ama@example.com", "new-secret")
	assert.NoError(t, err)
}
