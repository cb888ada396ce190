package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/store"
	"kwetu-store/internal/util"

	"go.uber.org/zap"
)

// AuthService handles accounts, sign-in and password resets.
type AuthService struct {
	users    UserRepository
	tokens   ResetTokenStore
	events   EventPublisher
	jwt      *auth.JWTManager
	hasher   *auth.PasswordHasher
	resetTTL time.Duration
	logger   *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	users UserRepository,
	tokens ResetTokenStore,
	events EventPublisher,
	jwt *auth.JWTManager,
	hasher *auth.PasswordHasher,
	resetTTL time.Duration,
) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		events:   events,
		jwt:      jwt,
		hasher:   hasher,
		resetTTL: resetTTL,
		logger:   util.Component("auth"),
	}
}

// SignUpRequest is the body of a sign-up.
type SignUpRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name"`
}

// TokenResponse is returned on successful sign-in or sign-up.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	IsAdmin     bool      `json:"is_admin"`
}

// SessionInfo is the caller's profile and role.
type SessionInfo struct {
	Profile *models.Profile `json:"profile"`
	IsAdmin bool            `json:"is_admin"`
}

// SignUp creates a customer account and signs it in.
func (s *AuthService) SignUp(ctx context.Context, req SignUpRequest) (*TokenResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < auth.MinPasswordLength {
		return nil, apperr.Validation("Password must be at least 6 characters")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.CreateUser(ctx, email, hash, optional(req.FullName))
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.New(apperr.KindValidation, apperr.CodeEmailTaken, "An account with this email already exists")
		}
		return nil, storeError(err, "user")
	}

	s.logger.Info("User signed up", zap.String("user_id", user.ID))
	return s.issue(user.ID, user.Email, false)
}

// SignIn checks credentials and issues an access token.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*TokenResponse, error) {
	invalid := apperr.New(apperr.KindAuth, apperr.CodeInvalidCredentials, "Invalid email or password")

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalid
		}
		return nil, storeError(err, "user")
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, invalid
	}

	isAdmin, err := s.users.IsAdmin(ctx, user.ID)
	if err != nil {
		return nil, storeError(err, "user")
	}
	return s.issue(user.ID, user.Email, isAdmin)
}

// Authenticate resolves a bearer token into the request session.
func (s *AuthService) Authenticate(token string) (auth.Session, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		msg := "Invalid token"
		if errors.Is(err, auth.ErrExpiredToken) {
			msg = "Session expired, please sign in again"
		}
		return auth.Session{}, apperr.Wrap(apperr.KindAuth, apperr.CodeUnauthenticated, msg, err).WithRedirect("/auth")
	}
	return auth.Session{UserID: claims.UserID, Email: claims.Email}, nil
}

// Session returns the caller's profile and admin flag.
func (s *AuthService) Session(ctx context.Context, sess auth.Session) (*SessionInfo, error) {
	profile, err := s.users.GetProfile(ctx, sess.UserID)
	if err != nil {
		return nil, storeError(err, "profile")
	}
	isAdmin, err := s.users.IsAdmin(ctx, sess.UserID)
	if err != nil {
		return nil, storeError(err, "user")
	}
	return &SessionInfo{Profile: profile, IsAdmin: isAdmin}, nil
}

// RequestPasswordReset mails a reset token when the email is registered. The
// caller always sees success so registered emails cannot be probed.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("Password reset lookup failed", zap.Error(err))
		}
		return nil
	}

	token, err := newResetToken()
	if err != nil {
		s.logger.Error("Failed to generate reset token", zap.Error(err))
		return nil
	}
	if err := s.tokens.StoreResetToken(ctx, token, user.ID, s.resetTTL); err != nil {
		s.logger.Error("Failed to store reset token", zap.String("user_id", user.ID), zap.Error(err))
		return nil
	}

	event := &models.PasswordResetRequestedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePasswordResetRequested),
		UserID:    user.ID,
		Email:     user.Email,
		Token:     token,
	}
	if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
		s.logger.Error("Failed to publish PasswordResetRequested event", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	if len(password) < auth.MinPasswordLength {
		return apperr.Validation("Password must be at least 6 characters")
	}

	userID, err := s.tokens.ConsumeResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrResetTokenNotFound) {
			return apperr.New(apperr.KindValidation, apperr.CodeInvalidResetToken, "Reset link is invalid or has expired")
		}
		return apperr.External("Could not verify reset token", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return storeError(err, "user")
	}
	s.logger.Info("Password reset", zap.String("user_id", userID))
	return nil
}

func (s *AuthService) issue(userID, email string, isAdmin bool) (*TokenResponse, error) {
	token, expires, err := s.jwt.Generate(userID, email)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expires,
		UserID:      userID,
		IsAdmin:     isAdmin,
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Address != strings.TrimSpace(raw) {
		return "", apperr.Validation("A valid email address is required")
	}
	return strings.ToLower(addr.Address), nil
}

func newResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
