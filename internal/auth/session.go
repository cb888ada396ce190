// Package auth holds credentials, tokens and the per-request session.
package auth

import (
	"context"
	"errors"
)

// ErrNotAdmin is returned when an admin capability is requested for a non-admin.
var ErrNotAdmin = errors.New("user is not an admin")

// Session identifies the authenticated caller of one request.
type Session struct {
	UserID string
	Email  string
}

// AdminCapability proves that the admin check passed for this request's user.
// The zero value grants nothing; only RequireAdmin hands out a valid one.
type AdminCapability struct {
	userID string
}

// UserID is the admin the capability was issued to.
func (c AdminCapability) UserID() string {
	return c.userID
}

// Valid reports whether the capability came from a successful check.
func (c AdminCapability) Valid() bool {
	return c.userID != ""
}

// AdminChecker answers whether a user holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// RequireAdmin runs the admin check once and returns the capability on success.
func RequireAdmin(ctx context.Context, checker AdminChecker, s Session) (AdminCapability, error) {
	if s.UserID == "" {
		return AdminCapability{}, ErrNotAdmin
	}
	ok, err := checker.IsAdmin(ctx, s.UserID)
	if err != nil {
		return AdminCapability{}, err
	}
	if !ok {
		return AdminCapability{}, ErrNotAdmin
	}
	return AdminCapability{userID: s.UserID}, nil
}
