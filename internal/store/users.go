package store

import (
	"context"
	"fmt"
	"strings"

	"kwetu-store/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateUser inserts the account, its profile and the customer role together.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string, fullName *string) (*models.User, error) {
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
	}

	err := s.WithTransaction(ctx, nil, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &user.CreatedAt, `
			INSERT INTO users (id, email, password_hash)
			VALUES ($1, $2, $3)
			RETURNING created_at`, user.ID, user.Email, user.PasswordHash)
		if err != nil {
			return classify(err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO profiles (id, email, full_name) VALUES ($1, $2, $3)",
			user.ID, user.Email, fullName)
		if err != nil {
			return classify(err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO user_roles (id, user_id, role) VALUES ($1, $2, $3)",
			uuid.New().String(), user.ID, models.RoleCustomer)
		return classify(err)
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// GetUserByEmail looks an account up by its (case-insensitive) email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT id, email, password_hash, created_at FROM users WHERE email = $1",
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, classify(err)
	}
	return &user, nil
}

// UpdatePasswordHash replaces a user's password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", hash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProfile retrieves a user's profile.
func (s *Store) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.GetContext(ctx, &p,
		"SELECT id, email, full_name, created_at FROM profiles WHERE id = $1", userID)
	if err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

// GetProfileByEmail finds a profile by email, ignoring case.
func (s *Store) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.GetContext(ctx, &p, `
		SELECT id, email, full_name, created_at FROM profiles
		WHERE lower(email) = lower($1)
		LIMIT 1`, strings.TrimSpace(email))
	if err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

// GetProfilesByIDs returns the profiles found for ids, keyed by id.
func (s *Store) GetProfilesByIDs(ctx context.Context, ids []string) (map[string]models.Profile, error) {
	out := make(map[string]models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In("SELECT id, email, full_name, created_at FROM profiles WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}

	var profiles []models.Profile
	if err := s.db.SelectContext(ctx, &profiles, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get profiles: %w", err)
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}

// IsAdmin reports whether the user holds the admin role.
func (s *Store) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)",
		userID, models.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("check admin role: %w", err)
	}
	return exists, nil
}

// ListAdmins returns admin role rows joined with profiles, newest grant first.
func (s *Store) ListAdmins(ctx context.Context) ([]models.UserRole, error) {
	admins := []models.UserRole{}
	err := s.db.SelectContext(ctx, &admins, `
		SELECT r.id, r.user_id, r.role, r.created_at, p.email, p.full_name
		FROM user_roles r
		LEFT JOIN profiles p ON p.id = r.user_id
		WHERE r.role = $1
		ORDER BY r.created_at DESC`, models.RoleAdmin)
	return admins, err
}

// GrantRole gives userID the role. Granting a role the user already has is a no-op
// and reports created=false.
func (s *Store) GrantRole(ctx context.Context, userID, role string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role) DO NOTHING`,
		uuid.New().String(), userID, role)
	if err != nil {
		return false, fmt.Errorf("grant %s: %w", role, classify(err))
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RevokeRole removes a role from userID.
func (s *Store) RevokeRole(ctx context.Context, userID, role string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM user_roles WHERE user_id = $1 AND role = $2", userID, role)
	if err != nil {
		return fmt.Errorf("revoke %s: %w", role, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
