package service

import (
	"context"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/util"

	"go.uber.org/zap"
)

// AdminService manages who holds the admin role.
type AdminService struct {
	users  UserRepository
	events EventPublisher
	logger *zap.Logger
}

// NewAdminService creates a new admin role service
func NewAdminService(users UserRepository, events EventPublisher) *AdminService {
	return &AdminService{users: users, events: events, logger: util.Component("admin-roles")}
}

// ListAdmins returns current admins, most recently granted first.
func (s *AdminService) ListAdmins(ctx context.Context, capability auth.AdminCapability) ([]models.UserRole, error) {
	if err := requireAdmin(capability); err != nil {
		return nil, err
	}
	admins, err := s.users.ListAdmins(ctx)
	if err != nil {
		return nil, storeError(err, "admins")
	}
	return admins, nil
}

// GrantAdmin makes the user registered under email an admin. Granting twice is a no-op.
func (s *AdminService) GrantAdmin(ctx context.Context, capability auth.AdminCapability, email string) (*models.Profile, error) {
	if err := requireAdmin(capability); err != nil {
		return nil, err
	}
	if email == "" {
		return nil, apperr.Validation("Email is required")
	}

	profile, err := s.users.GetProfileByEmail(ctx, email)
	if err != nil {
		if appErr := storeError(err, "user"); apperr.HasCode(appErr, apperr.CodeNotFound) {
			return nil, apperr.NotFound("user with that email")
		}
		return nil, storeError(err, "user")
	}

	created, err := s.users.GrantRole(ctx, profile.ID, models.RoleAdmin)
	if err != nil {
		return nil, storeError(err, "user")
	}
	if !created {
		return profile, nil
	}

	s.logger.Info("Admin role granted", zap.String("user_id", profile.ID), zap.String("granted_by", capability.UserID()))
	event := &models.AdminRoleGrantedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeAdminRoleGranted),
		UserID:    profile.ID,
		Email:     profile.Email,
		GrantedBy: capability.UserID(),
	}
	if err := s.events.PublishAdminRoleGranted(ctx, event); err != nil {
		s.logger.Error("Failed to publish AdminRoleGranted event", zap.Error(err))
	}
	return profile, nil
}

// RevokeAdmin removes the admin role from userID. Admins cannot revoke themselves.
func (s *AdminService) RevokeAdmin(ctx context.Context, capability auth.AdminCapability, userID string) error {
	if err := requireAdmin(capability); err != nil {
		return err
	}
	if userID == capability.UserID() {
		return apperr.Rule(apperr.CodeSelfRevoke, "You cannot remove your own admin access")
	}
	if err := s.users.RevokeRole(ctx, userID, models.RoleAdmin); err != nil {
		return storeError(err, "admin")
	}
	s.logger.Info("Admin role revoked", zap.String("user_id", userID), zap.String("revoked_by", capability.UserID()))
	return nil
}
