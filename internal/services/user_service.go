package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

// UserUpdate is a partial user update made by an admin.
type UserUpdate struct {
	Email     *string `json:"email" validate:"omitempty,email,max=255"`
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	Role      *string `json:"role" validate:"omitempty,oneof=customer admin"`
}

// UserService handles account lookups and admin user management.
type UserService struct {
	repo repositories.UserRepository
	log  zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(repo repositories.UserRepository, log zerolog.Logger) *UserService {
	return &UserService{
		repo: repo,
		log:  log.With().Str("component", "user_service").Logger(),
	}
}

// GetUser returns a user. Non-admins may only read their own account.
func (s *UserService) GetUser(ctx context.Context, p Principal, id string) (*models.User, error) {
	if !p.IsAdmin() && p.UserID != id {
		return nil, fmt.Errorf("%w: cannot read another user's account", ErrPermissionDenied)
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(s.log, "get user", err)
	}
	return user, nil
}

// ListUsers returns a page of users. Admin only.
func (s *UserService) ListUsers(ctx context.Context, p Principal, offset, limit int) ([]models.User, error) {
	if err := requireAdmin(p, "list users"); err != nil {
		return nil, err
	}
	offset, limit = normalizePage(offset, limit)
	users, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, translate(s.log, "list users", err)
	}
	return users, nil
}

// UpdateUser applies a partial update. Admin only.
func (s *UserService) UpdateUser(ctx context.Context, p Principal, id string, in UserUpdate) (*models.User, error) {
	if err := requireAdmin(p, "update users"); err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(s.log, "get user", err)
	}

	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email != user.Email {
			if _, err := s.repo.GetByEmail(ctx, email); err == nil {
				return nil, fmt.Errorf("%w: email '%s' already registered", ErrAlreadyExists, email)
			} else if !errors.Is(err, repositories.ErrNotFound) {
				return nil, translate(s.log, "check email", err)
			}
			user.Email = email
		}
	}
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if in.Role != nil {
		if *in.Role != models.RoleAdmin && *in.Role != models.RoleCustomer {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *in.Role)
		}
		user.Role = *in.Role
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, translate(s.log, "update user", err)
	}
	return user, nil
}

// DeleteUser removes an account. Admin only; admins cannot delete themselves.
func (s *UserService) DeleteUser(ctx context.Context, p Principal, id string) error {
	if err := requireAdmin(p, "delete users"); err != nil {
		return err
	}
	if p.UserID == id {
		return fmt.Errorf("%w: cannot delete your own account", ErrInvalidInput)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return translate(s.log, "delete user", err)
	}
	s.log.Info().Str("user_id", id).Str("actor_id", p.UserID).Msg("user deleted")
	return nil
}
