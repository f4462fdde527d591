package services

import (
	"fmt"

	"storefront/internal/models"
)

// Principal is the authenticated caller of a service operation.
type Principal struct {
	UserID   string
	Username string
	Role     string
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

func requireAdmin(p Principal, action string) error {
	if !p.IsAdmin() {
		return fmt.Errorf("%w: admin role required to %s", ErrPermissionDenied, action)
	}
	return nil
}

func canViewOrder(p Principal, order *models.Order) error {
	if p.IsAdmin() || order.UserID == p.UserID {
		return nil
	}
	return fmt.Errorf("%w: order %s belongs to another user", ErrPermissionDenied, order.ID)
}

// canDeleteOrder lets admins delete anything and owners delete only orders
// that are still pending.
func canDeleteOrder(p Principal, order *models.Order) error {
	if p.IsAdmin() {
		return nil
	}
	if order.UserID != p.UserID {
		return fmt.Errorf("%w: order %s belongs to another user", ErrPermissionDenied, order.ID)
	}
	if order.Status != models.OrderStatusPending {
		return fmt.Errorf("%w: only pending orders can be deleted, order %s is %s", ErrPermissionDenied, order.ID, order.Status)
	}
	return nil
}
