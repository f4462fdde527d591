package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storefront/internal/models"
)

func TestOrderAccessRules(t *testing.T) {
	owner := Principal{UserID: "owner", Role: models.RoleCustomer}
	other := Principal{UserID: "other", Role: models.RoleCustomer}
	admin := Principal{UserID: "admin", Role: models.RoleAdmin}

	order := func(status models.OrderStatus) *models.Order {
		return &models.Order{ID: "o1", UserID: "owner", Status: status}
	}

	tests := []struct {
		name      string
		principal Principal
		status    models.OrderStatus
		viewErr   bool
		deleteErr bool
	}{
		{"owner pending", owner, models.OrderStatusPending, false, false},
		{"owner confirmed", owner, models.OrderStatusConfirmed, false, true},
		{"owner cancelled", owner, models.OrderStatusCancelled, false, true},
		{"stranger pending", other, models.OrderStatusPending, true, true},
		{"admin shipped", admin, models.OrderStatusShipped, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := order(tt.status)
			if tt.viewErr {
				assert.ErrorIs(t, canViewOrder(tt.principal, o), ErrPermissionDenied)
			} else {
				assert.NoError(t, canViewOrder(tt.principal, o))
			}
			if tt.deleteErr {
				assert.ErrorIs(t, canDeleteOrder(tt.principal, o), ErrPermissionDenied)
			} else {
				assert.NoError(t, canDeleteOrder(tt.principal, o))
			}
		})
	}
}

func TestNormalizePage(t *testing.T) {
	offset, limit := normalizePage(-5, 0)
	assert.Equal(t, 0, offset)
	assert.Equal(t, DefaultPageSize, limit)

	_, limit = normalizePage(0, 1000)
	assert.Equal(t, MaxPageSize, limit)

	offset, limit = normalizePage(20, 25)
	assert.Equal(t, 20, offset)
	assert.Equal(t, 25, limit)
}
