package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/models"
)

// Routing keys for order lifecycle events.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderDeleted       = "order.deleted"
)

// MessagePublisher sends an event body under a routing key.
type MessagePublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// OrderEvent is the message body of every order lifecycle event.
type OrderEvent struct {
	Type           string             `json:"type"`
	OrderID        string             `json:"order_id"`
	UserID         string             `json:"user_id"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previous_status,omitempty"`
	TotalAmount    decimal.Decimal    `json:"total_amount"`
	ItemCount      int                `json:"item_count"`
	ActorID        string             `json:"actor_id"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

func newOrderEvent(eventType string, order *models.Order, actor Principal, at time.Time) OrderEvent {
	return OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		ItemCount:   len(order.Items),
		ActorID:     actor.UserID,
		OccurredAt:  at.UTC(),
	}
}

func (e OrderEvent) marshal() ([]byte, error) {
	return json.Marshal(e)
}
