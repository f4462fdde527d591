package events

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	amqp "github.com/streadway/amqp"

	"storefront/internal/metrics"
	"storefront/internal/services"
)

// OrderEventHandler records order lifecycle events read from the queue.
type OrderEventHandler struct {
	log zerolog.Logger
}

// NewOrderEventHandler creates a new OrderEventHandler.
func NewOrderEventHandler(log zerolog.Logger) *OrderEventHandler {
	return &OrderEventHandler{log: log.With().Str("component", "order_events").Logger()}
}

// Handle decodes one delivery. Undecodable bodies are returned as errors so
// the consumer can reject them.
func (h *OrderEventHandler) Handle(msg amqp.Delivery) error {
	var event services.OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return fmt.Errorf("failed to decode order event: %w", err)
	}
	if event.Type == "" {
		event.Type = msg.RoutingKey
	}

	metrics.EventsConsumed.WithLabelValues(event.Type).Inc()
	h.log.Info().
		Str("event", event.Type).
		Str("order_id", event.OrderID).
		Str("user_id", event.UserID).
		Str("status", string(event.Status)).
		Str("total", event.TotalAmount.StringFixed(2)).
		Msg("order event received")
	return nil
}
