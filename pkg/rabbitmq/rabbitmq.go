package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	amqp "github.com/streadway/amqp"
)

// ErrChannelClosed is returned when the client has no usable channel.
var ErrChannelClosed = errors.New("rabbitmq channel is not available")

// Config holds RabbitMQ connection and topology details.
type Config struct {
	URL string
	// Exchange is a durable topic exchange events are published to.
	Exchange string
	// Queue is bound to Exchange with BindingKey and read by Consume.
	Queue      string
	BindingKey string
	// OnBreakerStateChange, when set, is called on every breaker transition.
	OnBreakerStateChange func(name string, from, to gobreaker.State)
}

// Client holds the RabbitMQ connection and channel. Publishing goes through
// a circuit breaker so a broker outage fails fast instead of stalling
// requests.
type Client struct {
	cfg     Config
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger

	dial     func(cfg Config) (*amqp.Connection, *amqp.Channel, error)
	retryMin time.Duration
	retryMax time.Duration
}

// NewClient connects to RabbitMQ and declares the exchange, the queue and
// their binding.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.BindingKey == "" {
		cfg.BindingKey = "#"
	}

	c := newClient(cfg, log)
	conn, ch, err := c.dial(c.cfg)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.channel = ch
	c.log.Info().Str("exchange", cfg.Exchange).Str("queue", cfg.Queue).Msg("rabbitmq client connected")
	return c, nil
}

func newClient(cfg Config, log zerolog.Logger) *Client {
	return &Client{
		cfg:     cfg,
		breaker:  newBreaker("rabbitmq-publish", cfg.OnBreakerStateChange, log),
		log:      log.With().Str("component", "rabbitmq").Logger(),
		dial:     dial,
		retryMin: time.Second,
		retryMax: 30 * time.Second,
	}
}

// dial opens a connection and a channel with the topology declared.
func dial(cfg Config) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// reconnect replaces the connection and channel with fresh ones.
func (c *Client) reconnect() error {
	conn, ch, err := c.dial(c.cfg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	oldConn, oldCh := c.conn, c.channel
	c.conn, c.channel = conn, ch
	c.mu.Unlock()

	if oldCh != nil {
		_ = oldCh.Close()
	}
	if oldConn != nil {
		_ = oldConn.Close()
	}
	c.log.Info().Str("queue", c.cfg.Queue).Msg("rabbitmq client reconnected")
	return nil
}

func newBreaker(name string, onChange func(string, gobreaker.State, gobreaker.State), log zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			log.Warn().
				Str("circuit", cbName).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if onChange != nil {
				onChange(cbName, from, to)
			}
		},
	})
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	if cfg.Queue == "" {
		return nil
	}
	if _, err := ch.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.BindingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", cfg.Queue, err)
	}
	return nil
}

// Publish sends a persistent JSON message to the exchange under routingKey.
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.channel == nil {
			return nil, ErrChannelClosed
		}
		return nil, c.channel.Publish(
			c.cfg.Exchange, // exchange
			routingKey,     // routing key
			false,          // mandatory
			false,          // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now().UTC(),
			})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("publish %s skipped, circuit %s: %w", routingKey, c.breaker.State(), err)
		}
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	c.log.Debug().Str("routing_key", routingKey).Int("bytes", len(body)).Msg("message published")
	return nil
}

// BreakerState reports the publish circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Handler processes one delivery. A nil return acks the message.
type Handler func(msg amqp.Delivery) error

// Consume reads the configured queue until ctx is cancelled or the channel
// closes. Failed messages are requeued once and dropped on the second failure.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return ErrChannelClosed
	}

	msgs, err := ch.Consume(
		c.cfg.Queue, // queue
		"",          // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	c.log.Info().Str("queue", c.cfg.Queue).Msg("waiting for order events")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrChannelClosed
			}
			c.dispatch(msg, handler)
		}
	}
}

// ConsumeWithRetry runs Consume until ctx is cancelled. When the consumer
// stops it reconnects with exponential backoff instead of giving up;
// onRestart, when set, is called with every error that stopped it.
func (c *Client) ConsumeWithRetry(ctx context.Context, handler Handler, onRestart func(error)) {
	delay := c.retryMin
	for {
		err := c.Consume(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = ErrChannelClosed
		}
		if onRestart != nil {
			onRestart(err)
		}

		for {
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("order event consumer stopped, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if err = c.reconnect(); err == nil {
				delay = c.retryMin
				break
			}
			delay = min(delay*2, c.retryMax)
		}
	}
}

func (c *Client) dispatch(msg amqp.Delivery, handler Handler) {
	if err := handler(msg); err != nil {
		requeue := !msg.Redelivered
		c.log.Error().Err(err).
			Uint64("delivery_tag", msg.DeliveryTag).
			Str("routing_key", msg.RoutingKey).
			Bool("requeue", requeue).
			Msg("error processing message")
		if nackErr := msg.Nack(false, requeue); nackErr != nil {
			c.log.Error().Err(nackErr).Uint64("delivery_tag", msg.DeliveryTag).Msg("error nacking message")
		}
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		c.log.Error().Err(ackErr).Uint64("delivery_tag", msg.DeliveryTag).Msg("error acking message")
	}
}

// Close closes the RabbitMQ channel and connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
		c.conn = nil
	}
	return errors.Join(errs...)
}
