package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/handlers"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/pkg/rabbitmq"
)

// Application is the assembled service.
type Application struct {
	Config *config.Config
	Fiber  *fiber.App
	DB     *gorm.DB
	Store  repositories.Store
	MQ     *rabbitmq.Client
	Events *events.OrderEventHandler
	Log    zerolog.Logger
}

// New connects to the database and the broker and wires every component.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Application, error) {
	opts := database.OptionsFromConfig(cfg)
	db, err := database.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, opts); err != nil {
		database.Close(db)
		return nil, err
	}
	if cfg.SeedProducts {
		if err := database.SeedProducts(ctx, db, log); err != nil {
			database.Close(db)
			return nil, err
		}
	}

	a := &Application{
		Config: cfg,
		DB:     db,
		Store:  repositories.NewGORMStore(db),
		Events: events.NewOrderEventHandler(log),
		Log:    log,
	}

	var publisher services.MessagePublisher
	if cfg.RabbitMQEnabled {
		mq, err := rabbitmq.NewClient(rabbitmq.Config{
			URL:                  cfg.RabbitMQURL,
			Exchange:             cfg.RabbitMQExchange,
			Queue:                cfg.RabbitMQQueue,
			BindingKey:           "order.#",
			OnBreakerStateChange: recordBreakerState,
		}, log)
		if err != nil {
			database.Close(db)
			return nil, err
		}
		a.MQ = mq
		publisher = mq
	} else {
		log.Warn().Msg("rabbitmq disabled, order events will not be published")
	}

	if err := a.build(ctx, publisher); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) build(ctx context.Context, publisher services.MessagePublisher) error {
	cfg := a.Config
	validate := validator.New()

	authService := services.NewAuthService(a.Store.Users(), cfg.JWTSecret, cfg.JWTTTL, a.Log)
	userService := services.NewUserService(a.Store.Users(), a.Log)
	productService := services.NewProductService(a.Store.Products(), a.Log)
	orderService := services.NewOrderService(a.Store, publisher, a.Log)
	stockHealthService := services.NewStockHealthService(a.Store, a.Log)

	if cfg.AdminUsername != "" {
		if _, err := authService.EnsureAdmin(ctx, services.RegisterInput{
			Username: cfg.AdminUsername,
			Email:    cfg.AdminEmail,
			Password: cfg.AdminPassword,
		}); err != nil {
			return fmt.Errorf("failed to bootstrap admin user: %w", err)
		}
	}

	app := fiber.New(fiber.Config{
		AppName:               "storefront",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		ErrorHandler:          errorHandler(a.Log),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(a.Log))

	app.Get("/health", a.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	auth := middleware.AuthRequired(authService, a.Log)
	admin := middleware.AdminRequired()

	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(authService, validate, a.Log).RegisterRoutes(apiV1)
	handlers.NewUserHandler(userService, validate).RegisterRoutes(apiV1, auth, admin)
	handlers.NewProductHandler(productService, validate).RegisterRoutes(apiV1, auth, admin)
	handlers.NewOrderHandler(orderService, stockHealthService, validate).RegisterRoutes(apiV1, auth, admin)

	a.Fiber = app
	return nil
}

func (a *Application) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	body := fiber.Map{
		"status":   "healthy",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"database": "up",
		"rabbitmq": "disabled",
	}
	if err := a.Store.Ping(ctx); err != nil {
		a.Log.Error().Err(err).Msg("health check: database unreachable")
		status = fiber.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = "down"
	}
	if a.MQ != nil {
		body["rabbitmq"] = a.MQ.BreakerState().String()
	}
	return c.Status(status).JSON(body)
}

// ConsumeEvents reads order events until ctx is cancelled, reconnecting
// whenever the broker drops the consumer. It returns immediately when the
// broker is disabled.
func (a *Application) ConsumeEvents(ctx context.Context) {
	if a.MQ == nil {
		return
	}
	a.MQ.ConsumeWithRetry(ctx, a.Events.Handle, func(err error) {
		metrics.ConsumerRestarts.Inc()
		a.Log.Error().Err(err).Msg("order event consumer stopped")
	})
}

// Close releases the broker connection and the database pool.
func (a *Application) Close() error {
	var errs []error
	if a.MQ != nil {
		errs = append(errs, a.MQ.Close())
	}
	if a.DB != nil {
		errs = append(errs, database.Close(a.DB))
	}
	return errors.Join(errs...)
}

func errorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		}
		return c.Status(code).JSON(fiber.Map{"message": message})
	}
}

func recordBreakerState(name string, _, to gobreaker.State) {
	state := float64(0)
	switch to {
	case gobreaker.StateOpen:
		state = 1
	case gobreaker.StateHalfOpen:
		state = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(state)
}
