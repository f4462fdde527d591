package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service     *services.OrderService
	stockHealth *services.StockHealthService
	validate    *validator.Validate
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, stockHealth *services.StockHealthService, validate *validator.Validate) *OrderHandler {
	return &OrderHandler{
		service:     service,
		stockHealth: stockHealth,
		validate:    validate,
	}
}

// RegisterRoutes registers the order routes. Fixed paths are registered
// before /:id so they are not captured as order IDs.
func (h *OrderHandler) RegisterRoutes(router fiber.Router, auth, admin fiber.Handler) {
	orders := router.Group("/orders", auth)
	orders.Post("/", h.HandleCreateOrder)
	orders.Get("/", admin, h.HandleListOrders)
	orders.Get("/my-orders", h.HandleListMyOrders)
	orders.Get("/statistics", admin, h.HandlePlatformStatistics)
	orders.Get("/user-statistics", h.HandleUserStatistics)
	orders.Get("/health/stock-check", admin, h.HandleStockHealth)
	orders.Get("/:id", h.HandleGetOrder)
	orders.Put("/:id/status", admin, h.HandleUpdateOrderStatus)
	orders.Delete("/:id", h.HandleDeleteOrder)
}

// HandleCreateOrder places an order for the caller.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	var req services.CreateOrderInput
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	order, err := h.service.CreateOrder(c.UserContext(), p, req)
	if err != nil {
		return respondError(c, "Could not create order", err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandleListOrders lists every order. Supported query parameters: status,
// user_id, start_date, end_date, min_amount, max_amount, skip and limit.
func (h *OrderHandler) HandleListOrders(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}

	var (
		filter repositories.OrderFilter
		err    error
	)
	if raw := c.Query("status"); raw != "" {
		status := models.OrderStatus(raw)
		filter.Status = &status
	}
	if raw := c.Query("user_id"); raw != "" {
		filter.UserID = &raw
	}
	if filter.StartDate, err = queryTime(c, "start_date", false); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	if filter.EndDate, err = queryTime(c, "end_date", true); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	if filter.MinAmount, err = queryDecimal(c, "min_amount"); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	if filter.MaxAmount, err = queryDecimal(c, "max_amount"); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	if filter.Offset, filter.Limit, err = pagination(c); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}

	orders, err := h.service.ListOrders(c.UserContext(), p, filter)
	if err != nil {
		return respondError(c, "Could not retrieve orders", err)
	}
	return c.JSON(orders)
}

// HandleListMyOrders lists the caller's own orders.
func (h *OrderHandler) HandleListMyOrders(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	offset, limit, err := pagination(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	orders, err := h.service.ListUserOrders(c.UserContext(), p, offset, limit)
	if err != nil {
		return respondError(c, "Could not retrieve orders", err)
	}
	return c.JSON(orders)
}

// HandleGetOrder retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrder(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	order, err := h.service.GetOrder(c.UserContext(), p, c.Params("id"))
	if err != nil {
		return respondError(c, "Could not retrieve order", err)
	}
	return c.JSON(order)
}

// UpdateStatusRequest is the body of a status change.
type UpdateStatusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required"`
}

// HandleUpdateOrderStatus updates the status of an existing order.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	var req UpdateStatusRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	order, err := h.service.UpdateOrderStatus(c.UserContext(), p, c.Params("id"), req.Status)
	if err != nil {
		return respondError(c, "Could not update order status", err)
	}
	return c.JSON(order)
}

// HandleDeleteOrder deletes an order.
func (h *OrderHandler) HandleDeleteOrder(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	if err := h.service.DeleteOrder(c.UserContext(), p, c.Params("id")); err != nil {
		return respondError(c, "Could not delete order", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleUserStatistics returns the caller's order statistics.
func (h *OrderHandler) HandleUserStatistics(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	stats, err := h.service.UserStatistics(c.UserContext(), p)
	if err != nil {
		return respondError(c, "Could not retrieve statistics", err)
	}
	return c.JSON(stats)
}

// HandlePlatformStatistics returns statistics over every order.
func (h *OrderHandler) HandlePlatformStatistics(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	stats, err := h.service.PlatformStatistics(c.UserContext(), p)
	if err != nil {
		return respondError(c, "Could not retrieve statistics", err)
	}
	return c.JSON(stats)
}

// HandleStockHealth returns the stock health report. Supported query
// parameters: category, min_stock and max_stock.
func (h *OrderHandler) HandleStockHealth(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}

	var (
		filter services.StockHealthFilter
		err    error
	)
	if raw := c.Query("category"); raw != "" {
		category := services.StockCategory(raw)
		filter.Category = &category
	}
	if filter.MinStock, err = queryInt(c, "min_stock"); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	if filter.MaxStock, err = queryInt(c, "max_stock"); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}

	report, err := h.stockHealth.Report(c.UserContext(), p, filter)
	if err != nil {
		return respondError(c, "Could not build stock health report", err)
	}
	return c.JSON(report)
}
