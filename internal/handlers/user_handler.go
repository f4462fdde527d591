package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"storefront/internal/middleware"
	"storefront/internal/services"
)

// UserHandler handles HTTP requests for user accounts.
type UserHandler struct {
	service  *services.UserService
	validate *validator.Validate
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service *services.UserService, validate *validator.Validate) *UserHandler {
	return &UserHandler{service: service, validate: validate}
}

// RegisterRoutes registers the user routes. auth must authenticate the
// caller and admin must restrict to admins.
func (h *UserHandler) RegisterRoutes(router fiber.Router, auth, admin fiber.Handler) {
	users := router.Group("/users", auth)
	users.Get("/me", h.HandleGetMe)
	users.Get("/", admin, h.HandleListUsers)
	users.Get("/:id", admin, h.HandleGetUser)
	users.Put("/:id", admin, h.HandleUpdateUser)
	users.Delete("/:id", admin, h.HandleDeleteUser)
}

// HandleGetMe returns the caller's own account.
func (h *UserHandler) HandleGetMe(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	user, err := h.service.GetUser(c.UserContext(), p, p.UserID)
	if err != nil {
		return respondError(c, "Could not retrieve user", err)
	}
	return c.JSON(user)
}

// HandleListUsers returns a page of users.
func (h *UserHandler) HandleListUsers(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	offset, limit, err := pagination(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	users, err := h.service.ListUsers(c.UserContext(), p, offset, limit)
	if err != nil {
		return respondError(c, "Could not retrieve users", err)
	}
	return c.JSON(users)
}

// HandleGetUser returns one user.
func (h *UserHandler) HandleGetUser(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	user, err := h.service.GetUser(c.UserContext(), p, c.Params("id"))
	if err != nil {
		return respondError(c, "Could not retrieve user", err)
	}
	return c.JSON(user)
}

// HandleUpdateUser applies a partial update.
func (h *UserHandler) HandleUpdateUser(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	var req services.UserUpdate
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}
	user, err := h.service.UpdateUser(c.UserContext(), p, c.Params("id"), req)
	if err != nil {
		return respondError(c, "Could not update user", err)
	}
	return c.JSON(user)
}

// HandleDeleteUser removes a user.
func (h *UserHandler) HandleDeleteUser(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	if err := h.service.DeleteUser(c.UserContext(), p, c.Params("id")); err != nil {
		return respondError(c, "Could not delete user", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
