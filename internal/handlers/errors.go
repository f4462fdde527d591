package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/services"
)

// respondError maps a service error onto an HTTP status and JSON body.
// Database failures only expose a generic message.
func respondError(c *fiber.Ctx, message string, err error) error {
	var stockErr *services.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message":      message,
			"error":        stockErr.Error(),
			"stock_issues": stockErr.Details,
		})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": message, "error": err.Error()})
	case errors.Is(err, services.ErrAlreadyExists), errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": message, "error": err.Error()})
	case errors.Is(err, services.ErrInvalidOrder), errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": message, "error": err.Error()})
	case errors.Is(err, services.ErrPermissionDenied):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": message, "error": err.Error()})
	case errors.Is(err, services.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": message, "error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": message,
			"error":   "internal server error",
		})
	}
}

func badRequest(c *fiber.Ctx, message string, err error) error {
	body := fiber.Map{"message": message}
	if err != nil {
		body["error"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

func unauthenticated(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Authentication required"})
}
