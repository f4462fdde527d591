package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"storefront/internal/middleware"
	"storefront/internal/repositories"
	"storefront/internal/services"
)

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	service  *services.ProductService
	validate *validator.Validate
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService, validate *validator.Validate) *ProductHandler {
	return &ProductHandler{service: service, validate: validate}
}

// RegisterRoutes registers the product routes.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, auth, admin fiber.Handler) {
	products := router.Group("/products", auth)
	products.Get("/", h.HandleListProducts)
	products.Get("/:id", h.HandleGetProduct)
	products.Post("/", admin, h.HandleCreateProduct)
	products.Put("/:id", admin, h.HandleUpdateProduct)
	products.Delete("/:id", admin, h.HandleDeleteProduct)
}

// HandleListProducts lists products. Supported query parameters: min_price,
// max_price, in_stock, search, skip and limit.
func (h *ProductHandler) HandleListProducts(c *fiber.Ctx) error {
	var (
		filter repositories.ProductFilter
		err    error
	)
	if filter.PriceMin, err = queryDecimal(c, "min_price"); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	if filter.PriceMax, err = queryDecimal(c, "max_price"); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	if filter.InStockOnly, err = queryBool(c, "in_stock"); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	if filter.Offset, filter.Limit, err = pagination(c); err != nil {
		return badRequest(c, "Invalid query parameters", err)
	}
	filter.Search = c.Query("search")

	products, err := h.service.ListProducts(c.UserContext(), filter)
	if err != nil {
		return respondError(c, "Could not retrieve products", err)
	}
	return c.JSON(products)
}

// HandleGetProduct retrieves a single product by its ID.
func (h *ProductHandler) HandleGetProduct(c *fiber.Ctx) error {
	product, err := h.service.GetProduct(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, "Could not retrieve product", err)
	}
	return c.JSON(product)
}

// HandleCreateProduct adds a product.
func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	var req services.ProductInput
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}
	product, err := h.service.CreateProduct(c.UserContext(), p, req)
	if err != nil {
		return respondError(c, "Could not create product", err)
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

// HandleUpdateProduct applies a partial update.
func (h *ProductHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	var req services.ProductUpdate
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}
	product, err := h.service.UpdateProduct(c.UserContext(), p, c.Params("id"), req)
	if err != nil {
		return respondError(c, "Could not update product", err)
	}
	return c.JSON(product)
}

// HandleDeleteProduct removes a product.
func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return unauthenticated(c)
	}
	if err := h.service.DeleteProduct(c.UserContext(), p, c.Params("id")); err != nil {
		return respondError(c, "Could not delete product", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
