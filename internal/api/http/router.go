package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/product-catalog/internal/api/http/handlers"
	"github.com/spec-kit/product-catalog/internal/auth"
	"github.com/spec-kit/product-catalog/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Products       *handlers.ProductsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	authProtected := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	authProtected.Get("/me", cfg.Auth.Me)
	authProtected.Post("/password/change", cfg.Auth.ChangePassword)

	products := app.Group("/products", cfg.AuthMiddleware.Handle)

	reads := products.Group("", auth.RequireRole(domain.RoleUser))
	reads.Get("/", cfg.Products.List)
	reads.Get("/:id", cfg.Products.Get)

	writes := products.Group("", auth.RequireRole(domain.RoleAdmin))
	writes.Post("/", cfg.Products.Create)
	writes.Put("/:id", cfg.Products.Update)
	writes.Patch("/:id", cfg.Products.Update)
	writes.Delete("/:id", cfg.Products.Delete)
}
