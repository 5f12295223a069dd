package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/product-catalog/internal/domain"
	apperrors "github.com/spec-kit/product-catalog/pkg/util"
)

// RequireRole ensures the principal's role satisfies the required level.
// Admin satisfies user-level requirements.
func RequireRole(required domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.Role.Satisfies(required) {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures the caller is authenticated.
func RequireAnyRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
