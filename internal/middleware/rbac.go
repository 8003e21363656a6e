package middleware

import (
	"billdesk/internal/common"
	"billdesk/internal/models"

	"github.com/labstack/echo/v4"
)

// RequireRole rejects callers whose role differs from role.
func RequireRole(role models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, ok := common.PrincipalFromContext(c.Request().Context())
			if !ok {
				return common.SendError(c, common.NewUnauthenticatedError("User not authenticated"))
			}
			if principal.Role != role {
				return common.SendError(c, common.NewAuthorizationError("Insufficient permissions"))
			}
			return next(c)
		}
	}
}

// RequireAdmin is RequireRole(models.RoleAdmin).
func RequireAdmin() echo.MiddlewareFunc {
	return RequireRole(models.RoleAdmin)
}
