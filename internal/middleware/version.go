package middleware

import (
	"github.com/labstack/echo/v4"
)

// VersionHeader stamps responses with the API and build versions.
func VersionHeader(apiVersion, buildVersion string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-API-Version", apiVersion)
			if buildVersion != "" {
				h.Set("X-Build-Version", buildVersion)
			}
			return next(c)
		}
	}
}
