package middlewares

import (
	"net/http"

	"authsec-server/internal/logics"

	"github.com/labstack/echo/v4"
)

// RateLimitMiddleware counts the request against the general API limiter
// for its route class. Over-limit requests get 429 with a Retry-After.
func RateLimitMiddleware(routeClass string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !logics.RateLimitSvc.Allow(c.RealIP(), routeClass, c.Request().UserAgent()) {
				c.Response().Header().Set("Retry-After", "3600")
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			}
			return next(c)
		}
	}
}
