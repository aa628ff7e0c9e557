package middlewares

import (
	"net/http"

	"authsec-server/internal/logics"

	"github.com/labstack/echo/v4"
)

// IPAccessMiddleware rejects requests from denied addresses before any
// handler runs. Blacklist entries always win; a non-empty whitelist denies
// everything outside it.
func IPAccessMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		allowed, reason := logics.IPAccessSvc.Evaluate(c.RealIP(), c.Request().UserAgent())
		if !allowed {
			return c.JSON(http.StatusForbidden, map[string]string{"error": reason})
		}
		return next(c)
	}
}
