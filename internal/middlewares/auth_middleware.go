package middlewares

import (
	"net/http"

	"authsec-server/internal/logics"
	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"github.com/labstack/echo/v4"
)

const userKeyContext = "auth_user_model"

// AuthMiddleware requires a completed login. It checks both the cookie
// session and the server-side session row, so a terminated session stops
// working even while its cookie is still valid. Chain after
// SessionMiddleware.
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := GetSessionFromContext(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "session error"})
		}

		userID, ok := sess.Values["auth_user"].(string)
		if !ok || userID == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		}

		// The server-side row is the authority; revocation wins over the cookie.
		if _, err := logics.SessionSvc.Lookup(sess.ID); err != nil {
			resetSessionCookie(c)
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "session revoked or expired"})
		}

		var user models.User
		if err := repositories.DBS.Postgres.First(&user, "id = ?", userID).Error; err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "account not found"})
		}

		c.Set(userKeyContext, &user)
		return next(c)
	}
}

// AdminMiddleware restricts a route to roles that can manage security
// settings. Chain after AuthMiddleware.
func AdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := GetUserFromContext(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		}

		if !user.Role.CanManageSecurity() {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "administrator privileges required"})
		}

		return next(c)
	}
}

// GetUserFromContext returns the user loaded by AuthMiddleware.
func GetUserFromContext(c echo.Context) (*models.User, error) {
	user, ok := c.Get(userKeyContext).(*models.User)
	if !ok || user == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user in context")
	}
	return user, nil
}
