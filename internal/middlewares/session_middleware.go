package middlewares

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

// sessionKeyContext is the context key the session is stored under.
const sessionKeyContext = "session_data"

// SessionMiddleware loads the cookie session and stores it on the request
// context. A broken session cookie is reset so the client can start over.
func SessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := session.Get("session", c)
		if err != nil {
			resetSessionCookie(c)
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "session error, please log in again"})
		}

		c.Set(sessionKeyContext, sess)
		return next(c)
	}
}

// resetSessionCookie expires the client's session cookie.
func resetSessionCookie(c echo.Context) {
	cookie := new(http.Cookie)
	cookie.Name = "session"
	cookie.Value = ""
	cookie.Path = "/"
	cookie.MaxAge = -1
	cookie.HttpOnly = true
	c.SetCookie(cookie)
}

// GetSessionFromContext fetches the session placed by SessionMiddleware.
func GetSessionFromContext(c echo.Context) (*sessions.Session, error) {
	sessionData := c.Get(sessionKeyContext)
	if sessionData == nil {
		sess, err := session.Get("session", c)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}

	sess, ok := sessionData.(*sessions.Session)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "invalid session type in context")
	}

	return sess, nil
}
