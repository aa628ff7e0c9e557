package controllers

import (
	"net/http"

	"authsec-server/internal/auth"
	"authsec-server/internal/logics"
	"authsec-server/internal/middlewares"
	"authsec-server/internal/models"

	"github.com/labstack/echo/v4"
)

// Request structs
type RegisterRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Username string `json:"username" form:"username"`
}

type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email" form:"username_or_email"`
	Password        string `json:"password" form:"password"`
	CaptchaToken    string `json:"captcha_token" form:"captcha_token"`
}

type TwoFactorLoginRequest struct {
	Code string `json:"code" form:"code"`
}

// Response structs
type LoginResponse struct {
	Requires2FA  bool                  `json:"requires_2fa"`
	HasBiometric bool                  `json:"has_biometric,omitempty"`
	User         *models.SanitizedUser `json:"user,omitempty"`
}

// Service interfaces
var authService auth.AuthServiceInterface

func init() {
	authService = auth.GetAuthService()
}

// statusForAuthError maps flow error codes to HTTP statuses.
func statusForAuthError(err error) int {
	switch {
	case auth.IsAuthError(err, auth.ErrAccessDenied), auth.IsAuthError(err, auth.ErrPasswordExpired):
		return http.StatusForbidden
	case auth.IsAuthError(err, auth.ErrRateLimited):
		return http.StatusTooManyRequests
	case auth.IsAuthError(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case auth.IsAuthError(err, auth.ErrTwoFactorInvalid),
		auth.IsAuthError(err, auth.ErrWebAuthnFailed),
		auth.IsAuthError(err, auth.ErrCaptchaFailed),
		auth.IsAuthError(err, auth.ErrSessionInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// establishLoginSession rotates the transport session id and records the
// server-side session row. Rotation on privilege change blocks fixation:
// a cookie captured before login is useless after it.
func establishLoginSession(c echo.Context, user *models.User) error {
	sess, err := middlewares.GetSessionFromContext(c)
	if err != nil {
		return err
	}

	oldID := sess.ID
	if oldID != "" {
		logics.SessionSvc.DropTransport(oldID)
	}
	sess.ID = ""
	sess.Values["auth_user"] = user.ID
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return err
	}

	_, err = logics.SessionSvc.Establish(user, c.RealIP(), c.Request().UserAgent(), oldID, sess.ID)
	return err
}

// RegisterHandler handles user registration
// POST /auth/register
func RegisterHandler(c echo.Context) error {
	req := new(RegisterRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "email and password are required"})
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "password must be at least 8 characters"})
	}

	user, err := authService.Register(auth.RegisterParams{
		Email:     req.Email,
		Password:  req.Password,
		Username:  req.Username,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return c.JSON(statusForAuthError(err), map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "registration complete",
		"user":    user.Sanitize(),
	})
}

// LoginHandler handles the first phase of login
// POST /auth/login
func LoginHandler(c echo.Context) error {
	req := new(LoginRequest)
	if err := c.Bind(req); err != nil || req.UsernameOrEmail == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "username_or_email and password required"})
	}

	sess, err := middlewares.GetSessionFromContext(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "session error"})
	}
	// A brand-new visitor has no session id yet; a pending 2FA state needs
	// one to key on.
	if sess.ID == "" {
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "session error"})
		}
	}

	result, err := authService.Login(auth.LoginParams{
		UsernameOrEmail: req.UsernameOrEmail,
		Password:        req.Password,
		CaptchaToken:    req.CaptchaToken,
		IP:              c.RealIP(),
		UserAgent:       c.Request().UserAgent(),
		AcceptLanguage:  c.Request().Header.Get("Accept-Language"),
		SessionToken:    sess.ID,
	})
	if err != nil {
		return c.JSON(statusForAuthError(err), map[string]string{"error": err.Error()})
	}

	if result.Requires2FA {
		return c.JSON(http.StatusOK, LoginResponse{
			Requires2FA:  true,
			HasBiometric: result.HasBiometric,
		})
	}

	if err := establishLoginSession(c, result.User); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to establish session"})
	}

	sanitized := result.User.Sanitize()
	return c.JSON(http.StatusOK, LoginResponse{User: &sanitized})
}

// TwoFactorLoginHandler completes a pending login with a TOTP code
// POST /auth/2fa/verify-login
func TwoFactorLoginHandler(c echo.Context) error {
	req := new(TwoFactorLoginRequest)
	if err := c.Bind(req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "code required"})
	}

	sess, err := middlewares.GetSessionFromContext(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "session error"})
	}

	user, err := authService.Verify2FA(auth.Verify2FAParams{
		SessionToken: sess.ID,
		Code:         req.Code,
		IP:           c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
	})
	if err != nil {
		return c.JSON(statusForAuthError(err), map[string]string{"error": err.Error()})
	}

	if err := establishLoginSession(c, user); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to establish session"})
	}

	sanitized := user.Sanitize()
	return c.JSON(http.StatusOK, LoginResponse{User: &sanitized})
}

// LogoutHandler ends the current session
// POST /auth/logout
func LogoutHandler(c echo.Context) error {
	sess, err := middlewares.GetSessionFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
	}

	if sess.ID != "" {
		if err := authService.Logout(sess.ID); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "logout failed"})
		}
		logics.SessionSvc.DropTransport(sess.ID)
	}

	sess.Options.MaxAge = -1
	sess.Values = map[interface{}]interface{}{}
	_ = sess.Save(c.Request(), c.Response())

	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

// MeHandler returns the currently authenticated user's information
// GET /auth/me
func MeHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	}
	return c.JSON(http.StatusOK, user.Sanitize())
}
