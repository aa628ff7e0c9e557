package controllers

import (
	"net/http"

	"authsec-server/internal/logics"
	"authsec-server/internal/middlewares"

	"github.com/labstack/echo/v4"
)

// TwoFactorSetupResponse contains information for setting up 2FA
type TwoFactorSetupResponse struct {
	Secret    string `json:"secret"`
	QRCodeURL string `json:"qr_code_url"`
}

// TwoFactorVerifyRequest is the payload for verifying a 2FA code
type TwoFactorVerifyRequest struct {
	Code string `json:"code" form:"code"`
}

// SetupTwoFactorHandler starts the 2FA enrollment process
// POST /auth/2fa/generate
func SetupTwoFactorHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	sess, err := middlewares.GetSessionFromContext(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "session error"})
	}

	key, err := logics.TwoFactorSvc.Generate(user, sess.ID, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, TwoFactorSetupResponse{
		Secret:    key.Secret(),
		QRCodeURL: key.URL(),
	})
}

// VerifyAndEnableTwoFactorHandler verifies the first code and turns 2FA on
// POST /auth/2fa/verify
func VerifyAndEnableTwoFactorHandler(c echo.Context) error {
	req := new(TwoFactorVerifyRequest)
	if err := c.Bind(req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "code is required"})
	}

	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	sess, err := middlewares.GetSessionFromContext(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "session error"})
	}

	valid, err := logics.TwoFactorSvc.VerifyAndEnable(user, sess.ID, req.Code, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if !valid {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid code"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

// DisableTwoFactorHandler turns 2FA off. The current code is required so a
// hijacked session cannot silently weaken the account.
// POST /auth/2fa/disable
func DisableTwoFactorHandler(c echo.Context) error {
	req := new(TwoFactorVerifyRequest)
	if err := c.Bind(req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "code is required"})
	}

	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	valid, err := logics.TwoFactorSvc.Disable(user, req.Code, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if !valid {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid code"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}
