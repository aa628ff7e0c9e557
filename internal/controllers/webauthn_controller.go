package controllers

import (
	"net/http"
	"strconv"

	"authsec-server/internal/logics"
	"authsec-server/internal/middlewares"
	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"github.com/labstack/echo/v4"
)

// WebAuthnRegisterOptionsHandler starts credential registration
// POST /auth/webauthn/register/options
func WebAuthnRegisterOptionsHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	sess, err := middlewares.GetSessionFromContext(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "session error"})
	}

	options, err := logics.WebAuthnSvc.BeginRegistration(user, sess.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, options)
}

// WebAuthnRegisterVerifyHandler finishes credential registration
// POST /auth/webauthn/register/verify
func WebAuthnRegisterVerifyHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	sess, err := middlewares.GetSessionFromContext(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "session error"})
	}

	label := c.QueryParam("label")
	credential, err := logics.WebAuthnSvc.FinishRegistration(user, sess.ID, label, c.Request(), c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"credential_id": credential.CredentialID,
		"label":         credential.Label,
	})
}

// WebAuthnLoginOptionsHandler starts an assertion for a pending login
// POST /auth/webauthn/login/options
func WebAuthnLoginOptionsHandler(c echo.Context) error {
	sess, err := middlewares.GetSessionFromContext(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "session error"})
	}

	options, err := authService.BeginWebAuthnLogin(sess.ID)
	if err != nil {
		return c.JSON(statusForAuthError(err), map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, options)
}

// WebAuthnLoginVerifyHandler finishes an assertion and completes the login
// POST /auth/webauthn/login/verify
func WebAuthnLoginVerifyHandler(c echo.Context) error {
	sess, err := middlewares.GetSessionFromContext(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "session error"})
	}

	user, err := authService.FinishWebAuthnLogin(sess.ID, c.Request(), c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return c.JSON(statusForAuthError(err), map[string]string{"error": err.Error()})
	}

	if err := establishLoginSession(c, user); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to establish session"})
	}

	sanitized := user.Sanitize()
	return c.JSON(http.StatusOK, LoginResponse{User: &sanitized})
}

// WebAuthnCredentialsHandler lists the user's registered credentials
// GET /auth/webauthn/credentials
func WebAuthnCredentialsHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	creds, err := logics.WebAuthnSvc.CredentialsFor(user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list credentials"})
	}
	return c.JSON(http.StatusOK, creds)
}

// WebAuthnDeleteCredentialHandler removes one of the user's credentials
// DELETE /auth/webauthn/credentials/:id
func WebAuthnDeleteCredentialHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid credential id"})
	}

	result := repositories.DBS.Postgres.
		Where("id = ? AND user_id = ?", uint(id), user.ID).
		Delete(&models.WebAuthnCredential{})
	if result.Error != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete credential"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "credential not found"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}
