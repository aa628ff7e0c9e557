package controllers

import (
	"net/http"

	"authsec-server/internal/logics"

	"github.com/labstack/echo/v4"
)

// GenerateCaptchaHandler issues a new challenge for the local captcha mode
// POST /captcha/generate
func GenerateCaptchaHandler(c echo.Context) error {
	challenge, err := logics.CaptchaSvc.Generate(c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, challenge)
}
