package httpEngine

import (
	"net/http"

	"authsec-server/internal/controllers"
	"authsec-server/internal/middlewares"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all the server routes
func RegisterRoutes(e *echo.Echo) {
	// Basic health check
	e.GET("/", func(c echo.Context) error {
		sess, err := session.Get("session", c)
		if err != nil {
			return err
		}
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return err
		}
		return c.String(http.StatusOK, "Hello, from AuthSec Server!")
	})

	// Every route below runs behind the IP rules and the general limiter.
	e.Use(middlewares.IPAccessMiddleware)

	// Captcha challenges for the local mode. Unauthenticated.
	captchaGroup := e.Group("/captcha")
	captchaGroup.Use(middlewares.RateLimitMiddleware("captcha"))
	{
		captchaGroup.POST("/generate", controllers.GenerateCaptchaHandler)
	}

	// Authentication endpoints
	authGroup := e.Group("/auth")
	authGroup.Use(middlewares.SessionMiddleware)
	authGroup.Use(middlewares.RateLimitMiddleware("auth"))
	{
		authGroup.POST("/register", controllers.RegisterHandler)
		authGroup.POST("/login", controllers.LoginHandler)
		authGroup.POST("/logout", controllers.LogoutHandler)
		authGroup.GET("/me", controllers.MeHandler, middlewares.AuthMiddleware)

		// Second factor completing a pending login
		authGroup.POST("/2fa/verify-login", controllers.TwoFactorLoginHandler)
		authGroup.POST("/webauthn/login/options", controllers.WebAuthnLoginOptionsHandler)
		authGroup.POST("/webauthn/login/verify", controllers.WebAuthnLoginVerifyHandler)

		// TOTP enrollment, on an authenticated session
		authGroup.POST("/2fa/generate", controllers.SetupTwoFactorHandler, middlewares.AuthMiddleware)
		authGroup.POST("/2fa/verify", controllers.VerifyAndEnableTwoFactorHandler, middlewares.AuthMiddleware)
		authGroup.POST("/2fa/disable", controllers.DisableTwoFactorHandler, middlewares.AuthMiddleware)

		// WebAuthn credential management, on an authenticated session
		authGroup.POST("/webauthn/register/options", controllers.WebAuthnRegisterOptionsHandler, middlewares.AuthMiddleware)
		authGroup.POST("/webauthn/register/verify", controllers.WebAuthnRegisterVerifyHandler, middlewares.AuthMiddleware)
		authGroup.GET("/webauthn/credentials", controllers.WebAuthnCredentialsHandler, middlewares.AuthMiddleware)
		authGroup.DELETE("/webauthn/credentials/:id", controllers.WebAuthnDeleteCredentialHandler, middlewares.AuthMiddleware)
	}

	// Session and device management
	securityGroup := e.Group("/security")
	securityGroup.Use(middlewares.SessionMiddleware)
	securityGroup.Use(middlewares.RateLimitMiddleware("security"))
	securityGroup.Use(middlewares.AuthMiddleware)
	{
		securityGroup.GET("/sessions", controllers.ListSessionsHandler)
		securityGroup.POST("/sessions/:id/terminate", controllers.TerminateSessionHandler)
		securityGroup.POST("/logout-all-devices", controllers.LogoutAllDevicesHandler)

		securityGroup.GET("/devices", controllers.ListDevicesHandler)
		securityGroup.POST("/devices/:id/trust", controllers.TrustDeviceHandler)
		securityGroup.DELETE("/devices/:id", controllers.RevokeDeviceHandler)

		// Administration
		securityGroup.GET("/sessions/all", controllers.ListAllSessionsHandler, middlewares.AdminMiddleware)
		securityGroup.POST("/sessions/terminate-all", controllers.TerminateAllSessionsHandler, middlewares.AdminMiddleware)
		securityGroup.GET("/stats", controllers.SecurityStatsHandler, middlewares.AdminMiddleware)
		securityGroup.GET("/events", controllers.SecurityEventsHandler, middlewares.AdminMiddleware)
		securityGroup.GET("/ip-rules", controllers.ListIPRulesHandler, middlewares.AdminMiddleware)
		securityGroup.POST("/ip-rules", controllers.CreateIPRuleHandler, middlewares.AdminMiddleware)
		securityGroup.DELETE("/ip-rules/:id", controllers.DeleteIPRuleHandler, middlewares.AdminMiddleware)
	}
}
