package controllers

import (
	"net/http"
	"strconv"

	"authsec-server/internal/logics"
	"authsec-server/internal/middlewares"

	"github.com/labstack/echo/v4"
)

// ListSessionsHandler returns the caller's active sessions
// GET /security/sessions
func ListSessionsHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	sessions, err := logics.SessionSvc.List(user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list sessions"})
	}
	return c.JSON(http.StatusOK, sessions)
}

// ListAllSessionsHandler returns every active session. Admin only.
// GET /security/sessions/all
func ListAllSessionsHandler(c echo.Context) error {
	sessions, err := logics.SessionSvc.ListAll()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list sessions"})
	}
	return c.JSON(http.StatusOK, sessions)
}

// TerminateSessionHandler revokes one session. Users may only revoke their
// own; admins may revoke any.
// POST /security/sessions/:id/terminate
func TerminateSessionHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid session id"})
	}

	sessions, err := logics.SessionSvc.List(user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to look up session"})
	}
	owned := false
	for _, s := range sessions {
		if s.ID == uint(id) {
			owned = true
			break
		}
	}
	if !owned && !user.Role.CanManageSecurity() {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "not your session"})
	}

	if err := logics.SessionSvc.Terminate(uint(id), user.ID, c.RealIP(), c.Request().UserAgent()); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

// LogoutAllDevicesHandler revokes every session of the caller
// POST /security/logout-all-devices
func LogoutAllDevicesHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	count, err := logics.SessionSvc.TerminateAllForUser(user.ID, user.ID, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to terminate sessions"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "terminated": count})
}

// TerminateAllSessionsHandler revokes every session in the system. Admin only.
// POST /security/sessions/terminate-all
func TerminateAllSessionsHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	count, err := logics.SessionSvc.TerminateAll(user.ID, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to terminate sessions"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "terminated": count})
}

// SecurityStatsHandler returns aggregate counts derived from the security
// log. Admin only.
// GET /security/stats
func SecurityStatsHandler(c echo.Context) error {
	stats, err := logics.SecurityLogSvc.Stats()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to compute stats"})
	}
	return c.JSON(http.StatusOK, stats)
}

// SecurityEventsHandler returns the most recent security log entries. Admin only.
// GET /security/events
func SecurityEventsHandler(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	events, err := logics.SecurityLogSvc.Recent(limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list events"})
	}
	return c.JSON(http.StatusOK, events)
}

// ListDevicesHandler returns the caller's known devices
// GET /security/devices
func ListDevicesHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	devices, err := logics.TrustedDeviceSvc.List(user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list devices"})
	}
	return c.JSON(http.StatusOK, devices)
}

// TrustDeviceHandler marks one of the caller's devices as trusted
// POST /security/devices/:id/trust
func TrustDeviceHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid device id"})
	}

	if err := logics.TrustedDeviceSvc.Trust(user.ID, uint(id)); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

// RevokeDeviceHandler removes one of the caller's devices
// DELETE /security/devices/:id
func RevokeDeviceHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid device id"})
	}

	if err := logics.TrustedDeviceSvc.Revoke(user.ID, uint(id)); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}
