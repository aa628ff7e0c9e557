package controllers

import (
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"authsec-server/internal/logics"
	"authsec-server/internal/middlewares"
	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"github.com/labstack/echo/v4"
)

// IPRuleRequest is the payload for creating an allow/deny rule
type IPRuleRequest struct {
	Value  string `json:"ip_address" form:"ip_address"`
	Kind   string `json:"type" form:"type"`
	Reason string `json:"reason" form:"reason"`
}

// ListIPRulesHandler returns all IP rules. Admin only.
// GET /security/ip-rules
func ListIPRulesHandler(c echo.Context) error {
	var rules []models.IPRule
	if err := repositories.DBS.Postgres.Order("created_at DESC").Find(&rules).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list rules"})
	}
	return c.JSON(http.StatusOK, rules)
}

// CreateIPRuleHandler adds an allow/deny rule. Admin only.
// POST /security/ip-rules
func CreateIPRuleHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	req := new(IPRuleRequest)
	if err := c.Bind(req); err != nil || req.Value == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "ip_address required"})
	}

	kind := models.IPRuleKind(req.Kind)
	if kind != models.IPRuleWhitelist && kind != models.IPRuleBlacklist {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "type must be whitelist or blacklist"})
	}

	// Accept a bare address or a CIDR range
	if strings.Contains(req.Value, "/") {
		if _, err := netip.ParsePrefix(req.Value); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid CIDR range"})
		}
	} else {
		if _, err := netip.ParseAddr(req.Value); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid IP address"})
		}
	}

	rule := models.IPRule{
		Value:     req.Value,
		Kind:      kind,
		Reason:    req.Reason,
		CreatedBy: user.ID,
	}
	if err := repositories.DBS.Postgres.Create(&rule).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create rule"})
	}

	userID := user.ID
	_ = logics.SecurityLogSvc.Add(models.SecurityEventIPRuleCreated, "ip_rule_created", &userID, c.RealIP(), c.Request().UserAgent(), false, map[string]interface{}{
		"ip_address": rule.Value,
		"type":       rule.Kind,
		"reason":     rule.Reason,
	})

	return c.JSON(http.StatusOK, rule)
}

// DeleteIPRuleHandler removes a rule. Admin only.
// DELETE /security/ip-rules/:id
func DeleteIPRuleHandler(c echo.Context) error {
	user, err := middlewares.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid rule id"})
	}

	var rule models.IPRule
	if err := repositories.DBS.Postgres.First(&rule, uint(id)).Error; err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "rule not found"})
	}

	if err := repositories.DBS.Postgres.Delete(&rule).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete rule"})
	}

	userID := user.ID
	_ = logics.SecurityLogSvc.Add(models.SecurityEventIPRuleDeleted, "ip_rule_deleted", &userID, c.RealIP(), c.Request().UserAgent(), false, map[string]interface{}{
		"ip_address": rule.Value,
		"type":       rule.Kind,
	})

	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}
