package logics

import (
	"net/netip"
	"strings"

	"authsec-server/configs"
	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"go.uber.org/zap"
)

// IPAccessService evaluates whitelist/blacklist rules before any other
// check on login and security routes.
type IPAccessService struct{}

// NewIPAccessService creates a new IPAccessService
func NewIPAccessService() *IPAccessService {
	return &IPAccessService{}
}

// Evaluate decides whether the given client IP may proceed.
// Blacklist matches deny unconditionally, even when a whitelist rule also
// matches. If any whitelist rules exist, absence from the whitelist is
// itself a denial. Every denial emits one audit entry with blocked=true.
func (s *IPAccessService) Evaluate(ip, userAgent string) (bool, string) {
	var rules []models.IPRule
	if err := repositories.DBS.Postgres.Find(&rules).Error; err != nil {
		configs.Logger.Error("Failed to load IP rules", zap.Error(err))
		// Fail open on store errors: rules are a perimeter refinement,
		// not the only line of defense.
		return true, ""
	}

	addr, parseErr := netip.ParseAddr(ip)

	whitelistExists := false
	whitelisted := false
	for _, rule := range rules {
		match := parseErr == nil && ruleMatches(rule.Value, addr)
		switch rule.Kind {
		case models.IPRuleBlacklist:
			if match {
				s.deny(ip, userAgent, "blacklisted", rule.Value)
				return false, "blacklisted"
			}
		case models.IPRuleWhitelist:
			whitelistExists = true
			if match {
				whitelisted = true
			}
		}
	}

	if whitelistExists && !whitelisted {
		s.deny(ip, userAgent, "not whitelisted", "")
		return false, "not whitelisted"
	}

	return true, ""
}

func (s *IPAccessService) deny(ip, userAgent, reason, rule string) {
	_ = SecurityLogSvc.Add(models.SecurityEventIPBlocked, "ip_access_denied", nil, ip, userAgent, true, map[string]interface{}{
		"reason": reason,
		"rule":   rule,
	})
}

// ruleMatches checks a rule value (exact IP or CIDR) against an address.
func ruleMatches(value string, addr netip.Addr) bool {
	if strings.Contains(value, "/") {
		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			return false
		}
		return prefix.Contains(addr)
	}
	ruleAddr, err := netip.ParseAddr(value)
	if err != nil {
		return false
	}
	return ruleAddr == addr
}

// Global instance of IPAccessService
var IPAccessSvc = NewIPAccessService()
