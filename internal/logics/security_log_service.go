package logics

import (
	"encoding/json"
	"fmt"

	"authsec-server/configs"
	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"go.uber.org/zap"
)

// SecurityLogService is the append-only audit sink consumed by every other
// service. Operator statistics are always derived by filtering this log;
// no counter is kept anywhere else.
type SecurityLogService struct{}

// NewSecurityLogService creates a new SecurityLogService
func NewSecurityLogService() *SecurityLogService {
	return &SecurityLogService{}
}

// SecurityStats is the operator-facing aggregate over the audit log.
type SecurityStats struct {
	BlockedCount    int64 `json:"blocked_count"`
	BotAttempts     int64 `json:"bot_attempts"`
	ThreatCount     int64 `json:"threat_count"`
	FailedLogins    int64 `json:"failed_logins"`
	LockoutsTotal   int64 `json:"lockouts_total"`
	TwoFactorFailed int64 `json:"two_factor_failed"`
}

// Add appends one audit record. Every Allow/Deny decision, login
// success/failure, lockout trigger, 2FA/WebAuthn outcome, session
// termination and IP-rule mutation goes through here exactly once.
func (s *SecurityLogService) Add(eventType models.SecurityEventType, action string, userID *string, ip, userAgent string, blocked bool, detail interface{}) error {
	var jsonData []byte
	if detail != nil {
		var err error
		jsonData, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("failed to marshal detail: %w", err)
		}
	}

	entry := models.SecurityLog{
		EventType: eventType,
		Action:    action,
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		Blocked:   blocked,
		Detail:    jsonData,
	}

	if err := repositories.DBS.Postgres.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to insert security log record: %w", err)
	}

	if blocked {
		configs.Logger.Warn("Security event recorded",
			zap.String("type", string(eventType)),
			zap.String("ip", ip),
			zap.Bool("blocked", true))
	} else {
		configs.Logger.Info("Security event recorded",
			zap.String("type", string(eventType)),
			zap.String("ip", ip))
	}
	return nil
}

// Stats derives the operator counters purely from the log table.
func (s *SecurityLogService) Stats() (*SecurityStats, error) {
	stats := &SecurityStats{}

	if err := repositories.DBS.Postgres.Model(&models.SecurityLog{}).
		Where("blocked = ?", true).
		Count(&stats.BlockedCount).Error; err != nil {
		return nil, err
	}

	queries := []struct {
		dst   *int64
		types []models.SecurityEventType
	}{
		{&stats.BotAttempts, []models.SecurityEventType{models.SecurityEventRateLimitExceeded, models.SecurityEventCaptchaFailed}},
		{&stats.ThreatCount, []models.SecurityEventType{models.SecurityEventIPBlocked, models.SecurityEventLoginLockout, models.SecurityEventWebAuthnFailed}},
		{&stats.FailedLogins, []models.SecurityEventType{models.SecurityEventLoginFailed}},
		{&stats.LockoutsTotal, []models.SecurityEventType{models.SecurityEventLoginLockout}},
		{&stats.TwoFactorFailed, []models.SecurityEventType{models.SecurityEventTwoFactorFailed}},
	}

	for _, q := range queries {
		if err := repositories.DBS.Postgres.Model(&models.SecurityLog{}).
			Where("event_type IN ?", q.types).
			Count(q.dst).Error; err != nil {
			return nil, err
		}
	}

	return stats, nil
}

// Recent returns the newest entries for the operator view.
func (s *SecurityLogService) Recent(limit int) ([]models.SecurityLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []models.SecurityLog
	err := repositories.DBS.Postgres.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Global instance of SecurityLogService
var SecurityLogSvc = NewSecurityLogService()
