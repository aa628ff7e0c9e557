package models

import (
	"time"

	"gorm.io/datatypes"
)

// SecurityEventType defines the types of security-relevant decisions the
// core records. Operator statistics are derived by filtering this log by
// event type and blocked flag; no separate counters exist.
type SecurityEventType string

const (
	// Login flow
	SecurityEventLoginSuccess  SecurityEventType = "login_success"
	SecurityEventLoginFailed   SecurityEventType = "login_failed"
	SecurityEventLoginLockout  SecurityEventType = "login_lockout"
	SecurityEventCaptchaFailed SecurityEventType = "captcha_failed"

	// Perimeter
	SecurityEventIPBlocked         SecurityEventType = "ip_blocked"
	SecurityEventRateLimitExceeded SecurityEventType = "rate_limit_exceeded"

	// Second factor
	SecurityEventTwoFactorEnabled  SecurityEventType = "two_factor_enabled"
	SecurityEventTwoFactorDisabled SecurityEventType = "two_factor_disabled"
	SecurityEventTwoFactorVerified SecurityEventType = "two_factor_verified"
	SecurityEventTwoFactorFailed   SecurityEventType = "two_factor_failed"

	// WebAuthn
	SecurityEventWebAuthnRegistered SecurityEventType = "webauthn_registered"
	SecurityEventWebAuthnVerified   SecurityEventType = "webauthn_verified"
	SecurityEventWebAuthnFailed     SecurityEventType = "webauthn_failed"

	// Sessions and rules
	SecurityEventSessionTerminated SecurityEventType = "session_terminated"
	SecurityEventPasswordExpired   SecurityEventType = "password_expired"
	SecurityEventIPRuleCreated     SecurityEventType = "ip_rule_created"
	SecurityEventIPRuleDeleted     SecurityEventType = "ip_rule_deleted"
)

// SecurityLog is an immutable, append-only audit record. Rows are never
// updated or deleted by this core.
type SecurityLog struct {
	ID        uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType SecurityEventType `gorm:"size:50;not null;index" json:"event_type"`
	Action    string            `gorm:"size:100" json:"action"`
	UserID    *string           `gorm:"type:char(12);index" json:"user_id,omitempty"` // Optional: perimeter events have no user
	IP        string            `gorm:"size:50;index" json:"ip"`
	UserAgent string            `gorm:"size:250" json:"user_agent"`
	Blocked   bool              `gorm:"index" json:"blocked"`
	Detail    datatypes.JSON    `gorm:"type:jsonb" json:"detail"` // Structured event details
	CreatedAt time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}
