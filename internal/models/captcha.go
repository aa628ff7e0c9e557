package models

import (
	"time"

	"gorm.io/gorm"
)

// Challenge kinds for the "local" captcha mode.
const (
	CaptchaTypeImage = "image"
	CaptchaTypeMath  = "math"
)

// CaptchaChallenge is a locally generated challenge for the "local"
// captcha mode. Answers are stored hashed; challenges are single-use.
type CaptchaChallenge struct {
	ID            uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	ChallengeID   string         `gorm:"size:64;uniqueIndex" json:"challenge_id"`
	ChallengeType string         `gorm:"size:20" json:"challenge_type"` // "image" or "math"
	Answer        string         `gorm:"size:128" json:"-"`             // SHA-256 of the expected answer
	IP            string         `gorm:"size:50;index" json:"ip"`
	UserAgent     string         `gorm:"size:250" json:"user_agent"`
	Used          bool           `gorm:"default:false" json:"used"`
	AttemptCount  int            `gorm:"default:0" json:"attempt_count"`
	ExpiresAt     time.Time      `gorm:"index" json:"expires_at"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
