package models

import (
	"time"

	"gorm.io/gorm"
)

// Session records one authenticated login bound to a transport-level
// session identifier. Exactly one active row exists per transport id;
// establishing a new one invalidates the prior row (replace-on-login).
type Session struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string         `gorm:"size:128;index" json:"session_id"`   // Transport session identifier
	UserID    string         `gorm:"type:char(12);index" json:"user_id"` // Associated user
	IP        string         `gorm:"size:50" json:"ip"`                  // Source IP address
	UserAgent string         `gorm:"size:250" json:"user_agent"`         // User agent information
	Active    bool           `gorm:"default:true;index" json:"active"`
	ExpiresAt time.Time      `json:"expires_at"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	User *User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
}

// PendingAuthState is the transient record of an in-progress login, keyed
// by the caller's transport session token. It exists between a successful
// password check and second-factor completion, or during 2FA enrollment,
// and is deleted on completion or cancellation.
type PendingAuthState struct {
	SessionToken    string         `gorm:"size:128;primaryKey" json:"session_token"`
	PendingUserID   string         `gorm:"type:char(12);index" json:"pending_user_id"`
	Awaiting2FA     bool           `gorm:"column:awaiting_2fa;default:false" json:"awaiting_2fa"`
	TempSecret      string         `gorm:"size:500" json:"-"`           // Encrypted secret during enrollment
	WebAuthnSession string         `gorm:"type:text" json:"-"`          // Serialized assertion session data
	IP              string         `gorm:"size:50" json:"ip"`
	UserAgent       string         `gorm:"size:250" json:"user_agent"`
	ExpiresAt       time.Time      `gorm:"index" json:"expires_at"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
