package models

import (
	"time"

	"gorm.io/gorm"
)

// TrustedDevice is a convenience allow-list entry for a device a user has
// marked as their own. Independent of WebAuthnCredential: revoking trusted
// devices (logout everywhere) never removes registered credentials.
type TrustedDevice struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      string         `gorm:"type:char(12);index" json:"user_id"`  // Associated user
	Fingerprint string         `gorm:"size:64;index" json:"fingerprint"`    // SHA-256 device fingerprint
	DeviceName  string         `gorm:"size:100" json:"device_name"`         // User-defined device name
	UserAgent   string         `gorm:"size:250" json:"user_agent"`          // User agent information
	LastIP      string         `gorm:"size:50" json:"last_ip"`              // Last IP address used
	Trusted     bool           `gorm:"default:false" json:"trusted"`
	LastUsedAt  *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	User *User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
}
