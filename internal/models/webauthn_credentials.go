package models

import (
	"time"

	"gorm.io/gorm"
)

// WebAuthnCredential is a registered public-key credential belonging to
// exactly one user. SignCount is monotonically non-decreasing; an
// assertion carrying an equal-or-lower counter is treated as a forgery
// signal and rejected.
type WebAuthnCredential struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       string         `gorm:"type:char(12);index" json:"user_id"`         // Owner
	CredentialID string         `gorm:"size:512;uniqueIndex" json:"credential_id"`  // Base64url credential id
	PublicKey    []byte         `gorm:"type:bytea" json:"-"`                        // COSE public key
	SignCount    uint32         `gorm:"default:0" json:"sign_count"`
	Label        string         `gorm:"size:100" json:"label"`              // User-facing device label
	Transports   string         `gorm:"size:100" json:"transports"`         // Comma-joined transport hints
	LastUsedAt   *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	User *User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
}

// WebAuthnChallenge is a single-use registration challenge bound to an
// authenticated transport session. It is deleted after verification,
// whether that verification succeeds or not.
type WebAuthnChallenge struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionToken string         `gorm:"size:128;uniqueIndex" json:"session_token"`
	UserID       string         `gorm:"type:char(12);index" json:"user_id"`
	SessionData  string         `gorm:"type:text" json:"-"` // Serialized ceremony session data
	ExpiresAt    time.Time      `gorm:"index" json:"expires_at"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
