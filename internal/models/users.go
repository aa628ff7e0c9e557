package models

import (
	"time"

	"gorm.io/gorm"
)

// Role is a closed set of account roles. Authorization checks compare
// against these constants, never against free-form strings.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// CanManageSecurity reports whether the role may touch IP rules,
// foreign sessions and operator statistics.
func (r Role) CanManageSecurity() bool {
	return r == RoleAdmin
}

// User represents a system account
// Core model used by all authentication and session services
type User struct {
	ID                string     `gorm:"type:char(12);primaryKey" json:"id"`            // User unique ID
	Username          string     `gorm:"size:100;not null;uniqueIndex" json:"username"` // Username for login
	Email             string     `gorm:"size:250;not null;uniqueIndex" json:"email"`    // Email address
	Password          string     `gorm:"size:250;not null" json:"-"`                    // Hashed password
	Hash              string     `gorm:"size:250;not null" json:"-"`                    // Salt value
	Role              Role       `gorm:"size:20;default:'user'" json:"role"`
	TwoFactorSecret   string     `gorm:"size:500" json:"-"`                   // Encrypted TOTP secret
	TwoFactorEnabled  bool       `gorm:"default:false" json:"two_factor_enabled"`
	PasswordUpdatedAt *time.Time `json:"password_updated_at,omitempty"` // Last password change
	PasswordExpiresAt *time.Time `json:"password_expires_at,omitempty"` // Explicit expiry override

	// Standard metadata fields
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	Sessions            []Session            `gorm:"foreignKey:UserID" json:"sessions,omitempty"`
	WebAuthnCredentials []WebAuthnCredential `gorm:"foreignKey:UserID" json:"webauthn_credentials,omitempty"`
	TrustedDevices      []TrustedDevice      `gorm:"foreignKey:UserID" json:"trusted_devices,omitempty"`
}

// SanitizedUser is the client-facing shape of a User with all credential
// material stripped.
type SanitizedUser struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Role             Role   `json:"role"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

// Sanitize strips secrets from a User for API responses.
func (u *User) Sanitize() SanitizedUser {
	return SanitizedUser{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		Role:             u.Role,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}
