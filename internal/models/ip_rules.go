package models

import (
	"time"

	"gorm.io/gorm"
)

// IPRuleKind distinguishes allow and deny rules.
type IPRuleKind string

const (
	IPRuleWhitelist IPRuleKind = "whitelist"
	IPRuleBlacklist IPRuleKind = "blacklist"
)

// IPRule is a whitelist or blacklist entry matched against the client IP
// before any other check. A blacklist match always wins over a whitelist
// match; a non-empty whitelist denies anything it does not contain.
type IPRule struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Value     string         `gorm:"size:64;index" json:"ip_address"` // Exact IP or CIDR
	Kind      IPRuleKind     `gorm:"size:20;index" json:"type"`
	Reason    string         `gorm:"size:250" json:"reason"`
	CreatedBy string         `gorm:"type:char(12)" json:"created_by"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
