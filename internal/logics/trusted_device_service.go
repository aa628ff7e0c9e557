package logics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"gorm.io/gorm"
)

// TrustedDeviceService remembers devices a user has seen or marked as
// trusted so repeat logins from them can be surfaced in the security view.
type TrustedDeviceService struct{}

// NewTrustedDeviceService creates a new TrustedDeviceService
func NewTrustedDeviceService() *TrustedDeviceService {
	return &TrustedDeviceService{}
}

// Fingerprint derives a stable device identifier from request attributes.
func (s *TrustedDeviceService) Fingerprint(userAgent, ip, acceptLanguage string) string {
	sum := sha256.Sum256([]byte(userAgent + "|" + ip + "|" + acceptLanguage))
	return hex.EncodeToString(sum[:])
}

// Touch records a sighting of the device, creating the row untrusted on
// first contact.
func (s *TrustedDeviceService) Touch(userID, fingerprint, deviceName, userAgent, ip string) (*models.TrustedDevice, error) {
	now := time.Now()
	var device models.TrustedDevice
	err := repositories.DBS.Postgres.
		Where("user_id = ? AND fingerprint = ?", userID, fingerprint).
		First(&device).Error
	if err == gorm.ErrRecordNotFound {
		device = models.TrustedDevice{
			UserID:      userID,
			Fingerprint: fingerprint,
			DeviceName:  deviceName,
			UserAgent:   userAgent,
			LastIP:      ip,
			Trusted:     false,
			LastUsedAt:  &now,
		}
		if err := repositories.DBS.Postgres.Create(&device).Error; err != nil {
			return nil, err
		}
		return &device, nil
	}
	if err != nil {
		return nil, err
	}

	if err := repositories.DBS.Postgres.Model(&device).Updates(map[string]interface{}{
		"user_agent":   userAgent,
		"last_ip":      ip,
		"last_used_at": &now,
	}).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

// IsTrusted reports whether the fingerprint is a trusted device of the user.
func (s *TrustedDeviceService) IsTrusted(userID, fingerprint string) bool {
	var count int64
	repositories.DBS.Postgres.Model(&models.TrustedDevice{}).
		Where("user_id = ? AND fingerprint = ? AND trusted = ?", userID, fingerprint, true).
		Count(&count)
	return count > 0
}

// List returns the user's known devices, most recently seen first.
func (s *TrustedDeviceService) List(userID string) ([]models.TrustedDevice, error) {
	var devices []models.TrustedDevice
	err := repositories.DBS.Postgres.
		Where("user_id = ?", userID).
		Order("last_used_at DESC").
		Find(&devices).Error
	return devices, err
}

// Trust marks one of the user's devices as trusted.
func (s *TrustedDeviceService) Trust(userID string, deviceID uint) error {
	result := repositories.DBS.Postgres.Model(&models.TrustedDevice{}).
		Where("id = ? AND user_id = ?", deviceID, userID).
		Update("trusted", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("device not found")
	}
	return nil
}

// Revoke removes a device. The next login from it starts over untrusted.
func (s *TrustedDeviceService) Revoke(userID string, deviceID uint) error {
	result := repositories.DBS.Postgres.
		Where("id = ? AND user_id = ?", deviceID, userID).
		Delete(&models.TrustedDevice{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("device not found")
	}
	return nil
}

// Global instance of TrustedDeviceService
var TrustedDeviceSvc = NewTrustedDeviceService()
