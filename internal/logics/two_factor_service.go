package logics

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"authsec-server/configs"
	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

// TOTP related constants
const (
	totpIssuer = "AuthSec"
	totpPeriod = 30
	totpSkew   = 2 // accepted steps either side of now (~60s clock drift)
)

// TwoFactorService provides TOTP enrollment and verification. Secrets are
// encrypted at rest with AES-GCM; the enrollment secret lives on the
// pending auth state until the user proves possession.
type TwoFactorService struct{}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService() *TwoFactorService {
	return &TwoFactorService{}
}

// encryptionKey derives a consistent-length key from the session secret.
func (s *TwoFactorService) encryptionKey() []byte {
	hasher := sha256.New()
	hasher.Write([]byte(configs.Configs.Secrets.SessionSecret))
	return hasher.Sum(nil)
}

// Generate creates a new TOTP secret for enrollment. The secret is parked,
// encrypted, on the caller's PendingAuthState row and is not written to
// the account until VerifyAndEnable succeeds.
func (s *TwoFactorService) Generate(user *models.User, sessionToken, ip, userAgent string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Email,
	})
	if err != nil {
		return nil, err
	}

	encryptedSecret, err := s.encrypt(key.Secret())
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(configs.Configs.Security.PendingAuthTtlMin) * time.Minute
	pending := models.PendingAuthState{
		SessionToken:  sessionToken,
		PendingUserID: user.ID,
		Awaiting2FA:   false,
		TempSecret:    encryptedSecret,
		IP:            ip,
		UserAgent:     userAgent,
		ExpiresAt:     time.Now().Add(ttl),
	}

	// Re-generating replaces any earlier enrollment state for this session.
	repositories.DBS.Postgres.Unscoped().Where("session_token = ?", sessionToken).Delete(&models.PendingAuthState{})
	if err := repositories.DBS.Postgres.Create(&pending).Error; err != nil {
		return nil, fmt.Errorf("failed to store enrollment state: %w", err)
	}

	return key, nil
}

// VerifyAndEnable validates an enrollment code against the parked secret
// and, on success, persists it to the account and enables 2FA.
func (s *TwoFactorService) VerifyAndEnable(user *models.User, sessionToken, code, ip, userAgent string) (bool, error) {
	var pending models.PendingAuthState
	err := repositories.DBS.Postgres.
		Where("session_token = ? AND expires_at > ?", sessionToken, time.Now()).
		First(&pending).Error
	if err != nil {
		return false, fmt.Errorf("no enrollment in progress: %w", err)
	}
	if pending.PendingUserID != user.ID || pending.TempSecret == "" {
		return false, fmt.Errorf("no enrollment in progress for this account")
	}

	secret, err := s.decrypt(pending.TempSecret)
	if err != nil {
		return false, err
	}

	if !s.validateCode(code, secret, time.Now()) {
		return false, nil
	}

	if err := repositories.DBS.Postgres.Model(user).Updates(map[string]interface{}{
		"two_factor_secret":  pending.TempSecret,
		"two_factor_enabled": true,
	}).Error; err != nil {
		return false, err
	}
	user.TwoFactorSecret = pending.TempSecret
	user.TwoFactorEnabled = true

	repositories.DBS.Postgres.Unscoped().Delete(&pending)

	userID := user.ID
	_ = SecurityLogSvc.Add(models.SecurityEventTwoFactorEnabled, "two_factor_enabled", &userID, ip, userAgent, false, nil)

	return true, nil
}

// Disable turns 2FA off. A valid current code is required; removal is a
// sensitive action and is audited at warning level.
func (s *TwoFactorService) Disable(user *models.User, code, ip, userAgent string) (bool, error) {
	if !user.TwoFactorEnabled || user.TwoFactorSecret == "" {
		return false, fmt.Errorf("two-factor authentication is not enabled")
	}

	valid, err := s.VerifyLogin(user, code)
	if err != nil {
		return false, err
	}
	if !valid {
		return false, nil
	}

	if err := repositories.DBS.Postgres.Model(user).Updates(map[string]interface{}{
		"two_factor_secret":  "",
		"two_factor_enabled": false,
	}).Error; err != nil {
		return false, err
	}
	user.TwoFactorSecret = ""
	user.TwoFactorEnabled = false

	configs.Logger.Warn("Two-factor authentication disabled",
		zap.String("user_id", user.ID),
		zap.String("ip", ip))
	userID := user.ID
	_ = SecurityLogSvc.Add(models.SecurityEventTwoFactorDisabled, "two_factor_disabled", &userID, ip, userAgent, false, nil)

	return true, nil
}

// VerifyLogin checks a login code against the account's persisted secret.
func (s *TwoFactorService) VerifyLogin(user *models.User, code string) (bool, error) {
	if user.TwoFactorSecret == "" {
		return false, fmt.Errorf("no two-factor secret on account")
	}
	secret, err := s.decrypt(user.TwoFactorSecret)
	if err != nil {
		return false, err
	}
	return s.validateCode(code, secret, time.Now()), nil
}

// validateCode checks a code against a secret at the given instant,
// tolerating totpSkew steps of clock drift in either direction.
func (s *TwoFactorService) validateCode(code, secret string, t time.Time) bool {
	valid, err := totp.ValidateCustom(code, secret, t, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// encrypt encrypts a string using AES-GCM
func (s *TwoFactorService) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey())
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts an AES-GCM encrypted string
func (s *TwoFactorService) decrypt(encryptedText string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedText)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.encryptionKey())
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// Global instance of TwoFactorService
var TwoFactorSvc = NewTwoFactorService()
