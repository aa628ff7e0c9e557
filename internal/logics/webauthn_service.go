package logics

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"authsec-server/configs"
	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"go.uber.org/zap"
)

// WebAuthnService drives credential registration and assertion ceremonies.
// Registration challenges are single-use rows bound to the authenticated
// transport session; assertion session data is parked on the caller's
// PendingAuthState.
type WebAuthnService struct {
	once sync.Once
	wa   *webauthn.WebAuthn
	err  error
}

// NewWebAuthnService creates a new WebAuthnService
func NewWebAuthnService() *WebAuthnService {
	return &WebAuthnService{}
}

func (s *WebAuthnService) instance() (*webauthn.WebAuthn, error) {
	s.once.Do(func() {
		cfg := configs.Configs.Security.WebAuthn
		s.wa, s.err = webauthn.New(&webauthn.Config{
			RPID:          cfg.RPID,
			RPDisplayName: cfg.RPDisplayName,
			RPOrigins:     cfg.RPOrigins,
		})
	})
	return s.wa, s.err
}

// webAuthnUser adapts a models.User and its stored credentials to the
// webauthn.User interface.
type webAuthnUser struct {
	user  *models.User
	creds []models.WebAuthnCredential
}

func (u *webAuthnUser) WebAuthnID() []byte          { return []byte(u.user.ID) }
func (u *webAuthnUser) WebAuthnName() string        { return u.user.Username }
func (u *webAuthnUser) WebAuthnDisplayName() string { return u.user.Username }
func (u *webAuthnUser) WebAuthnIcon() string        { return "" }

func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	out := make([]webauthn.Credential, 0, len(u.creds))
	for _, c := range u.creds {
		id, err := base64.RawURLEncoding.DecodeString(c.CredentialID)
		if err != nil {
			continue
		}
		var transports []protocol.AuthenticatorTransport
		for _, t := range strings.Split(c.Transports, ",") {
			if t != "" {
				transports = append(transports, protocol.AuthenticatorTransport(t))
			}
		}
		out = append(out, webauthn.Credential{
			ID:        id,
			PublicKey: c.PublicKey,
			Transport: transports,
			Authenticator: webauthn.Authenticator{
				SignCount: c.SignCount,
			},
		})
	}
	return out
}

// loadUser fetches the user's registered credentials.
func (s *WebAuthnService) loadUser(user *models.User) (*webAuthnUser, error) {
	var creds []models.WebAuthnCredential
	if err := repositories.DBS.Postgres.Where("user_id = ?", user.ID).Find(&creds).Error; err != nil {
		return nil, err
	}
	return &webAuthnUser{user: user, creds: creds}, nil
}

// HasCredential reports whether the account owns at least one registered
// credential. The login response uses this as the biometric hint.
func (s *WebAuthnService) HasCredential(userID string) bool {
	var count int64
	repositories.DBS.Postgres.Model(&models.WebAuthnCredential{}).
		Where("user_id = ?", userID).
		Count(&count)
	return count > 0
}

// CredentialsFor lists the account's registered credentials.
func (s *WebAuthnService) CredentialsFor(userID string) ([]models.WebAuthnCredential, error) {
	var creds []models.WebAuthnCredential
	err := repositories.DBS.Postgres.Where("user_id = ?", userID).Find(&creds).Error
	return creds, err
}

// BeginRegistration issues a registration challenge bound to the caller's
// transport session. Any earlier unfinished challenge for the session is
// replaced.
func (s *WebAuthnService) BeginRegistration(user *models.User, sessionToken string) (*protocol.CredentialCreation, error) {
	wa, err := s.instance()
	if err != nil {
		return nil, err
	}

	wu, err := s.loadUser(user)
	if err != nil {
		return nil, err
	}

	// Exclude already-registered credentials from re-registration.
	exclusions := make([]protocol.CredentialDescriptor, 0, len(wu.creds))
	for _, c := range wu.WebAuthnCredentials() {
		exclusions = append(exclusions, c.Descriptor())
	}

	options, sessionData, err := wa.BeginRegistration(wu, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(sessionData)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(configs.Configs.Security.PendingAuthTtlMin) * time.Minute
	repositories.DBS.Postgres.Unscoped().Where("session_token = ?", sessionToken).Delete(&models.WebAuthnChallenge{})
	challenge := models.WebAuthnChallenge{
		SessionToken: sessionToken,
		UserID:       user.ID,
		SessionData:  string(raw),
		ExpiresAt:    time.Now().Add(ttl),
	}
	if err := repositories.DBS.Postgres.Create(&challenge).Error; err != nil {
		return nil, fmt.Errorf("failed to store registration challenge: %w", err)
	}

	return options, nil
}

// FinishRegistration verifies the attestation against the stored challenge
// and persists the new credential. The challenge is single-use: it is
// cleared whether verification succeeds or fails.
func (s *WebAuthnService) FinishRegistration(user *models.User, sessionToken, label string, req *http.Request, ip, userAgent string) (*models.WebAuthnCredential, error) {
	wa, err := s.instance()
	if err != nil {
		return nil, err
	}

	var challenge models.WebAuthnChallenge
	if err := repositories.DBS.Postgres.
		Where("session_token = ? AND user_id = ? AND expires_at > ?", sessionToken, user.ID, time.Now()).
		First(&challenge).Error; err != nil {
		return nil, fmt.Errorf("no registration challenge for this session: %w", err)
	}
	defer repositories.DBS.Postgres.Unscoped().Delete(&challenge)

	var sessionData webauthn.SessionData
	if err := json.Unmarshal([]byte(challenge.SessionData), &sessionData); err != nil {
		return nil, err
	}

	wu, err := s.loadUser(user)
	if err != nil {
		return nil, err
	}

	credential, err := wa.FinishRegistration(wu, sessionData, req)
	if err != nil {
		return nil, err
	}

	transports := make([]string, 0, len(credential.Transport))
	for _, t := range credential.Transport {
		transports = append(transports, string(t))
	}

	stored := models.WebAuthnCredential{
		UserID:       user.ID,
		CredentialID: base64.RawURLEncoding.EncodeToString(credential.ID),
		PublicKey:    credential.PublicKey,
		SignCount:    credential.Authenticator.SignCount,
		Label:        label,
		Transports:   strings.Join(transports, ","),
	}
	if err := repositories.DBS.Postgres.Create(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}

	userID := user.ID
	_ = SecurityLogSvc.Add(models.SecurityEventWebAuthnRegistered, "webauthn_registered", &userID, ip, userAgent, false, map[string]interface{}{
		"credential_id": stored.CredentialID,
		"label":         label,
	})

	return &stored, nil
}

// BeginLogin issues an assertion challenge scoped to the pending account's
// registered credentials. The ceremony session data is parked on the
// PendingAuthState row.
func (s *WebAuthnService) BeginLogin(user *models.User, pending *models.PendingAuthState) (*protocol.CredentialAssertion, error) {
	wa, err := s.instance()
	if err != nil {
		return nil, err
	}

	wu, err := s.loadUser(user)
	if err != nil {
		return nil, err
	}
	if len(wu.creds) == 0 {
		return nil, fmt.Errorf("no registered credentials for this account")
	}

	options, sessionData, err := wa.BeginLogin(wu)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(sessionData)
	if err != nil {
		return nil, err
	}

	if err := repositories.DBS.Postgres.Model(pending).
		Update("web_authn_session", string(raw)).Error; err != nil {
		return nil, err
	}
	pending.WebAuthnSession = string(raw)

	return options, nil
}

// FinishLogin verifies the assertion and enforces the monotonic signature
// counter: an assertion whose counter is not strictly greater than the
// stored one is rejected as a replay/clone signal even when the signature
// itself verifies.
func (s *WebAuthnService) FinishLogin(user *models.User, pending *models.PendingAuthState, req *http.Request) error {
	wa, err := s.instance()
	if err != nil {
		return err
	}
	if pending.WebAuthnSession == "" {
		return fmt.Errorf("no assertion challenge in progress")
	}

	var sessionData webauthn.SessionData
	if err := json.Unmarshal([]byte(pending.WebAuthnSession), &sessionData); err != nil {
		return err
	}

	wu, err := s.loadUser(user)
	if err != nil {
		return err
	}

	credential, err := wa.FinishLogin(wu, sessionData, req)
	if err != nil {
		return err
	}

	credID := base64.RawURLEncoding.EncodeToString(credential.ID)
	var stored models.WebAuthnCredential
	if err := repositories.DBS.Postgres.
		Where("user_id = ? AND credential_id = ?", user.ID, credID).
		First(&stored).Error; err != nil {
		return fmt.Errorf("assertion credential not registered: %w", err)
	}

	if err := ValidateSignCount(stored.SignCount, credential.Authenticator.SignCount); err != nil {
		configs.Logger.Warn("WebAuthn counter regression",
			zap.String("user_id", user.ID),
			zap.String("credential_id", credID),
			zap.Uint32("stored", stored.SignCount),
			zap.Uint32("asserted", credential.Authenticator.SignCount))
		return err
	}

	now := time.Now()
	if err := repositories.DBS.Postgres.Model(&stored).Updates(map[string]interface{}{
		"sign_count":   credential.Authenticator.SignCount,
		"last_used_at": &now,
	}).Error; err != nil {
		return err
	}

	return nil
}

// ValidateSignCount enforces the strictly-increasing signature counter
// required of every assertion.
func ValidateSignCount(stored, asserted uint32) error {
	if asserted <= stored {
		return fmt.Errorf("signature counter did not advance (stored %d, asserted %d)", stored, asserted)
	}
	return nil
}

// Global instance of WebAuthnService
var WebAuthnSvc = NewWebAuthnService()
