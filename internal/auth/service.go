package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"authsec-server/configs"
	"authsec-server/internal/logics"
	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"github.com/go-webauthn/webauthn/protocol"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// dummyHash is a valid bcrypt hash compared against when the account does
// not exist, so the unknown-user path costs the same as a wrong password.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// AuthService is the login state machine. Every attempt walks the same
// gate order: IP rules, lockout, captcha, credentials; only then does the
// flow branch on the account's second factor.
type AuthService struct{}

var authService AuthServiceInterface

// GetAuthService returns the global AuthService instance.
func GetAuthService() AuthServiceInterface {
	if authService == nil {
		authService = NewAuthService()
	}
	return authService
}

// NewAuthService creates a new instance of the authentication service.
func NewAuthService() AuthServiceInterface {
	return &AuthService{}
}

// Register creates a new account.
func (svc *AuthService) Register(params RegisterParams) (*models.User, error) {
	// 1. Reject duplicate email
	var existing models.User
	result := repositories.DBS.Postgres.Where("email = ?", params.Email).First(&existing)
	if result.Error == nil {
		return nil, NewAuthError(ErrInvalidCredentials, "email already registered")
	} else if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", result.Error)
	}

	// 2. Hash password
	hashedPassword, salt, err := HashPassword(params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// 3. Generate unique ID
	uid, err := logics.UniqueIDSvc.GenerateID("u")
	if err != nil {
		return nil, fmt.Errorf("failed to generate user ID: %w", err)
	}

	username := params.Username
	if username == "" {
		username = ExtractUsernameFromEmail(params.Email)
	}

	// 4. Create the user with a fresh password age
	now := time.Now()
	user := models.User{
		ID:                uid,
		Email:             params.Email,
		Username:          username,
		Password:          hashedPassword,
		Hash:              salt,
		Role:              models.RoleUser,
		PasswordUpdatedAt: &now,
	}
	if err := repositories.DBS.Postgres.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &user, nil
}

// Login runs the first phase of the state machine. On a 2FA account it
// parks a pending auth state keyed by the caller's transport session and
// returns without a completed login; otherwise the credentials alone
// complete it.
func (svc *AuthService) Login(params LoginParams) (*LoginResult, error) {
	// 1. IP rules come before anything else
	if allowed, reason := logics.IPAccessSvc.Evaluate(params.IP, params.UserAgent); !allowed {
		return nil, NewAuthError(ErrAccessDenied, reason)
	}

	// 2. Lockout is checked before credentials so a locked IP learns
	// nothing about the account
	if locked, remaining := logics.RateLimitSvc.IsLockedOut(params.IP); locked {
		return nil, NewAuthError(ErrRateLimited,
			fmt.Sprintf("too many failed attempts, retry in %d seconds", int(remaining.Seconds())))
	}

	// 3. Captcha, when configured
	ok, err := logics.CaptchaSvc.Verify(params.CaptchaToken, params.IP, params.UserAgent)
	if err != nil {
		configs.Logger.Error("captcha verification error", zap.Error(err))
	}
	if !ok {
		// A failed captcha is a failed attempt; it counts toward the
		// lockout like a wrong password does.
		logics.RateLimitSvc.RecordFailure(params.IP, params.UserAgent)
		_ = logics.SecurityLogSvc.Add(models.SecurityEventCaptchaFailed, "login_captcha", nil, params.IP, params.UserAgent, true, map[string]interface{}{
			"identifier": params.UsernameOrEmail,
		})
		return nil, NewAuthError(ErrCaptchaFailed, "captcha verification failed")
	}

	// 4. Look up the account by username or email
	var user models.User
	lookupErr := repositories.DBS.Postgres.
		Where("username = ? OR email = ?", params.UsernameOrEmail, params.UsernameOrEmail).
		First(&user).Error

	// 5. Verify the password. Unknown accounts burn the same bcrypt cost
	// and share the exact failure path as a wrong password.
	if lookupErr != nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(params.Password))
		return nil, svc.failCredentials(nil, params)
	}
	if err := VerifyPassword(user.Password, params.Password, user.Hash); err != nil {
		userID := user.ID
		return nil, svc.failCredentials(&userID, params)
	}

	// 6. Correct credentials reset the lockout counter
	logics.RateLimitSvc.ClearFailures(params.IP)

	// 7. Remember this device
	fingerprint := logics.TrustedDeviceSvc.Fingerprint(params.UserAgent, params.IP, params.AcceptLanguage)
	if _, err := logics.TrustedDeviceSvc.Touch(user.ID, fingerprint, "", params.UserAgent, params.IP); err != nil {
		configs.Logger.Error("failed to record device", zap.Error(err))
	}

	// 8. A 2FA account never completes on the password alone
	if user.TwoFactorEnabled {
		if err := svc.createPendingState(&user, params); err != nil {
			return nil, fmt.Errorf("failed to park pending login: %w", err)
		}
		return &LoginResult{
			Requires2FA:  true,
			HasBiometric: logics.WebAuthnSvc.HasCredential(user.ID),
		}, nil
	}

	// 9. Password age gate
	if err := svc.checkPasswordExpiry(&user, params.IP, params.UserAgent); err != nil {
		return nil, err
	}

	svc.logSuccess(&user, params.IP, params.UserAgent, "password")
	return &LoginResult{User: &user}, nil
}

// Verify2FA completes a pending login with a TOTP code. A wrong code keeps
// the pending state alive and does not touch the lockout counter; the
// password was already proven.
func (svc *AuthService) Verify2FA(params Verify2FAParams) (*models.User, error) {
	pending, user, err := svc.loadPending(params.SessionToken)
	if err != nil {
		return nil, err
	}

	ok, err := logics.TwoFactorSvc.VerifyLogin(user, params.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to verify code: %w", err)
	}
	if !ok {
		userID := user.ID
		_ = logics.SecurityLogSvc.Add(models.SecurityEventTwoFactorFailed, "login_2fa", &userID, params.IP, params.UserAgent, true, nil)
		return nil, NewAuthError(ErrTwoFactorInvalid, "invalid verification code")
	}

	userID := user.ID
	_ = logics.SecurityLogSvc.Add(models.SecurityEventTwoFactorVerified, "login_2fa", &userID, params.IP, params.UserAgent, false, nil)

	return svc.completePending(pending, user, params.IP, params.UserAgent, "totp")
}

// BeginWebAuthnLogin starts an assertion ceremony for a pending login.
func (svc *AuthService) BeginWebAuthnLogin(sessionToken string) (*protocol.CredentialAssertion, error) {
	pending, user, err := svc.loadPending(sessionToken)
	if err != nil {
		return nil, err
	}

	options, err := logics.WebAuthnSvc.BeginLogin(user, pending)
	if err != nil {
		return nil, NewAuthErrorWithCause(ErrWebAuthnFailed, "failed to start assertion", err)
	}
	return options, nil
}

// FinishWebAuthnLogin verifies the assertion response and completes the
// pending login.
func (svc *AuthService) FinishWebAuthnLogin(sessionToken string, req *http.Request, ip, userAgent string) (*models.User, error) {
	pending, user, err := svc.loadPending(sessionToken)
	if err != nil {
		return nil, err
	}

	userID := user.ID
	if err := logics.WebAuthnSvc.FinishLogin(user, pending, req); err != nil {
		_ = logics.SecurityLogSvc.Add(models.SecurityEventWebAuthnFailed, "login_webauthn", &userID, ip, userAgent, true, map[string]interface{}{
			"reason": err.Error(),
		})
		return nil, NewAuthErrorWithCause(ErrWebAuthnFailed, "assertion verification failed", err)
	}

	_ = logics.SecurityLogSvc.Add(models.SecurityEventWebAuthnVerified, "login_webauthn", &userID, ip, userAgent, false, nil)

	return svc.completePending(pending, user, ip, userAgent, "webauthn")
}

// Logout deactivates the session row behind the transport id.
func (svc *AuthService) Logout(transportID string) error {
	return logics.SessionSvc.Deactivate(transportID)
}

// failCredentials is the single failure path for bad credentials. The
// caller's response is identical whether the account exists or not.
func (svc *AuthService) failCredentials(userID *string, params LoginParams) error {
	logics.RateLimitSvc.RecordFailure(params.IP, params.UserAgent)
	_ = logics.SecurityLogSvc.Add(models.SecurityEventLoginFailed, "login_password", userID, params.IP, params.UserAgent, true, map[string]interface{}{
		"identifier": params.UsernameOrEmail,
	})
	return NewAuthError(ErrInvalidCredentials, "invalid username or password")
}

// createPendingState parks a half-finished login keyed by the transport
// session token, replacing any earlier one for the same session.
func (svc *AuthService) createPendingState(user *models.User, params LoginParams) error {
	if params.SessionToken == "" {
		return NewAuthError(ErrSessionInvalid, "no transport session")
	}

	repositories.DBS.Postgres.Unscoped().
		Where("session_token = ?", params.SessionToken).
		Delete(&models.PendingAuthState{})

	ttl := time.Duration(configs.Configs.Security.PendingAuthTtlMin) * time.Minute
	pending := models.PendingAuthState{
		SessionToken:  params.SessionToken,
		PendingUserID: user.ID,
		Awaiting2FA:   true,
		IP:            params.IP,
		UserAgent:     params.UserAgent,
		ExpiresAt:     time.Now().Add(ttl),
	}
	return repositories.DBS.Postgres.Create(&pending).Error
}

// loadPending resolves an unexpired pending auth state and its account.
func (svc *AuthService) loadPending(sessionToken string) (*models.PendingAuthState, *models.User, error) {
	if sessionToken == "" {
		return nil, nil, NewAuthError(ErrSessionInvalid, "no transport session")
	}

	var pending models.PendingAuthState
	if err := repositories.DBS.Postgres.
		Where("session_token = ? AND awaiting_2fa = ? AND expires_at > ?", sessionToken, true, time.Now()).
		First(&pending).Error; err != nil {
		return nil, nil, NewAuthError(ErrSessionInvalid, "no login awaiting verification")
	}

	var user models.User
	if err := repositories.DBS.Postgres.Where("id = ?", pending.PendingUserID).First(&user).Error; err != nil {
		return nil, nil, NewAuthError(ErrSessionInvalid, "pending account no longer exists")
	}

	return &pending, &user, nil
}

// completePending finishes a verified second factor: the pending state is
// consumed and the remaining gates run.
func (svc *AuthService) completePending(pending *models.PendingAuthState, user *models.User, ip, userAgent, method string) (*models.User, error) {
	repositories.DBS.Postgres.Unscoped().Delete(pending)

	if err := svc.checkPasswordExpiry(user, ip, userAgent); err != nil {
		return nil, err
	}

	svc.logSuccess(user, ip, userAgent, method)
	return user, nil
}

// checkPasswordExpiry enforces the password age limit. An account that has
// never been stamped gets stamped now rather than rejected.
func (svc *AuthService) checkPasswordExpiry(user *models.User, ip, userAgent string) error {
	if !configs.Configs.Security.PasswordExpiryEnabled {
		return nil
	}

	if user.PasswordUpdatedAt == nil {
		now := time.Now()
		if err := repositories.DBS.Postgres.Model(user).
			Update("password_updated_at", &now).Error; err != nil {
			configs.Logger.Error("failed to stamp password age", zap.Error(err))
		}
		user.PasswordUpdatedAt = &now
		return nil
	}

	maxAge := time.Duration(configs.Configs.Security.PasswordMaxAgeDays) * 24 * time.Hour
	if time.Since(*user.PasswordUpdatedAt) > maxAge {
		userID := user.ID
		_ = logics.SecurityLogSvc.Add(models.SecurityEventPasswordExpired, "login_password", &userID, ip, userAgent, true, map[string]interface{}{
			"password_updated_at": user.PasswordUpdatedAt,
		})
		return NewAuthError(ErrPasswordExpired, "password has expired and must be changed")
	}
	return nil
}

func (svc *AuthService) logSuccess(user *models.User, ip, userAgent, method string) {
	userID := user.ID
	configs.Logger.Info("login success",
		zap.String("user_id", userID),
		zap.String("method", method),
		zap.String("ip", ip))
	_ = logics.SecurityLogSvc.Add(models.SecurityEventLoginSuccess, "login_"+method, &userID, ip, userAgent, false, nil)
}
