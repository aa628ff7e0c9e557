package auth

import (
	"errors"
	"fmt"
)

// Error codes surfaced by the authentication flow. Controllers map these
// to HTTP statuses.
const (
	ErrAccessDenied       = "access_denied"
	ErrRateLimited        = "rate_limited"
	ErrInvalidCredentials = "invalid_credentials"
	ErrCaptchaFailed      = "captcha_failed"
	ErrTwoFactorInvalid   = "two_factor_invalid"
	ErrPasswordExpired    = "password_expired"
	ErrWebAuthnFailed     = "webauthn_failed"
	ErrSessionInvalid     = "session_invalid"
)

// AuthError carries a stable code alongside a user-presentable message.
type AuthError struct {
	Code    string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func NewAuthError(code, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

func NewAuthErrorWithCause(code, message string, cause error) *AuthError {
	return &AuthError{Code: code, Message: message, Err: cause}
}

// IsAuthError reports whether err is an AuthError with the given code.
func IsAuthError(err error, code string) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code == code
	}
	return false
}
