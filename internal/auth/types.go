package auth

import (
	"net/http"

	"authsec-server/internal/models"

	"github.com/go-webauthn/webauthn/protocol"
)

// AuthServiceInterface defines the public API of the authentication flow.
type AuthServiceInterface interface {
	Register(params RegisterParams) (*models.User, error)
	Login(params LoginParams) (*LoginResult, error)
	Verify2FA(params Verify2FAParams) (*models.User, error)
	BeginWebAuthnLogin(sessionToken string) (*protocol.CredentialAssertion, error)
	FinishWebAuthnLogin(sessionToken string, req *http.Request, ip, userAgent string) (*models.User, error)
	Logout(transportID string) error
}

// RegisterParams carries a registration request.
type RegisterParams struct {
	Email     string
	Password  string
	Username  string
	IP        string
	UserAgent string
}

// LoginParams carries one login attempt.
type LoginParams struct {
	UsernameOrEmail string
	Password        string
	CaptchaToken    string
	IP              string
	UserAgent       string
	AcceptLanguage  string
	// SessionToken is the transport session id the pending auth state is
	// keyed by when the account requires a second factor.
	SessionToken string
}

// Verify2FAParams carries a TOTP code completing a pending login.
type Verify2FAParams struct {
	SessionToken string
	Code         string
	IP           string
	UserAgent    string
}

// LoginResult is the outcome of the first login phase. Either the login is
// complete and User is set, or a second factor is required and the caller
// must finish via Verify2FA or the WebAuthn assertion flow.
type LoginResult struct {
	User         *models.User
	Requires2FA  bool
	HasBiometric bool
}
