package auth

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"authsec-server/configs"
	"authsec-server/internal/logics"
	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTest wires an isolated in-memory database and quiet config so each
// test starts from a clean slate.
func setupTest(t *testing.T) *gorm.DB {
	t.Helper()

	configs.Logger = zap.NewNop()
	configs.Configs = configs.Tconfigs{}
	configs.Configs.Secrets.SessionSecret = "test-session-secret-for-unit-tests"
	configs.Configs.Security.ApplyDefaults()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := repositories.AutoMigrateInOrder(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	repositories.DBS = repositories.Dbs{Postgres: db}
	return db
}

// registerTestUser creates an account through the real registration path.
func registerTestUser(t *testing.T, svc AuthServiceInterface, email, password string) *models.User {
	t.Helper()
	user, err := svc.Register(RegisterParams{
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return user
}

// loginParams builds a minimal attempt. The rate limiter is process-global,
// so every test uses its own IP.
func loginParams(identifier, password, ip string) LoginParams {
	return LoginParams{
		UsernameOrEmail: identifier,
		Password:        password,
		IP:              ip,
		UserAgent:       "test-agent",
	}
}

func countEvents(t *testing.T, eventType models.SecurityEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, repositories.DBS.Postgres.Model(&models.SecurityLog{}).
		Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestRegister_DuplicateEmail(t *testing.T) {
	setupTest(t)
	svc := NewAuthService()

	user := registerTestUser(t, svc, "dup@example.com", "correct-horse")
	assert.Len(t, user.ID, 12)
	assert.Equal(t, "dup", user.Username)
	require.NotNil(t, user.PasswordUpdatedAt)

	_, err := svc.Register(RegisterParams{Email: "dup@example.com", Password: "other"})
	assert.True(t, IsAuthError(err, ErrInvalidCredentials))
}

func TestLogin_Success(t *testing.T) {
	setupTest(t)
	svc := NewAuthService()
	registerTestUser(t, svc, "alice@example.com", "correct-horse")

	result, err := svc.Login(loginParams("alice@example.com", "correct-horse", "198.51.100.10"))
	require.NoError(t, err)
	require.NotNil(t, result.User)
	assert.False(t, result.Requires2FA)
	assert.Equal(t, int64(1), countEvents(t, models.SecurityEventLoginSuccess))

	// Username works as the identifier too
	result, err = svc.Login(loginParams("alice", "correct-horse", "198.51.100.10"))
	require.NoError(t, err)
	assert.NotNil(t, result.User)

	// The device was recorded, untrusted
	var devices []models.TrustedDevice
	require.NoError(t, repositories.DBS.Postgres.Find(&devices).Error)
	require.Len(t, devices, 1)
	assert.False(t, devices[0].Trusted)
}

func TestLogin_WrongPasswordMatchesUnknownUser(t *testing.T) {
	setupTest(t)
	svc := NewAuthService()
	registerTestUser(t, svc, "bob@example.com", "correct-horse")

	_, errWrong := svc.Login(loginParams("bob@example.com", "battery-staple", "198.51.100.11"))
	_, errUnknown := svc.Login(loginParams("nobody@example.com", "battery-staple", "198.51.100.11"))

	// Indistinguishable responses whether or not the account exists
	require.Error(t, errWrong)
	require.Error(t, errUnknown)
	assert.True(t, IsAuthError(errWrong, ErrInvalidCredentials))
	assert.True(t, IsAuthError(errUnknown, ErrInvalidCredentials))
	assert.Equal(t, errWrong.Error(), errUnknown.Error())

	assert.Equal(t, int64(2), countEvents(t, models.SecurityEventLoginFailed))
}

func TestLogin_BlacklistedIPDenied(t *testing.T) {
	setupTest(t)
	svc := NewAuthService()
	registerTestUser(t, svc, "carol@example.com", "correct-horse")

	require.NoError(t, repositories.DBS.Postgres.Create(&models.IPRule{
		Value: "203.0.113.7",
		Kind:  models.IPRuleBlacklist,
	}).Error)

	// Denied even with the right password, before credentials are looked at
	_, err := svc.Login(loginParams("carol@example.com", "correct-horse", "203.0.113.7"))
	assert.True(t, IsAuthError(err, ErrAccessDenied))
	assert.Equal(t, int64(0), countEvents(t, models.SecurityEventLoginSuccess))
	assert.Equal(t, int64(1), countEvents(t, models.SecurityEventIPBlocked))
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	setupTest(t)
	configs.Configs.Security.LoginAttemptsLimit = 3
	svc := NewAuthService()
	registerTestUser(t, svc, "dave@example.com", "correct-horse")
	ip := "198.51.100.12"

	for i := 0; i < 3; i++ {
		_, err := svc.Login(loginParams("dave@example.com", "wrong", ip))
		assert.True(t, IsAuthError(err, ErrInvalidCredentials))
	}

	// The IP is now locked out. The right password no longer reaches the
	// credential check.
	_, err := svc.Login(loginParams("dave@example.com", "correct-horse", ip))
	assert.True(t, IsAuthError(err, ErrRateLimited))
	assert.Equal(t, int64(1), countEvents(t, models.SecurityEventLoginLockout))

	// A different IP is unaffected
	result, err := svc.Login(loginParams("dave@example.com", "correct-horse", "198.51.100.13"))
	require.NoError(t, err)
	assert.NotNil(t, result.User)
}

func TestLogin_SuccessClearsFailureCount(t *testing.T) {
	setupTest(t)
	configs.Configs.Security.LoginAttemptsLimit = 3
	svc := NewAuthService()
	registerTestUser(t, svc, "erin@example.com", "correct-horse")
	ip := "198.51.100.14"

	for i := 0; i < 2; i++ {
		_, err := svc.Login(loginParams("erin@example.com", "wrong", ip))
		require.Error(t, err)
	}
	_, err := svc.Login(loginParams("erin@example.com", "correct-horse", ip))
	require.NoError(t, err)

	// The counter restarted, so two more failures stay under the limit
	for i := 0; i < 2; i++ {
		_, err := svc.Login(loginParams("erin@example.com", "wrong", ip))
		assert.True(t, IsAuthError(err, ErrInvalidCredentials))
	}
	locked, _ := logics.RateLimitSvc.IsLockedOut(ip)
	assert.False(t, locked)
}

// enableTwoFactor runs the real enrollment flow and returns the shared
// secret so tests can mint valid codes.
func enableTwoFactor(t *testing.T, user *models.User) string {
	t.Helper()
	key, err := logics.TwoFactorSvc.Generate(user, "enroll-session", "127.0.0.1", "test-agent")
	require.NoError(t, err)
	code := totpCode(t, key.Secret(), time.Now())
	ok, err := logics.TwoFactorSvc.VerifyAndEnable(user, "enroll-session", code, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	require.True(t, ok)
	return key.Secret()
}

func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestLogin_TwoFactorAccountNeverCompletesOnPassword(t *testing.T) {
	setupTest(t)
	svc := NewAuthService()
	user := registerTestUser(t, svc, "frank@example.com", "correct-horse")
	secret := enableTwoFactor(t, user)

	params := loginParams("frank@example.com", "correct-horse", "198.51.100.15")
	params.SessionToken = "transport-abc"
	result, err := svc.Login(params)
	require.NoError(t, err)

	// The password alone yields no user, only a pending state
	assert.Nil(t, result.User)
	assert.True(t, result.Requires2FA)
	assert.Equal(t, int64(0), countEvents(t, models.SecurityEventLoginSuccess))

	var pending models.PendingAuthState
	require.NoError(t, repositories.DBS.Postgres.
		Where("session_token = ?", "transport-abc").First(&pending).Error)
	assert.Equal(t, user.ID, pending.PendingUserID)
	assert.True(t, pending.Awaiting2FA)

	// Wrong code keeps the pending state and never touches the lockout
	_, err = svc.Verify2FA(Verify2FAParams{
		SessionToken: "transport-abc",
		Code:         "000000",
		IP:           "198.51.100.15",
		UserAgent:    "test-agent",
	})
	assert.True(t, IsAuthError(err, ErrTwoFactorInvalid))
	assert.Equal(t, int64(1), countEvents(t, models.SecurityEventTwoFactorFailed))
	locked, _ := logics.RateLimitSvc.IsLockedOut("198.51.100.15")
	assert.False(t, locked)
	require.NoError(t, repositories.DBS.Postgres.
		Where("session_token = ?", "transport-abc").First(&pending).Error)

	// Right code completes the login and consumes the pending state
	completed, err := svc.Verify2FA(Verify2FAParams{
		SessionToken: "transport-abc",
		Code:         totpCode(t, secret, time.Now()),
		IP:           "198.51.100.15",
		UserAgent:    "test-agent",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, completed.ID)
	assert.Equal(t, int64(1), countEvents(t, models.SecurityEventTwoFactorVerified))
	assert.Equal(t, int64(1), countEvents(t, models.SecurityEventLoginSuccess))

	err = repositories.DBS.Postgres.
		Where("session_token = ?", "transport-abc").First(&pending).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Replaying the code against the consumed state fails
	_, err = svc.Verify2FA(Verify2FAParams{
		SessionToken: "transport-abc",
		Code:         totpCode(t, secret, time.Now()),
		IP:           "198.51.100.15",
		UserAgent:    "test-agent",
	})
	assert.True(t, IsAuthError(err, ErrSessionInvalid))
}

func TestVerify2FA_RequiresPendingState(t *testing.T) {
	setupTest(t)
	svc := NewAuthService()

	_, err := svc.Verify2FA(Verify2FAParams{SessionToken: "never-logged-in", Code: "123456"})
	assert.True(t, IsAuthError(err, ErrSessionInvalid))

	_, err = svc.Verify2FA(Verify2FAParams{Code: "123456"})
	assert.True(t, IsAuthError(err, ErrSessionInvalid))
}

func TestLogin_PasswordExpiry(t *testing.T) {
	setupTest(t)
	configs.Configs.Security.PasswordExpiryEnabled = true
	svc := NewAuthService()
	user := registerTestUser(t, svc, "grace@example.com", "correct-horse")

	// 91 days beats the 90 day default
	stale := time.Now().Add(-91 * 24 * time.Hour)
	require.NoError(t, repositories.DBS.Postgres.Model(user).
		Update("password_updated_at", &stale).Error)

	_, err := svc.Login(loginParams("grace@example.com", "correct-horse", "198.51.100.16"))
	assert.True(t, IsAuthError(err, ErrPasswordExpired))
	assert.Equal(t, int64(1), countEvents(t, models.SecurityEventPasswordExpired))
}

func TestLogin_UnstampedPasswordAgeIsStampedNotRejected(t *testing.T) {
	setupTest(t)
	configs.Configs.Security.PasswordExpiryEnabled = true
	svc := NewAuthService()
	user := registerTestUser(t, svc, "heidi@example.com", "correct-horse")

	require.NoError(t, repositories.DBS.Postgres.Model(user).
		Update("password_updated_at", nil).Error)

	result, err := svc.Login(loginParams("heidi@example.com", "correct-horse", "198.51.100.17"))
	require.NoError(t, err)
	require.NotNil(t, result.User)
	assert.NotNil(t, result.User.PasswordUpdatedAt)
}

func TestLogin_CaptchaGate(t *testing.T) {
	setupTest(t)
	configs.Configs.Security.Captcha.Mode = configs.CaptchaModeLocal
	configs.Configs.Security.LoginAttemptsLimit = 3
	svc := NewAuthService()
	registerTestUser(t, svc, "ivan@example.com", "correct-horse")
	ip := "198.51.100.18"

	// Local mode with no token fails before credentials are considered
	_, err := svc.Login(loginParams("ivan@example.com", "correct-horse", ip))
	assert.True(t, IsAuthError(err, ErrCaptchaFailed))
	assert.Equal(t, int64(1), countEvents(t, models.SecurityEventCaptchaFailed))
	assert.Equal(t, int64(0), countEvents(t, models.SecurityEventLoginFailed))

	// Captcha failures count toward the lockout like wrong passwords do
	for i := 0; i < 2; i++ {
		_, err := svc.Login(loginParams("ivan@example.com", "correct-horse", ip))
		assert.True(t, IsAuthError(err, ErrCaptchaFailed))
	}
	_, err = svc.Login(loginParams("ivan@example.com", "correct-horse", ip))
	assert.True(t, IsAuthError(err, ErrRateLimited))
	assert.Equal(t, int64(1), countEvents(t, models.SecurityEventLoginLockout))
}
