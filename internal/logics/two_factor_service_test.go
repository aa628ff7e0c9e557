package logics

import (
	"testing"
	"time"

	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func createTestUser(t *testing.T, id string) *models.User {
	t.Helper()
	user := &models.User{
		ID:       id,
		Username: "user-" + id,
		Email:    id + "@example.com",
		Password: "irrelevant",
		Hash:     "irrelevant",
	}
	require.NoError(t, repositories.DBS.Postgres.Create(user).Error)
	return user
}

func TestTwoFactorService_ValidateCodeSkewWindow(t *testing.T) {
	setupTest(t)
	svc := NewTwoFactorService()

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "a@b.c"})
	require.NoError(t, err)
	secret := key.Secret()

	now := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)

	// Codes within two periods of drift in either direction are accepted
	for _, offset := range []time.Duration{-60 * time.Second, -30 * time.Second, 0, 30 * time.Second, 60 * time.Second} {
		code := codeAt(t, secret, now.Add(offset))
		assert.True(t, svc.validateCode(code, secret, now), "offset %v should validate", offset)
	}

	// Three periods out is rejected
	assert.False(t, svc.validateCode(codeAt(t, secret, now.Add(-95*time.Second)), secret, now))
	assert.False(t, svc.validateCode(codeAt(t, secret, now.Add(95*time.Second)), secret, now))

	assert.False(t, svc.validateCode("000000", secret, now))
	assert.False(t, svc.validateCode("", secret, now))
}

func TestTwoFactorService_EnrollmentFlow(t *testing.T) {
	db := setupTest(t)
	svc := NewTwoFactorService()
	user := createTestUser(t, "U11AAAAAAAAA")

	key, err := svc.Generate(user, "sess-token-1", "10.0.0.1", "ua")
	require.NoError(t, err)

	// The secret is parked on the pending state, not the account
	var fresh models.User
	require.NoError(t, db.First(&fresh, "id = ?", user.ID).Error)
	assert.False(t, fresh.TwoFactorEnabled)
	assert.Empty(t, fresh.TwoFactorSecret)

	// The stored copy is encrypted, never the raw secret
	var pending models.PendingAuthState
	require.NoError(t, db.First(&pending, "session_token = ?", "sess-token-1").Error)
	assert.NotEmpty(t, pending.TempSecret)
	assert.NotEqual(t, key.Secret(), pending.TempSecret)

	// A wrong code does not enable
	ok, err := svc.VerifyAndEnable(user, "sess-token-1", "000000", "10.0.0.1", "ua")
	require.NoError(t, err)
	assert.False(t, ok)

	// The right code does
	ok, err = svc.VerifyAndEnable(user, "sess-token-1", codeAt(t, key.Secret(), time.Now()), "10.0.0.1", "ua")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.First(&fresh, "id = ?", user.ID).Error)
	assert.True(t, fresh.TwoFactorEnabled)
	assert.NotEmpty(t, fresh.TwoFactorSecret)

	// Enrollment state is consumed
	var count int64
	db.Model(&models.PendingAuthState{}).Where("session_token = ?", "sess-token-1").Count(&count)
	assert.Equal(t, int64(0), count)

	// Login verification now works against the persisted secret
	valid, err := svc.VerifyLogin(&fresh, codeAt(t, key.Secret(), time.Now()))
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestTwoFactorService_VerifyAndEnableRejectsWrongSession(t *testing.T) {
	setupTest(t)
	svc := NewTwoFactorService()
	user := createTestUser(t, "U11AAAAAAAAB")
	other := createTestUser(t, "U11AAAAAAAAC")

	key, err := svc.Generate(user, "sess-token-2", "10.0.0.1", "ua")
	require.NoError(t, err)

	// Another account cannot complete this session's enrollment
	_, err = svc.VerifyAndEnable(other, "sess-token-2", codeAt(t, key.Secret(), time.Now()), "10.0.0.1", "ua")
	assert.Error(t, err)
}

func TestTwoFactorService_DisableRequiresValidCode(t *testing.T) {
	db := setupTest(t)
	svc := NewTwoFactorService()
	user := createTestUser(t, "U11AAAAAAAAD")

	key, err := svc.Generate(user, "sess-token-3", "10.0.0.1", "ua")
	require.NoError(t, err)
	ok, err := svc.VerifyAndEnable(user, "sess-token-3", codeAt(t, key.Secret(), time.Now()), "10.0.0.1", "ua")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Disable(user, "000000", "10.0.0.1", "ua")
	require.NoError(t, err)
	assert.False(t, ok, "wrong code must not disable")

	ok, err = svc.Disable(user, codeAt(t, key.Secret(), time.Now()), "10.0.0.1", "ua")
	require.NoError(t, err)
	require.True(t, ok)

	var fresh models.User
	require.NoError(t, db.First(&fresh, "id = ?", user.ID).Error)
	assert.False(t, fresh.TwoFactorEnabled)
	assert.Empty(t, fresh.TwoFactorSecret)
}
