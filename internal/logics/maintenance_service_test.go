package logics

import (
	"testing"
	"time"

	"authsec-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceService_SweepRemovesExpiredRows(t *testing.T) {
	db := setupTest(t)
	svc := NewMaintenanceService()
	user := createTestUser(t, "U11AAAAAAADA")

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	require.NoError(t, db.Create(&models.PendingAuthState{
		SessionToken: "stale", PendingUserID: user.ID, ExpiresAt: past,
	}).Error)
	require.NoError(t, db.Create(&models.PendingAuthState{
		SessionToken: "live", PendingUserID: user.ID, ExpiresAt: future,
	}).Error)
	require.NoError(t, db.Create(&models.WebAuthnChallenge{
		SessionToken: "stale", UserID: user.ID, SessionData: "{}", ExpiresAt: past,
	}).Error)
	require.NoError(t, db.Create(&models.CaptchaChallenge{
		ChallengeID: "stale", Answer: "x", ExpiresAt: past,
	}).Error)
	require.NoError(t, db.Create(&models.Session{
		SessionID: "lapsed", UserID: user.ID, Active: true, ExpiresAt: past,
	}).Error)

	svc.Sweep(time.Now())

	var pendingCount, challengeCount, captchaCount int64
	db.Model(&models.PendingAuthState{}).Count(&pendingCount)
	db.Model(&models.WebAuthnChallenge{}).Count(&challengeCount)
	db.Model(&models.CaptchaChallenge{}).Count(&captchaCount)
	assert.Equal(t, int64(1), pendingCount)
	assert.Equal(t, int64(0), challengeCount)
	assert.Equal(t, int64(0), captchaCount)

	var remaining models.PendingAuthState
	require.NoError(t, db.First(&remaining).Error)
	assert.Equal(t, "live", remaining.SessionToken)

	var lapsed models.Session
	require.NoError(t, db.First(&lapsed, "session_id = ?", "lapsed").Error)
	assert.False(t, lapsed.Active)
}
