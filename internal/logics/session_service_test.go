package logics

import (
	"testing"
	"time"

	"authsec-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionService_EstablishReplacesOnlyPredecessor(t *testing.T) {
	db := setupTest(t)
	svc := NewSessionService()
	user := createTestUser(t, "U11AAAAAAABA")

	// A login on another device
	other, err := svc.Establish(user, "10.0.0.2", "ua-other", "", "transport-other")
	require.NoError(t, err)

	// A fresh login descending from transport-old
	_, err = svc.Establish(user, "10.0.0.1", "ua", "", "transport-old")
	require.NoError(t, err)
	current, err := svc.Establish(user, "10.0.0.1", "ua", "transport-old", "transport-new")
	require.NoError(t, err)

	// The predecessor is deactivated; the other device is untouched
	var old models.Session
	require.NoError(t, db.First(&old, "session_id = ?", "transport-old").Error)
	assert.False(t, old.Active)

	sessions, err := svc.List(user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	ids := []uint{sessions[0].ID, sessions[1].ID}
	assert.Contains(t, ids, other.ID)
	assert.Contains(t, ids, current.ID)
}

func TestSessionService_LookupIgnoresInactiveAndExpired(t *testing.T) {
	db := setupTest(t)
	svc := NewSessionService()
	user := createTestUser(t, "U11AAAAAAABB")

	active, err := svc.Establish(user, "10.0.0.1", "ua", "", "transport-a")
	require.NoError(t, err)

	found, err := svc.Lookup("transport-a")
	require.NoError(t, err)
	assert.Equal(t, active.ID, found.ID)

	// Deactivated
	require.NoError(t, svc.Deactivate("transport-a"))
	_, err = svc.Lookup("transport-a")
	assert.Error(t, err)

	// Expired
	expired := models.Session{
		SessionID: "transport-b",
		UserID:    user.ID,
		Active:    true,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, db.Create(&expired).Error)
	_, err = svc.Lookup("transport-b")
	assert.Error(t, err)
}

func TestSessionService_TerminateAudits(t *testing.T) {
	db := setupTest(t)
	svc := NewSessionService()
	user := createTestUser(t, "U11AAAAAAABC")

	sess, err := svc.Establish(user, "10.0.0.1", "ua", "", "transport-c")
	require.NoError(t, err)

	require.NoError(t, svc.Terminate(sess.ID, "admin-1", "10.0.0.9", "ua-admin"))

	var fresh models.Session
	require.NoError(t, db.First(&fresh, sess.ID).Error)
	assert.False(t, fresh.Active)

	var count int64
	db.Model(&models.SecurityLog{}).
		Where("event_type = ?", models.SecurityEventSessionTerminated).
		Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSessionService_TerminateAllForUserSparesCredentials(t *testing.T) {
	db := setupTest(t)
	svc := NewSessionService()
	user := createTestUser(t, "U11AAAAAAABD")

	_, err := svc.Establish(user, "10.0.0.1", "ua", "", "transport-d")
	require.NoError(t, err)
	_, err = svc.Establish(user, "10.0.0.2", "ua2", "", "transport-e")
	require.NoError(t, err)

	// A trusted device and a WebAuthn credential on the account
	require.NoError(t, db.Create(&models.TrustedDevice{
		UserID: user.ID, Fingerprint: "fp", Trusted: true,
	}).Error)
	require.NoError(t, db.Create(&models.WebAuthnCredential{
		UserID: user.ID, CredentialID: "cred-1", PublicKey: []byte{1}, SignCount: 3,
	}).Error)

	count, err := svc.TerminateAllForUser(user.ID, user.ID, "10.0.0.1", "ua")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	sessions, err := svc.List(user.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	// Devices lose trust, credentials survive
	var device models.TrustedDevice
	require.NoError(t, db.First(&device, "user_id = ?", user.ID).Error)
	assert.False(t, device.Trusted)

	var credCount int64
	db.Model(&models.WebAuthnCredential{}).Where("user_id = ?", user.ID).Count(&credCount)
	assert.Equal(t, int64(1), credCount)
}
