package logics

import (
	"encoding/base64"
	"testing"

	"authsec-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSignCount(t *testing.T) {
	assert.NoError(t, ValidateSignCount(0, 1))
	assert.NoError(t, ValidateSignCount(41, 42))
	assert.NoError(t, ValidateSignCount(41, 100))

	// A counter that does not advance signals a cloned or replayed
	// authenticator, even with a valid signature
	assert.Error(t, ValidateSignCount(42, 42))
	assert.Error(t, ValidateSignCount(42, 41))
	assert.Error(t, ValidateSignCount(42, 0))
	assert.Error(t, ValidateSignCount(0, 0))
}

func TestWebAuthnUser_Adapter(t *testing.T) {
	setupTest(t)
	user := createTestUser(t, "U11AAAAAAACA")

	rawID := []byte{0x01, 0x02, 0x03, 0x04}
	creds := []models.WebAuthnCredential{
		{
			UserID:       user.ID,
			CredentialID: base64.RawURLEncoding.EncodeToString(rawID),
			PublicKey:    []byte{0xAA},
			SignCount:    7,
			Transports:   "usb,internal",
		},
		{
			UserID:       user.ID,
			CredentialID: "%%% not base64 %%%",
			PublicKey:    []byte{0xBB},
		},
	}

	wu := &webAuthnUser{user: user, creds: creds}
	assert.Equal(t, []byte(user.ID), wu.WebAuthnID())
	assert.Equal(t, user.Username, wu.WebAuthnName())
	assert.Equal(t, user.Username, wu.WebAuthnDisplayName())

	// The undecodable credential is skipped rather than corrupting the set
	out := wu.WebAuthnCredentials()
	require.Len(t, out, 1)
	assert.Equal(t, rawID, out[0].ID)
	assert.Equal(t, uint32(7), out[0].Authenticator.SignCount)
	assert.Len(t, out[0].Transport, 2)
}

func TestWebAuthnService_HasCredential(t *testing.T) {
	db := setupTest(t)
	svc := NewWebAuthnService()
	user := createTestUser(t, "U11AAAAAAACB")

	assert.False(t, svc.HasCredential(user.ID))

	require.NoError(t, db.Create(&models.WebAuthnCredential{
		UserID:       user.ID,
		CredentialID: "cred-a",
		PublicKey:    []byte{1},
	}).Error)

	assert.True(t, svc.HasCredential(user.ID))
	assert.False(t, svc.HasCredential("U11ZZZZZZZZZ"))
}
