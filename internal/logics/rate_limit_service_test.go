package logics

import (
	"testing"
	"time"

	"authsec-server/configs"
	"authsec-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitService_AllowCountsPerWindow(t *testing.T) {
	setupTest(t)
	configs.Configs.Security.ApiRateLimit = 3

	svc := NewRateLimitService()

	for i := 0; i < 3; i++ {
		assert.True(t, svc.Allow("10.0.0.1", "auth", "ua"), "request %d should pass", i)
	}
	assert.False(t, svc.Allow("10.0.0.1", "auth", "ua"))

	// Another IP and another route class keep independent counters
	assert.True(t, svc.Allow("10.0.0.2", "auth", "ua"))
	assert.True(t, svc.Allow("10.0.0.1", "security", "ua"))
}

func TestRateLimitService_ExceededLoggedOncePerWindow(t *testing.T) {
	db := setupTest(t)
	configs.Configs.Security.ApiRateLimit = 1

	svc := NewRateLimitService()
	svc.Allow("10.0.0.1", "auth", "ua")
	svc.Allow("10.0.0.1", "auth", "ua")
	svc.Allow("10.0.0.1", "auth", "ua")

	var count int64
	db.Model(&models.SecurityLog{}).
		Where("event_type = ?", models.SecurityEventRateLimitExceeded).
		Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRateLimitService_LockoutAfterThreshold(t *testing.T) {
	db := setupTest(t)
	configs.Configs.Security.LoginAttemptsLimit = 3
	configs.Configs.Security.LockoutDurationMin = 15

	svc := NewRateLimitService()

	svc.RecordFailure("10.0.0.9", "ua")
	svc.RecordFailure("10.0.0.9", "ua")
	locked, _ := svc.IsLockedOut("10.0.0.9")
	assert.False(t, locked, "below threshold must not lock")

	svc.RecordFailure("10.0.0.9", "ua")
	locked, remaining := svc.IsLockedOut("10.0.0.9")
	require.True(t, locked)
	assert.Greater(t, remaining, 14*time.Minute)

	// The lockout itself is audited
	var count int64
	db.Model(&models.SecurityLog{}).
		Where("event_type = ?", models.SecurityEventLoginLockout).
		Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRateLimitService_ClearFailuresResets(t *testing.T) {
	setupTest(t)
	configs.Configs.Security.LoginAttemptsLimit = 3

	svc := NewRateLimitService()
	svc.RecordFailure("10.0.0.9", "ua")
	svc.RecordFailure("10.0.0.9", "ua")
	assert.Equal(t, 2, svc.FailedAttempts("10.0.0.9"))

	svc.ClearFailures("10.0.0.9")
	assert.Equal(t, 0, svc.FailedAttempts("10.0.0.9"))

	// Starting over takes a full threshold again
	svc.RecordFailure("10.0.0.9", "ua")
	locked, _ := svc.IsLockedOut("10.0.0.9")
	assert.False(t, locked)
}

func TestRateLimitService_SweepRemovesStaleEntries(t *testing.T) {
	setupTest(t)
	configs.Configs.Security.ApiRateLimit = 1
	configs.Configs.Security.LoginAttemptsLimit = 2
	configs.Configs.Security.LockoutDurationMin = 15

	svc := NewRateLimitService()
	svc.Allow("10.0.0.1", "auth", "ua")
	svc.RecordFailure("10.0.0.2", "ua")
	svc.RecordFailure("10.0.0.3", "ua")
	svc.RecordFailure("10.0.0.3", "ua") // locked

	// Nothing is stale yet
	svc.sweep(time.Now())
	svc.mu.Lock()
	assert.Len(t, svc.counters, 1)
	assert.Len(t, svc.lockouts, 2)
	svc.mu.Unlock()

	// Two hours later everything has lapsed
	svc.sweep(time.Now().Add(2 * time.Hour))
	svc.mu.Lock()
	assert.Empty(t, svc.counters)
	assert.Empty(t, svc.lockouts)
	svc.mu.Unlock()

	// A lapsed lockout no longer blocks
	locked, _ := svc.IsLockedOut("10.0.0.3")
	assert.False(t, locked)
}
