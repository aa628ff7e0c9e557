package logics

import (
	"sync"
	"time"

	"authsec-server/configs"
	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"go.uber.org/zap"
)

// MaintenanceService sweeps expired short-lived rows out of the database:
// pending auth states, registration challenges, and captcha challenges.
// It runs on the same cadence as the in-memory limiter reaper.
type MaintenanceService struct {
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMaintenanceService creates a new MaintenanceService
func NewMaintenanceService() *MaintenanceService {
	return &MaintenanceService{stop: make(chan struct{})}
}

// Start launches the periodic sweep goroutine.
func (s *MaintenanceService) Start() {
	go func() {
		ticker := time.NewTicker(reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(time.Now())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweep goroutine.
func (s *MaintenanceService) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Sweep deletes rows whose expiry has passed.
func (s *MaintenanceService) Sweep(now time.Time) {
	db := repositories.DBS.Postgres

	targets := []struct {
		name  string
		model interface{}
	}{
		{"pending_auth_states", &models.PendingAuthState{}},
		{"webauthn_challenges", &models.WebAuthnChallenge{}},
		{"captcha_challenges", &models.CaptchaChallenge{}},
	}
	for _, t := range targets {
		result := db.Unscoped().Where("expires_at < ?", now).Delete(t.model)
		if result.Error != nil {
			configs.Logger.Error("maintenance sweep failed",
				zap.String("table", t.name),
				zap.Error(result.Error))
			continue
		}
		if result.RowsAffected > 0 {
			configs.Logger.Debug("maintenance sweep",
				zap.String("table", t.name),
				zap.Int64("deleted", result.RowsAffected))
		}
	}

	// Expired session rows flip to inactive so listings stay truthful even
	// before the cookie itself lapses.
	if err := db.Model(&models.Session{}).
		Where("active = ? AND expires_at < ?", true, now).
		Update("active", false).Error; err != nil {
		configs.Logger.Error("maintenance sweep failed",
			zap.String("table", "sessions"),
			zap.Error(err))
	}
}

// Global instance of MaintenanceService
var MaintenanceSvc = NewMaintenanceService()
