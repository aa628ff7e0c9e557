package logics

import (
	"context"
	"fmt"
	"time"

	"authsec-server/configs"
	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"go.uber.org/zap"
)

// SessionService tracks server-side session records. The cookie store is the
// transport; these rows are the authority used for listing and revocation.
type SessionService struct{}

// NewSessionService creates a new SessionService
func NewSessionService() *SessionService {
	return &SessionService{}
}

// Establish records a fresh session for the user. Replace-on-login: any
// active rows still attached to the previous transport id are deactivated
// first, so one login replaces at most the session it descended from and
// never touches the user's other devices.
func (s *SessionService) Establish(user *models.User, ip, userAgent, oldTransportID, newTransportID string) (*models.Session, error) {
	if oldTransportID != "" {
		if err := repositories.DBS.Postgres.Model(&models.Session{}).
			Where("session_id = ? AND active = ?", oldTransportID, true).
			Update("active", false).Error; err != nil {
			return nil, err
		}
	}

	expireHours := configs.Configs.Security.SessionExpireHours
	session := models.Session{
		SessionID: newTransportID,
		UserID:    user.ID,
		IP:        ip,
		UserAgent: userAgent,
		Active:    true,
		ExpiresAt: time.Now().Add(time.Duration(expireHours) * time.Hour),
	}
	if err := repositories.DBS.Postgres.Create(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to record session: %w", err)
	}
	return &session, nil
}

// Lookup resolves an active, unexpired session by its transport id.
func (s *SessionService) Lookup(transportID string) (*models.Session, error) {
	var session models.Session
	err := repositories.DBS.Postgres.
		Where("session_id = ? AND active = ? AND expires_at > ?", transportID, true, time.Now()).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns the user's active sessions, newest first.
func (s *SessionService) List(userID string) ([]models.Session, error) {
	var sessions []models.Session
	err := repositories.DBS.Postgres.
		Where("user_id = ? AND active = ? AND expires_at > ?", userID, true, time.Now()).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

// ListAll returns every active session across all users. Admin surface.
func (s *SessionService) ListAll() ([]models.Session, error) {
	var sessions []models.Session
	err := repositories.DBS.Postgres.
		Where("active = ? AND expires_at > ?", true, time.Now()).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

// Terminate revokes a single session row and deletes the matching
// server-side cookie state so the revocation is immediate, not
// expiry-driven.
func (s *SessionService) Terminate(sessionRowID uint, actorID, ip, userAgent string) error {
	var session models.Session
	if err := repositories.DBS.Postgres.First(&session, sessionRowID).Error; err != nil {
		return err
	}

	if err := repositories.DBS.Postgres.Model(&session).Update("active", false).Error; err != nil {
		return err
	}
	s.DropTransport(session.SessionID)

	configs.Logger.Warn("session terminated",
		zap.Uint("session_row", session.ID),
		zap.String("user_id", session.UserID),
		zap.String("actor", actorID))
	_ = SecurityLogSvc.Add(models.SecurityEventSessionTerminated, "session_terminated", &session.UserID, ip, userAgent, false, map[string]interface{}{
		"session_row": session.ID,
		"actor":       actorID,
	})
	return nil
}

// TerminateAllForUser revokes every active session belonging to the user
// and untrusts their remembered devices. Registered WebAuthn credentials
// survive; they are not session state.
func (s *SessionService) TerminateAllForUser(userID, actorID, ip, userAgent string) (int, error) {
	sessions, err := s.List(userID)
	if err != nil {
		return 0, err
	}

	if err := repositories.DBS.Postgres.Model(&models.Session{}).
		Where("user_id = ? AND active = ?", userID, true).
		Update("active", false).Error; err != nil {
		return 0, err
	}
	for _, session := range sessions {
		s.DropTransport(session.SessionID)
	}

	if err := repositories.DBS.Postgres.Model(&models.TrustedDevice{}).
		Where("user_id = ? AND trusted = ?", userID, true).
		Update("trusted", false).Error; err != nil {
		return 0, err
	}

	configs.Logger.Warn("all sessions terminated for user",
		zap.String("user_id", userID),
		zap.String("actor", actorID),
		zap.Int("count", len(sessions)))
	_ = SecurityLogSvc.Add(models.SecurityEventSessionTerminated, "logout_all_devices", &userID, ip, userAgent, false, map[string]interface{}{
		"count": len(sessions),
		"actor": actorID,
	})
	return len(sessions), nil
}

// TerminateAll revokes every active session in the system. Admin surface.
func (s *SessionService) TerminateAll(actorID, ip, userAgent string) (int, error) {
	sessions, err := s.ListAll()
	if err != nil {
		return 0, err
	}

	if err := repositories.DBS.Postgres.Model(&models.Session{}).
		Where("active = ?", true).
		Update("active", false).Error; err != nil {
		return 0, err
	}
	for _, session := range sessions {
		s.DropTransport(session.SessionID)
	}

	configs.Logger.Warn("all sessions terminated",
		zap.String("actor", actorID),
		zap.Int("count", len(sessions)))
	_ = SecurityLogSvc.Add(models.SecurityEventSessionTerminated, "terminate_all", nil, ip, userAgent, false, map[string]interface{}{
		"count": len(sessions),
		"actor": actorID,
	})
	return len(sessions), nil
}

// Deactivate marks the session row behind a transport id inactive without
// the audit trail of Terminate. Used by plain logout.
func (s *SessionService) Deactivate(transportID string) error {
	return repositories.DBS.Postgres.Model(&models.Session{}).
		Where("session_id = ? AND active = ?", transportID, true).
		Update("active", false).Error
}

// DropTransport deletes the redis-backed cookie state for a transport id.
// The store only expires keys on request, so revocation has to delete
// eagerly.
func (s *SessionService) DropTransport(transportID string) {
	if repositories.DBS.Redis == nil || transportID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repositories.DBS.Redis.Del(ctx, "session:"+transportID).Err(); err != nil {
		configs.Logger.Error("failed to delete transport session", zap.String("session_id", transportID), zap.Error(err))
	}
}

// Global instance of SessionService
var SessionSvc = NewSessionService()
