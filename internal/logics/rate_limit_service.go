package logics

import (
	"sync"
	"time"

	"authsec-server/configs"
	"authsec-server/internal/models"

	"go.uber.org/zap"
)

// reapInterval is how often expired counters and lapsed lockouts are swept.
const reapInterval = 5 * time.Minute

// apiWindow is the fixed window for the general API limiter.
const apiWindow = time.Hour

type rateCounter struct {
	count   int
	resetAt time.Time
	limited bool // whether exceeding was already logged for this window
}

type lockoutRecord struct {
	failedAttempts int
	lockoutUntil   time.Time
	lastFailure    time.Time
}

// RateLimitService keeps two independent in-process counter maps: a general
// per-(ip, route-class) API limiter and a per-ip login lockout tracker.
// Both maps are shared across request handlers running on separate
// goroutines, so every read-modify-write holds the mutex; a plain map
// would be racy under parallelism.
type RateLimitService struct {
	mu       sync.Mutex
	counters map[string]*rateCounter
	lockouts map[string]*lockoutRecord
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService() *RateLimitService {
	return &RateLimitService{
		counters: make(map[string]*rateCounter),
		lockouts: make(map[string]*lockoutRecord),
		stop:     make(chan struct{}),
	}
}

// Allow checks and counts one request against the general API limiter for
// (ip, routeClass). Requests past the threshold are rejected without being
// counted again, so a burst cannot push the window reset further out.
func (s *RateLimitService) Allow(ip, routeClass, userAgent string) bool {
	limit := configs.Configs.Security.ApiRateLimit
	key := ip + "|" + routeClass
	now := time.Now()

	s.mu.Lock()
	c, ok := s.counters[key]
	if !ok || now.After(c.resetAt) {
		c = &rateCounter{resetAt: now.Add(apiWindow)}
		s.counters[key] = c
	}

	if c.count >= limit {
		firstExcess := !c.limited
		c.limited = true
		s.mu.Unlock()

		if firstExcess {
			_ = SecurityLogSvc.Add(models.SecurityEventRateLimitExceeded, "api_rate_limit", nil, ip, userAgent, true, map[string]interface{}{
				"route_class": routeClass,
				"limit":       limit,
			})
		}
		return false
	}

	c.count++
	s.mu.Unlock()
	return true
}

// IsLockedOut reports whether the IP is under an active login lockout and
// how long remains. Evaluated before credential verification so the
// response shape never depends on whether a lockout lapsed mid-check.
func (s *RateLimitService) IsLockedOut(ip string) (bool, time.Duration) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lockouts[ip]
	if !ok || now.After(rec.lockoutUntil) {
		return false, 0
	}
	return true, rec.lockoutUntil.Sub(now)
}

// RecordFailure counts one failed login for the IP. Reaching the
// configured threshold starts the lockout and logs it.
func (s *RateLimitService) RecordFailure(ip, userAgent string) {
	limit := configs.Configs.Security.LoginAttemptsLimit
	duration := time.Duration(configs.Configs.Security.LockoutDurationMin) * time.Minute
	now := time.Now()

	s.mu.Lock()
	rec, ok := s.lockouts[ip]
	if !ok {
		rec = &lockoutRecord{}
		s.lockouts[ip] = rec
	}
	rec.failedAttempts++
	rec.lastFailure = now
	lockedNow := rec.failedAttempts >= limit && now.After(rec.lockoutUntil)
	if lockedNow {
		rec.lockoutUntil = now.Add(duration)
	}
	attempts := rec.failedAttempts
	s.mu.Unlock()

	if lockedNow {
		configs.Logger.Warn("Login lockout started",
			zap.String("ip", ip),
			zap.Int("failed_attempts", attempts),
			zap.Duration("duration", duration))
		_ = SecurityLogSvc.Add(models.SecurityEventLoginLockout, "login_lockout", nil, ip, userAgent, true, map[string]interface{}{
			"failed_attempts": attempts,
			"duration_min":    int(duration.Minutes()),
		})
	}
}

// ClearFailures resets the lockout record after a fully successful login.
func (s *RateLimitService) ClearFailures(ip string) {
	s.mu.Lock()
	delete(s.lockouts, ip)
	s.mu.Unlock()
}

// FailedAttempts returns the current failure count for an IP.
func (s *RateLimitService) FailedAttempts(ip string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.lockouts[ip]; ok {
		return rec.failedAttempts
	}
	return 0
}

// StartReaper launches the periodic sweep that bounds memory use of the
// counter maps. Entries are only removed once their window or lockout has
// already passed.
func (s *RateLimitService) StartReaper() {
	go func() {
		ticker := time.NewTicker(reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep(time.Now())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the reaper goroutine.
func (s *RateLimitService) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *RateLimitService) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, c := range s.counters {
		if now.After(c.resetAt) {
			delete(s.counters, key)
		}
	}
	staleAfter := time.Duration(configs.Configs.Security.LockoutDurationMin) * time.Minute
	for ip, rec := range s.lockouts {
		if !rec.lockoutUntil.IsZero() {
			if now.After(rec.lockoutUntil) {
				delete(s.lockouts, ip)
			}
			continue
		}
		// Below-threshold records expire once their failures go stale.
		if now.Sub(rec.lastFailure) > staleAfter {
			delete(s.lockouts, ip)
		}
	}
}

// Global instance of RateLimitService
var RateLimitSvc = NewRateLimitService()
