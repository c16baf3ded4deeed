package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hirewire/authcore/internal/domain"
)

// SessionPolicy holds the risk-engine thresholds. The significant-location
// and unusual-hours boundaries are policy choices, not facts; they are
// explicit configuration so deployments can tune them.
type SessionPolicy struct {
	// MaxConcurrentSessions caps active sessions per user; creating one
	// more evicts the least-recently-active session.
	MaxConcurrentSessions int

	// SessionTTL bounds a session's total lifetime.
	SessionTTL time.Duration

	// ReauthThreshold is the risk score at or above which validation
	// demands re-authentication via the MFA service.
	ReauthThreshold int

	// UsualHoursStart/End delimit, in UTC hours, the window considered
	// normal activity. Requests outside it raise the unusual-hours flag.
	UsualHoursStart int
	UsualHoursEnd   int

	// LookupTimeout bounds the external location lookup. On timeout the
	// location degrades to unknown; session handling never stalls on it.
	LookupTimeout time.Duration
}

// DefaultSessionPolicy returns the shipped thresholds.
func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		MaxConcurrentSessions: 5,
		SessionTTL:            24 * time.Hour,
		ReauthThreshold:       60,
		UsualHoursStart:       7,
		UsualHoursEnd:         23,
		LookupTimeout:         2 * time.Second,
	}
}

// Risk weights per flag. The score is a monotonic combination: raising any
// flag never lowers it. Capped at 100.
const (
	riskDeviceChange       = 25
	riskLocationChange     = 20
	riskUnusualHours       = 15
	riskConcurrentSessions = 10
	riskSuspicious         = 30
	riskScoreCap           = 100
)

// SessionUsecase is the session risk engine: it fingerprints requests,
// tracks per-user session history, raises anomaly flags, and scores risk to
// drive the re-authentication decision.
type SessionUsecase struct {
	repo     domain.SessionRepository
	events   domain.EventRecorder
	resolver domain.LocationResolver
	policy   SessionPolicy
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionUsecase constructs the engine with its dependencies.
func NewSessionUsecase(repo domain.SessionRepository, events domain.EventRecorder, resolver domain.LocationResolver, policy SessionPolicy, logger *zap.Logger) *SessionUsecase {
	return &SessionUsecase{
		repo:     repo,
		events:   events,
		resolver: resolver,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (u *SessionUsecase) WithClock(now func() time.Time) *SessionUsecase {
	u.now = now
	return u
}

// Fingerprint derives the stable device identifier from the request's
// identifying headers. Raw headers are never persisted, only this hash.
func Fingerprint(req domain.RequestContext) string {
	sum := sha256.Sum256([]byte(req.UserAgent + "|" + req.AcceptLanguage + "|" + req.AcceptEncoding))
	return hex.EncodeToString(sum[:])
}

// CreateSession opens a new session at login. If the user is at the
// concurrency cap, the least-recently-active session is evicted first.
// Location lookup is best-effort and bounded; failure degrades to unknown.
func (u *SessionUsecase) CreateSession(ctx context.Context, userID string, req domain.RequestContext) (*domain.EnhancedSession, error) {
	if userID == "" {
		return nil, domain.ErrValidation
	}

	now := u.now()
	location := u.resolve(ctx, req.IPAddress)

	existing, err := u.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := activeSessions(existing, now)

	flags := domain.SecurityFlags{}

	// Evict until below the cap. Over-evicting under a race is acceptable;
	// exceeding the cap is not.
	for len(active) >= u.policy.MaxConcurrentSessions {
		oldest := leastRecentlyActive(active)
		oldest.IsActive = false
		if err := u.repo.Save(ctx, oldest); err != nil {
			return nil, err
		}
		u.record(ctx, userID, domain.EventSessionEvicted, req, map[string]any{"session_id": oldest.ID})
		active = activeSessions(active, now)
		flags.ConcurrentSessions = true
	}

	// A first-ever login has no history to compare against; flags stay
	// clear rather than punishing new users.
	if len(existing) > 0 {
		fingerprint := Fingerprint(req)
		if !hasFingerprint(existing, fingerprint) {
			flags.DeviceChange = true
		}
		if !location.Unknown() && !hasCountry(existing, location.Country) {
			flags.LocationChange = true
		}
	}
	if u.isUnusualHour(now) {
		flags.UnusualHours = true
	}
	flags.SuspiciousActivity = isSuspicious(flags)

	session := &domain.EnhancedSession{
		ID:                uuid.NewString(),
		UserID:            userID,
		DeviceFingerprint: Fingerprint(req),
		IPAddress:         req.IPAddress,
		Location:          location,
		IsActive:          true,
		Flags:             flags,
		CreatedAt:         now,
		LastActivity:      now,
		ExpiresAt:         now.Add(u.policy.SessionTTL),
	}
	if err := u.repo.Save(ctx, session); err != nil {
		return nil, err
	}

	u.record(ctx, userID, domain.EventSessionCreated, req, map[string]any{
		"session_id": session.ID,
		"risk_score": scoreFlags(flags),
	})
	if flags.SuspiciousActivity {
		u.record(ctx, userID, domain.EventSuspiciousSession, req, map[string]any{"session_id": session.ID})
	}
	return session, nil
}

// ValidateSession checks a request against its session, recomputes the
// anomaly flags, and scores risk. Missing, expired, or inactive sessions are
// invalid and require re-authentication. Flags are sticky: once raised they
// persist on the session until invalidation.
func (u *SessionUsecase) ValidateSession(ctx context.Context, sessionID string, req domain.RequestContext) (*domain.SessionValidation, error) {
	if sessionID == "" {
		return nil, domain.ErrValidation
	}

	now := u.now()
	session, err := u.repo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.SessionValidation{Valid: false, RiskScore: riskScoreCap, RequiresReauth: true}, nil
		}
		return nil, err
	}
	if !session.IsActive || session.Expired(now) {
		return &domain.SessionValidation{Valid: false, RiskScore: riskScoreCap, RequiresReauth: true}, nil
	}

	flags := session.Flags

	if Fingerprint(req) != session.DeviceFingerprint {
		flags.DeviceChange = true
	}

	// Location is compared at country granularity: ISPs rotate IPs within
	// a region, and raw IP inequality would flood users with false alarms.
	location := u.resolve(ctx, req.IPAddress)
	if !location.Unknown() && !session.Location.Unknown() && location.Country != session.Location.Country {
		flags.LocationChange = true
	}

	if u.isUnusualHour(now) {
		flags.UnusualHours = true
	}

	history, err := u.repo.ListByUser(ctx, session.UserID)
	if err == nil && len(activeSessions(history, now)) > u.policy.MaxConcurrentSessions {
		flags.ConcurrentSessions = true
	}

	flags.SuspiciousActivity = flags.SuspiciousActivity || isSuspicious(flags)

	score := scoreFlags(flags)
	requiresReauth := score >= u.policy.ReauthThreshold

	// Refresh activity and persist any newly raised flags.
	session.Flags = flags
	session.LastActivity = now
	if err := u.repo.Save(ctx, session); err != nil {
		return nil, err
	}

	if requiresReauth {
		u.record(ctx, session.UserID, domain.EventReauthRequired, req, map[string]any{
			"session_id": session.ID,
			"risk_score": score,
		})
	}

	return &domain.SessionValidation{
		Valid:          true,
		RiskScore:      score,
		RequiresReauth: requiresReauth,
		Flags:          flags,
	}, nil
}

// InvalidateSession revokes one session (logout or explicit revoke).
func (u *SessionUsecase) InvalidateSession(ctx context.Context, sessionID string, req domain.RequestContext) error {
	session, err := u.repo.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsActive {
		return nil
	}
	session.IsActive = false
	if err := u.repo.Save(ctx, session); err != nil {
		return err
	}
	u.record(ctx, session.UserID, domain.EventSessionInvalidated, req, map[string]any{"session_id": session.ID})
	return nil
}

// InvalidateAllUserSessions revokes every active session a user has, used on
// account disable and password reset.
func (u *SessionUsecase) InvalidateAllUserSessions(ctx context.Context, userID string, req domain.RequestContext) (int, error) {
	sessions, err := u.repo.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	revoked := 0
	for _, session := range sessions {
		if !session.IsActive {
			continue
		}
		session.IsActive = false
		if err := u.repo.Save(ctx, session); err != nil {
			return revoked, err
		}
		revoked++
	}
	if revoked > 0 {
		u.record(ctx, userID, domain.EventSessionInvalidated, req, map[string]any{"count": revoked})
	}
	return revoked, nil
}

// CleanupExpiredSessions sweeps expired records out of the store. Idempotent
// and safe to run concurrently or on a timer.
func (u *SessionUsecase) CleanupExpiredSessions(ctx context.Context) (int, error) {
	return u.repo.PruneExpired(ctx)
}

// Analytics aggregates a user's session history for the dashboard.
func (u *SessionUsecase) Analytics(ctx context.Context, userID string) (*domain.SessionAnalytics, error) {
	if userID == "" {
		return nil, domain.ErrValidation
	}

	sessions, err := u.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := u.now()
	devices := map[string]struct{}{}
	locations := map[string]struct{}{}
	analytics := &domain.SessionAnalytics{FlagCounts: map[string]int{}}

	for _, session := range sessions {
		analytics.TotalSessions++
		if session.IsActive && !session.Expired(now) {
			analytics.ActiveSessions++
		}
		devices[session.DeviceFingerprint] = struct{}{}
		if !session.Location.Unknown() {
			locations[session.Location.Country] = struct{}{}
		}
		countFlags(analytics.FlagCounts, session.Flags)
	}
	analytics.DistinctDevices = len(devices)
	analytics.DistinctLocations = len(locations)
	return analytics, nil
}

// resolve looks up a coarse location with a bounded timeout. Any failure
// degrades to an unknown location; login availability beats risk-signal
// completeness.
func (u *SessionUsecase) resolve(ctx context.Context, ip string) domain.Location {
	if ip == "" {
		return domain.Location{}
	}
	lookupCtx, cancel := context.WithTimeout(ctx, u.policy.LookupTimeout)
	defer cancel()

	location, err := u.resolver.Resolve(lookupCtx, ip)
	if err != nil {
		u.logger.Debug("location lookup failed", zap.String("ip", ip), zap.Error(err))
		return domain.Location{}
	}
	return location
}

// record appends a security event, best-effort.
func (u *SessionUsecase) record(ctx context.Context, userID, eventType string, req domain.RequestContext, details map[string]any) {
	event := &domain.SecurityEvent{
		UserID:    userID,
		EventType: eventType,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Details:   details,
	}
	if err := u.events.Record(ctx, event); err != nil {
		u.logger.Warn("failed to record security event",
			zap.String("event_type", eventType),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

func (u *SessionUsecase) isUnusualHour(now time.Time) bool {
	hour := now.UTC().Hour()
	return hour < u.policy.UsualHoursStart || hour >= u.policy.UsualHoursEnd
}

// isSuspicious is the composite flag: two or more base anomalies at once.
func isSuspicious(flags domain.SecurityFlags) bool {
	raised := 0
	for _, f := range []bool{flags.DeviceChange, flags.LocationChange, flags.UnusualHours, flags.ConcurrentSessions} {
		if f {
			raised++
		}
	}
	return raised >= 2
}

func scoreFlags(flags domain.SecurityFlags) int {
	score := 0
	if flags.DeviceChange {
		score += riskDeviceChange
	}
	if flags.LocationChange {
		score += riskLocationChange
	}
	if flags.UnusualHours {
		score += riskUnusualHours
	}
	if flags.ConcurrentSessions {
		score += riskConcurrentSessions
	}
	if flags.SuspiciousActivity {
		score += riskSuspicious
	}
	if score > riskScoreCap {
		score = riskScoreCap
	}
	return score
}

func countFlags(counts map[string]int, flags domain.SecurityFlags) {
	if flags.SuspiciousActivity {
		counts["suspicious_activity"]++
	}
	if flags.LocationChange {
		counts["location_change"]++
	}
	if flags.DeviceChange {
		counts["device_change"]++
	}
	if flags.ConcurrentSessions {
		counts["concurrent_sessions"]++
	}
	if flags.UnusualHours {
		counts["unusual_hours"]++
	}
}

func activeSessions(sessions []*domain.EnhancedSession, now time.Time) []*domain.EnhancedSession {
	active := make([]*domain.EnhancedSession, 0, len(sessions))
	for _, session := range sessions {
		if session.IsActive && !session.Expired(now) {
			active = append(active, session)
		}
	}
	return active
}

func leastRecentlyActive(sessions []*domain.EnhancedSession) *domain.EnhancedSession {
	sorted := make([]*domain.EnhancedSession, len(sessions))
	copy(sorted, sessions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LastActivity.Before(sorted[j].LastActivity)
	})
	return sorted[0]
}

func hasFingerprint(sessions []*domain.EnhancedSession, fingerprint string) bool {
	for _, session := range sessions {
		if session.DeviceFingerprint == fingerprint {
			return true
		}
	}
	return false
}

func hasCountry(sessions []*domain.EnhancedSession, country string) bool {
	for _, session := range sessions {
		if session.Location.Country == country {
			return true
		}
	}
	return false
}
