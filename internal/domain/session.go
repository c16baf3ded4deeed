package domain

import (
	"context"
	"time"
)

// SecurityFlags are the per-session anomaly markers. Once raised on a
// session they stay raised until the session is invalidated, so the audit
// trail reflects everything that happened over its lifetime.
type SecurityFlags struct {
	SuspiciousActivity bool `json:"suspicious_activity"`
	LocationChange     bool `json:"location_change"`
	DeviceChange       bool `json:"device_change"`
	ConcurrentSessions bool `json:"concurrent_sessions"`
	UnusualHours       bool `json:"unusual_hours"`
}

// Location is a coarse, best-effort geolocation of a request. Country-level
// comparison is deliberate: raw IP equality misfires on ISP rotation.
type Location struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// Unknown reports whether resolution failed or was skipped. Unknown
// locations contribute a neutral signal, never a flag.
func (l Location) Unknown() bool { return l.Country == "" }

// EnhancedSession is the risk-tracked session record.
type EnhancedSession struct {
	ID                string        `json:"id"`
	UserID            string        `json:"user_id"`
	DeviceFingerprint string        `json:"device_fingerprint"`
	IPAddress         string        `json:"ip_address"`
	Location          Location      `json:"location"`
	IsActive          bool          `json:"is_active"`
	Flags             SecurityFlags `json:"security_flags"`
	CreatedAt         time.Time     `json:"created_at"`
	LastActivity      time.Time     `json:"last_activity"`
	ExpiresAt         time.Time     `json:"expires_at"`
}

// Expired reports whether the session is past its lifetime at the given instant.
func (s *EnhancedSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// RequestContext is the slice of an incoming request the risk engine
// fingerprints: remote address plus the stable identifying headers.
type RequestContext struct {
	IPAddress      string `json:"ip_address"`
	UserAgent      string `json:"user_agent"`
	AcceptLanguage string `json:"accept_language"`
	AcceptEncoding string `json:"accept_encoding"`
}

// SessionValidation is the outcome of validating a request against a
// session. RequiresReauth is the integration point with the MFA service.
type SessionValidation struct {
	Valid          bool          `json:"valid"`
	RiskScore      int           `json:"risk_score"`
	RequiresReauth bool          `json:"requires_reauth"`
	Flags          SecurityFlags `json:"security_flags"`
}

// SessionAnalytics aggregates a user's session history for the dashboard.
type SessionAnalytics struct {
	TotalSessions     int            `json:"total_sessions"`
	ActiveSessions    int            `json:"active_sessions"`
	DistinctDevices   int            `json:"distinct_devices"`
	DistinctLocations int            `json:"distinct_locations"`
	FlagCounts        map[string]int `json:"flag_counts"`
}

// SessionRepository persists enhanced sessions keyed by id with a per-user
// index. Implementations are expected to expire records at ExpiresAt.
type SessionRepository interface {
	Save(ctx context.Context, session *EnhancedSession) error
	Get(ctx context.Context, sessionID string) (*EnhancedSession, error)
	ListByUser(ctx context.Context, userID string) ([]*EnhancedSession, error)
	// PruneExpired drops index entries whose sessions are gone or past
	// expiry, returning how many were removed. Idempotent.
	PruneExpired(ctx context.Context) (int, error)
}

// LocationResolver resolves an IP address to a coarse location. Lookups are
// best-effort: implementations must bound their latency and callers degrade
// to an unknown location on error.
type LocationResolver interface {
	Resolve(ctx context.Context, ip string) (Location, error)
}
