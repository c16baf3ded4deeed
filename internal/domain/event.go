package domain

import (
	"context"
	"time"
)

// Security event types recorded by the core. The set is closed on purpose:
// the dashboard and alerting layer key off these strings.
const (
	EventMFASetupInitiated      = "mfa_setup_initiated"
	EventMFAEnabled             = "mfa_enabled"
	EventMFADisabled            = "mfa_disabled"
	EventMFAVerified            = "mfa_verified"
	EventMFAFailed              = "mfa_failed"
	EventMFALocked              = "mfa_locked"
	EventBackupCodeUsed         = "backup_code_used"
	EventBackupCodesRegenerated = "backup_codes_regenerated"

	EventSessionCreated     = "session_created"
	EventSessionEvicted     = "session_evicted"
	EventSessionInvalidated = "session_invalidated"
	EventSuspiciousSession  = "suspicious_session"
	EventReauthRequired     = "reauth_required"
)

// SecurityEvent is one append-only audit record. Events are never mutated or
// deleted by this core.
type SecurityEvent struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	EventType string         `json:"event_type"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventRecorder appends security events and serves the dashboard read side.
type EventRecorder interface {
	Record(ctx context.Context, event *SecurityEvent) error
	RecentByUser(ctx context.Context, userID string, limit int) ([]SecurityEvent, error)
}
