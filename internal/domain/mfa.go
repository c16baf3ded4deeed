package domain

import (
	"context"
	"time"
)

// MFASettings is the per-user MFA record. The secret is always persisted
// encrypted; the struct carries whatever form the repository loaded.
// Enabled=false with a non-empty secret means setup was initiated but the
// first verification token has not been presented yet.
type MFASettings struct {
	UserID         string     `json:"user_id"`
	Secret         string     `json:"-"` // encrypted at rest, never exposed
	Enabled        bool       `json:"enabled"`
	FailedAttempts int        `json:"failed_attempts"`
	LastUsedStep   int64      `json:"-"` // TOTP step of the last accepted code
	CreatedAt      time.Time  `json:"created_at"`
	LastUsed       *time.Time `json:"last_used,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// BackupCode is a persisted recovery code. Only the hash is ever stored;
// consuming a code deletes its row.
type BackupCode struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CodeHash  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// MFASetup is returned from setup initiation. It is the only time the
// plaintext secret and backup codes cross the API boundary.
type MFASetup struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// MFAStatus is the read-only projection of a user's MFA state.
type MFAStatus struct {
	Enabled              bool       `json:"enabled"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
	LastUsed             *time.Time `json:"last_used,omitempty"`
	CanSetup             bool       `json:"can_setup"`
}

// MFAVerification is the outcome of a token check. Lockout is reported here
// as Valid=false with zero attempts remaining, not as an error, so the UI
// can render a clear message while the event log still records it.
type MFAVerification struct {
	Valid             bool `json:"valid"`
	UsedBackupCode    bool `json:"used_backup_code"`
	AttemptsRemaining int  `json:"attempts_remaining"`
}

// MFARepository persists MFA settings and recovery codes.
type MFARepository interface {
	GetSettings(ctx context.Context, userID string) (*MFASettings, error)
	CreateSettings(ctx context.Context, settings *MFASettings) error
	UpdateSettings(ctx context.Context, settings *MFASettings) error
	DeleteSettings(ctx context.Context, userID string) error

	// ReplaceBackupCodes atomically swaps the user's stored code hashes.
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error
	ListBackupCodes(ctx context.Context, userID string) ([]BackupCode, error)
	// ConsumeBackupCode deletes a code by id and reports whether the row
	// still existed, so a concurrent double-consume loses cleanly.
	ConsumeBackupCode(ctx context.Context, codeID string) (bool, error)
}
