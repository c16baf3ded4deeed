package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hirewire/authcore/internal/domain"
	"github.com/hirewire/authcore/pkg/security"
)

const (
	// BackupCodeCount is how many recovery codes each (re)generation issues.
	BackupCodeCount = 8

	// MaxFailedAttempts locks live verification. Setup verification is
	// exempt: a failed setup attempt cannot be used against an account
	// that has no enabled factor yet.
	MaxFailedAttempts = 5
)

// MFAUsecase drives the per-user MFA state machine:
// NotSetUp -> PendingVerification -> Enabled -> (Disabled | Locked).
// Every mutating operation verifies a factor before changing state, so an
// attacker cannot disable MFA or burn backup codes without proving
// possession of a valid one.
type MFAUsecase struct {
	repo   domain.MFARepository
	events domain.EventRecorder
	cipher *security.FieldCipher
	issuer string
	logger *zap.Logger
	now    func() time.Time
}

// NewMFAUsecase constructs the service with its dependencies. The clock is
// fixed to time.Now; tests override it via WithClock.
func NewMFAUsecase(repo domain.MFARepository, events domain.EventRecorder, cipher *security.FieldCipher, issuer string, logger *zap.Logger) *MFAUsecase {
	return &MFAUsecase{
		repo:   repo,
		events: events,
		cipher: cipher,
		issuer: issuer,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (u *MFAUsecase) WithClock(now func() time.Time) *MFAUsecase {
	u.now = now
	return u
}

// EnableMFA initiates setup: generates a secret and backup codes, persists
// them (secret encrypted, codes hashed) with enabled=false, and returns the
// plaintext material to show the user exactly once. Re-running setup while
// still pending replaces the pending material; running it when MFA is
// already enabled fails.
func (u *MFAUsecase) EnableMFA(ctx context.Context, userID, accountName string, req domain.RequestContext) (*domain.MFASetup, error) {
	if userID == "" {
		return nil, domain.ErrValidation
	}

	existing, err := u.repo.GetSettings(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Enabled {
		return nil, domain.ErrAlreadyConfigured
	}

	secret, err := security.GenerateTOTPSecret()
	if err != nil {
		return nil, err
	}
	uri, err := security.ProvisioningURI(u.issuer, accountName, secret)
	if err != nil {
		return nil, err
	}
	codes, err := security.GenerateBackupCodes(BackupCodeCount)
	if err != nil {
		return nil, err
	}

	encSecret, err := u.cipher.Encrypt(secret)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		hash, err := security.HashBackupCode(code)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}

	settings := &domain.MFASettings{
		UserID:  userID,
		Secret:  encSecret,
		Enabled: false,
	}
	if existing == nil {
		err = u.repo.CreateSettings(ctx, settings)
	} else {
		err = u.repo.UpdateSettings(ctx, settings)
	}
	if err != nil {
		return nil, err
	}
	if err := u.repo.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}

	u.record(ctx, userID, domain.EventMFASetupInitiated, req, nil)

	return &domain.MFASetup{
		Secret:          secret,
		ProvisioningURI: uri,
		BackupCodes:     codes,
	}, nil
}

// VerifyAndEnableMFA completes setup. A valid token flips the account to
// Enabled and resets the failure counter. A bad token counts the failure and
// leaves the account pending; setup failures never lock.
func (u *MFAUsecase) VerifyAndEnableMFA(ctx context.Context, userID, token string, req domain.RequestContext) error {
	if userID == "" || token == "" {
		return domain.ErrValidation
	}

	settings, err := u.repo.GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotConfigured
		}
		return err
	}
	if settings.Enabled {
		return domain.ErrAlreadyConfigured
	}

	secret, err := u.cipher.Decrypt(settings.Secret)
	if err != nil {
		return err
	}

	step, ok := u.matchTOTP(token, secret)
	if !ok {
		settings.FailedAttempts++
		if err := u.repo.UpdateSettings(ctx, settings); err != nil {
			return err
		}
		u.record(ctx, userID, domain.EventMFAFailed, req, map[string]any{"stage": "setup"})
		return domain.ErrAuthentication
	}

	now := u.now()
	settings.Enabled = true
	settings.FailedAttempts = 0
	settings.LastUsedStep = step
	settings.LastUsed = &now
	if err := u.repo.UpdateSettings(ctx, settings); err != nil {
		return err
	}

	u.record(ctx, userID, domain.EventMFAEnabled, req, nil)
	return nil
}

// VerifyToken checks a live token against an enabled account: lockout
// first, then TOTP, then backup codes. The result never says which path was
// tried or why it failed, only valid/invalid plus attempts remaining.
func (u *MFAUsecase) VerifyToken(ctx context.Context, userID, token string, req domain.RequestContext) (*domain.MFAVerification, error) {
	if userID == "" || token == "" {
		return nil, domain.ErrValidation
	}

	settings, err := u.repo.GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotConfigured
		}
		return nil, err
	}
	if !settings.Enabled {
		return nil, domain.ErrNotConfigured
	}

	// Lockout is checked before any verification: once locked, even a
	// correct token is reported invalid.
	if settings.FailedAttempts >= MaxFailedAttempts {
		u.record(ctx, userID, domain.EventMFALocked, req, nil)
		return &domain.MFAVerification{Valid: false, AttemptsRemaining: 0}, nil
	}

	secret, err := u.cipher.Decrypt(settings.Secret)
	if err != nil {
		return nil, err
	}

	now := u.now()
	if step, ok := u.matchTOTP(token, secret); ok {
		// A code from a step at or before the last accepted one is a
		// replay of captured material and is rejected.
		if step > settings.LastUsedStep {
			settings.FailedAttempts = 0
			settings.LastUsedStep = step
			settings.LastUsed = &now
			if err := u.repo.UpdateSettings(ctx, settings); err != nil {
				return nil, err
			}
			u.record(ctx, userID, domain.EventMFAVerified, req, nil)
			return &domain.MFAVerification{Valid: true, AttemptsRemaining: MaxFailedAttempts}, nil
		}
	}

	// TOTP did not verify; try the single-use backup codes.
	codes, err := u.repo.ListBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, code := range codes {
		match, err := security.VerifyBackupCode(token, code.CodeHash)
		if err != nil || !match {
			continue
		}
		// Removal happens before success is reported, so a racing
		// second use of the same code cannot both win.
		consumed, err := u.repo.ConsumeBackupCode(ctx, code.ID)
		if err != nil {
			return nil, err
		}
		if !consumed {
			continue
		}

		settings.FailedAttempts = 0
		settings.LastUsed = &now
		if err := u.repo.UpdateSettings(ctx, settings); err != nil {
			return nil, err
		}
		u.record(ctx, userID, domain.EventBackupCodeUsed, req, map[string]any{"remaining": len(codes) - 1})
		return &domain.MFAVerification{Valid: true, UsedBackupCode: true, AttemptsRemaining: MaxFailedAttempts}, nil
	}

	settings.FailedAttempts++
	if err := u.repo.UpdateSettings(ctx, settings); err != nil {
		return nil, err
	}
	u.record(ctx, userID, domain.EventMFAFailed, req, nil)

	remaining := MaxFailedAttempts - settings.FailedAttempts
	if remaining < 0 {
		remaining = 0
	}
	return &domain.MFAVerification{Valid: false, AttemptsRemaining: remaining}, nil
}

// DisableMFA turns MFA off. It requires a currently valid token, so only a
// holder of a live factor can remove the factor.
func (u *MFAUsecase) DisableMFA(ctx context.Context, userID, token string, req domain.RequestContext) error {
	verification, err := u.VerifyToken(ctx, userID, token, req)
	if err != nil {
		return err
	}
	if !verification.Valid {
		return domain.ErrAuthentication
	}

	if err := u.repo.DeleteSettings(ctx, userID); err != nil {
		return err
	}
	u.record(ctx, userID, domain.EventMFADisabled, req, nil)
	return nil
}

// RegenerateBackupCodes replaces the whole code set with fresh ones. Like
// disable, it demands a valid token first.
func (u *MFAUsecase) RegenerateBackupCodes(ctx context.Context, userID, token string, req domain.RequestContext) ([]string, error) {
	verification, err := u.VerifyToken(ctx, userID, token, req)
	if err != nil {
		return nil, err
	}
	if !verification.Valid {
		return nil, domain.ErrAuthentication
	}

	codes, err := security.GenerateBackupCodes(BackupCodeCount)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		hash, err := security.HashBackupCode(code)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	if err := u.repo.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}

	u.record(ctx, userID, domain.EventBackupCodesRegenerated, req, nil)
	return codes, nil
}

// Status is the read-only projection used by settings pages.
func (u *MFAUsecase) Status(ctx context.Context, userID string) (*domain.MFAStatus, error) {
	if userID == "" {
		return nil, domain.ErrValidation
	}

	settings, err := u.repo.GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.MFAStatus{CanSetup: true}, nil
		}
		return nil, err
	}

	codes, err := u.repo.ListBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &domain.MFAStatus{
		Enabled:              settings.Enabled,
		BackupCodesRemaining: len(codes),
		LastUsed:             settings.LastUsed,
		CanSetup:             !settings.Enabled,
	}, nil
}

func (u *MFAUsecase) matchTOTP(token, secret string) (int64, bool) {
	return security.MatchTOTPStep(token, secret, u.now())
}

// record appends a security event. Event logging is best-effort from hot
// paths: a failed insert is logged, never surfaced to the caller.
func (u *MFAUsecase) record(ctx context.Context, userID, eventType string, req domain.RequestContext, details map[string]any) {
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
