package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hirewire/authcore/internal/domain"
)

// PostgresMFARepo implements domain.MFARepository using PostgreSQL.
type PostgresMFARepo struct {
	db *sql.DB
}

// NewPostgresMFARepo creates a new repository instance.
func NewPostgresMFARepo(db *sql.DB) *PostgresMFARepo {
	return &PostgresMFARepo{db: db}
}

// GetSettings retrieves a user's MFA settings record.
func (r *PostgresMFARepo) GetSettings(ctx context.Context, userID string) (*domain.MFASettings, error) {
	query := `
		SELECT user_id, COALESCE(secret, ''), enabled, failed_attempts, last_used_step, created_at, last_used, updated_at
		FROM user_mfa_settings
		WHERE user_id = $1
	`

	settings := &domain.MFASettings{}
	var lastUsed sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&settings.UserID,
		&settings.Secret,
		&settings.Enabled,
		&settings.FailedAttempts,
		&settings.LastUsedStep,
		&settings.CreatedAt,
		&lastUsed,
		&settings.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if lastUsed.Valid {
		settings.LastUsed = &lastUsed.Time
	}
	return settings, nil
}

// CreateSettings inserts a fresh MFA settings row for a user.
func (r *PostgresMFARepo) CreateSettings(ctx context.Context, settings *domain.MFASettings) error {
	query := `
		INSERT INTO user_mfa_settings (user_id, secret, enabled, failed_attempts, last_used_step, created_at, last_used, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	settings.CreatedAt = time.Now()
	settings.UpdatedAt = settings.CreatedAt

	var lastUsed sql.NullTime
	if settings.LastUsed != nil {
		lastUsed.Time = *settings.LastUsed
		lastUsed.Valid = true
	}

	_, err := r.db.ExecContext(ctx, query,
		settings.UserID,
		settings.Secret,
		settings.Enabled,
		settings.FailedAttempts,
		settings.LastUsedStep,
		settings.CreatedAt,
		lastUsed,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create mfa settings: %w", err)
	}
	return nil
}

// UpdateSettings persists the mutable fields of an MFA settings row.
func (r *PostgresMFARepo) UpdateSettings(ctx context.Context, settings *domain.MFASettings) error {
	query := `
		UPDATE user_mfa_settings
		SET secret = $1, enabled = $2, failed_attempts = $3, last_used_step = $4, last_used = $5, updated_at = $6
		WHERE user_id = $7
	`

	settings.UpdatedAt = time.Now()

	var lastUsed sql.NullTime
	if settings.LastUsed != nil {
		lastUsed.Time = *settings.LastUsed
		lastUsed.Valid = true
	}

	result, err := r.db.ExecContext(ctx, query,
		settings.Secret,
		settings.Enabled,
		settings.FailedAttempts,
		settings.LastUsedStep,
		lastUsed,
		settings.UpdatedAt,
		settings.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update mfa settings: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteSettings removes a user's MFA settings and all recovery codes.
func (r *PostgresMFARepo) DeleteSettings(ctx context.Context, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mfa_recovery_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete recovery codes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_mfa_settings WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete mfa settings: %w", err)
	}

	return tx.Commit()
}

// ReplaceBackupCodes swaps the user's stored code hashes in one transaction,
// so a crash can never leave a mix of old and new codes.
func (r *PostgresMFARepo) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mfa_recovery_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear recovery codes: %w", err)
	}

	insert := `
		INSERT INTO mfa_recovery_codes (id, user_id, code_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`
	now := time.Now()
	for _, hash := range hashes {
		if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), userID, hash, now); err != nil {
			return fmt.Errorf("failed to insert recovery code: %w", err)
		}
	}

	return tx.Commit()
}

// ListBackupCodes returns the user's unconsumed recovery code rows.
func (r *PostgresMFARepo) ListBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error) {
	query := `
		SELECT id, user_id, code_hash, created_at
		FROM mfa_recovery_codes
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var codes []domain.BackupCode
	for rows.Next() {
		var code domain.BackupCode
		if err := rows.Scan(&code.ID, &code.UserID, &code.CodeHash, &code.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recovery code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// ConsumeBackupCode deletes a single code row. The affected-rows count is
// the concurrency guard: of two racing consumers, exactly one sees true.
func (r *PostgresMFARepo) ConsumeBackupCode(ctx context.Context, codeID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM mfa_recovery_codes WHERE id = $1`, codeID)
	if err != nil {
		return false, fmt.Errorf("failed to consume recovery code: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
