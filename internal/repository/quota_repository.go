package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"orbitdrive/internal/domain"
)

// QuotaRepository holds the per-user rolling quota state and the daily usage
// ledger.
type QuotaRepository struct {
	db *sqlx.DB
}

func NewQuotaRepository(db *sqlx.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

func (r *QuotaRepository) GetQuota(ctx context.Context, ownerID string) (*domain.UserQuota, error) {
	var quota domain.UserQuota

	err := r.db.GetContext(ctx, &quota,
		`SELECT * FROM user_quotas WHERE owner_id = $1`,
		ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}

	return &quota, nil
}

// CreateQuota registers the user and their quota row in one transaction.
func (r *QuotaRepository) CreateQuota(ctx context.Context, ownerID, username string, maxBytes int64, nextReset time.Time) (*domain.UserQuota, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO users (id, username) VALUES ($1, $2)
        ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username`,
		ownerID, username)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	quota := domain.UserQuota{
		OwnerID:     ownerID,
		MaxBytes:    maxBytes,
		NextResetAt: &nextReset,
	}

	err = tx.QueryRowContext(ctx, `
        INSERT INTO user_quotas (owner_id, used_bytes, max_bytes, next_reset_at)
        VALUES ($1, 0, $2, $3)
        ON CONFLICT (owner_id) DO NOTHING
        RETURNING used_bytes, created_at, updated_at`,
		ownerID, maxBytes, nextReset,
	).Scan(&quota.UsedBytes, &quota.CreatedAt, &quota.UpdatedAt)
	if err != nil {
		// ON CONFLICT DO NOTHING returns no row when the quota already
		// exists; provisioning is idempotent, so hand back the current state.
		if errors.Is(err, sql.ErrNoRows) {
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit transaction: %w", err)
			}
			return r.GetQuota(ctx, ownerID)
		}
		return nil, fmt.Errorf("failed to create quota: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &quota, nil
}

// ResetCycle starts a fresh cycle: usage back to zero, next reset moved to
// nextReset. The update is conditional on the previously observed reset
// instant so two concurrent rollovers past the same stale boundary cannot
// both win; the loser sees false and must re-read.
func (r *QuotaRepository) ResetCycle(ctx context.Context, ownerID string, observed *time.Time, nextReset time.Time) (bool, error) {
	query := `
        UPDATE user_quotas
        SET used_bytes = 0,
            next_reset_at = $3,
            updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $1 AND next_reset_at IS NOT DISTINCT FROM $2`

	result, err := r.db.ExecContext(ctx, query, ownerID, observed, nextReset)
	if err != nil {
		return false, fmt.Errorf("failed to reset quota cycle: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows == 1, nil
}

// ApplyUsage adds deltaBytes to the current cycle's usage and to the daily
// ledger entry for day, in one transaction. Cycle usage is intentionally not
// clamped at zero so a delete exactly reverses its upload; the daily entry is
// clamped because it only ever reports bytes added.
func (r *QuotaRepository) ApplyUsage(ctx context.Context, ownerID string, deltaBytes int64, day string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
        UPDATE user_quotas
        SET used_bytes = used_bytes + $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $2`,
		deltaBytes, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update used space: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}

	// Both branches clamp: a negative delta can also be the first event of
	// the day, e.g. deleting a file uploaded on an earlier day.
	_, err = tx.ExecContext(ctx, `
        INSERT INTO daily_usage (owner_id, day, bytes_added)
        VALUES ($1, $2, GREATEST(0, $3::bigint))
        ON CONFLICT (owner_id, day)
        DO UPDATE SET bytes_added = GREATEST(0, daily_usage.bytes_added + $3::bigint),
                      updated_at = CURRENT_TIMESTAMP`,
		ownerID, day, deltaBytes)
	if err != nil {
		return fmt.Errorf("failed to upsert daily usage: %w", err)
	}

	return tx.Commit()
}

func (r *QuotaRepository) UpdateLimit(ctx context.Context, ownerID string, newLimit int64) error {
	result, err := r.db.ExecContext(ctx, `
        UPDATE user_quotas
        SET max_bytes = $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $2`,
		newLimit, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update quota limit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// DailySnapshot lists users that added bytes on the given day, heaviest
// first. Reporting only, no part of quota enforcement.
func (r *QuotaRepository) DailySnapshot(ctx context.Context, day string) ([]domain.DailyUsage, error) {
	var entries []domain.DailyUsage

	err := r.db.SelectContext(ctx, &entries, `
        SELECT u.username, d.bytes_added
        FROM daily_usage d
        JOIN users u ON u.id = d.owner_id
        WHERE d.day = $1 AND d.bytes_added > 0
        ORDER BY d.bytes_added DESC`,
		day)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily snapshot: %w", err)
	}

	return entries, nil
}
