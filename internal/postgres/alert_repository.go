package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisdom-muso/laso/internal/domain"
)

// AlertRepo is the pgx-backed alert repository.
type AlertRepo struct {
	pool *pgxpool.Pool
}

func NewAlertRepo(pool *pgxpool.Pool) *AlertRepo {
	return &AlertRepo{pool: pool}
}

func (r *AlertRepo) GetByID(ctx context.Context, alertID uuid.UUID) (*domain.Alert, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, reading_id, patient_id, category, acknowledged, acknowledged_by, acknowledged_at, created_at
		FROM alerts
		WHERE id = $1
	`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}

	alert, err := pgx.CollectExactlyOneRow(rows, scanAlert)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert by ID: %w", err)
	}
	return &alert, nil
}

// Acknowledge flips the alert to acknowledged exactly once. The guarded UPDATE
// makes concurrent acknowledgments race safely: exactly one caller wins, the
// rest learn whether the alert was missing or already acknowledged.
func (r *AlertRepo) Acknowledge(ctx context.Context, alertID, staffID uuid.UUID, at time.Time) (*domain.Alert, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE alerts
		SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = $3
		WHERE id = $1 AND NOT acknowledged
		RETURNING id, reading_id, patient_id, category, acknowledged, acknowledged_by, acknowledged_at, created_at
	`, alertID, staffID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	alert, err := pgx.CollectExactlyOneRow(rows, scanAlert)
	if errors.Is(err, pgx.ErrNoRows) {
		// Zero rows means either the alert does not exist or someone else
		// acknowledged it first. Look it up to tell the two apart.
		existing, getErr := r.GetByID(ctx, alertID)
		if getErr != nil {
			return nil, getErr
		}
		if existing.Acknowledged {
			return existing, domain.ErrAlreadyAcknowledged
		}
		return nil, domain.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan acknowledged alert: %w", err)
	}
	return &alert, nil
}

func (r *AlertRepo) ListOpen(ctx context.Context) ([]domain.Alert, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, reading_id, patient_id, category, acknowledged, acknowledged_by, acknowledged_at, created_at
		FROM alerts
		WHERE NOT acknowledged
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open alerts: %w", err)
	}

	alerts, err := pgx.CollectRows(rows, scanAlert)
	if err != nil {
		return nil, fmt.Errorf("failed to scan open alerts: %w", err)
	}
	return alerts, nil
}
