package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisdom-muso/laso/internal/domain"
)

// VitalsRepo is the pgx-backed vitals store.
type VitalsRepo struct {
	pool *pgxpool.Pool
}

func NewVitalsRepo(pool *pgxpool.Pool) *VitalsRepo {
	return &VitalsRepo{pool: pool}
}

// SaveReading persists the reading and its optional alert in one transaction.
func (r *VitalsRepo) SaveReading(ctx context.Context, reading *domain.Reading, alert *domain.Alert) error {
	rules, err := json.Marshal(reading.Assessment.TriggeredRules)
	if err != nil {
		return fmt.Errorf("failed to marshal triggered rules: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO readings (id, patient_id, systolic, diastolic, heart_rate, temperature, oxygen_saturation,
			category, triggered_rules, observed_at, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, reading.ID, reading.PatientID,
		reading.Metrics.Systolic, reading.Metrics.Diastolic, reading.Metrics.HeartRate,
		reading.Metrics.Temperature, reading.Metrics.SpO2,
		reading.Assessment.Category.String(), rules,
		reading.ObservedAt, string(reading.Source), reading.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	if alert != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO alerts (id, reading_id, patient_id, category, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, alert.ID, alert.ReadingID, alert.PatientID, alert.Category.String(), alert.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// History returns the patient's readings in [from, to] ordered by observation
// time, together with the alerts raised for them.
func (r *VitalsRepo) History(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]domain.Reading, []domain.Alert, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, systolic, diastolic, heart_rate, temperature, oxygen_saturation,
			category, triggered_rules, observed_at, source, created_at
		FROM readings
		WHERE patient_id = $1 AND observed_at >= $2 AND observed_at <= $3
		ORDER BY observed_at
	`, patientID, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query readings: %w", err)
	}

	readings, err := pgx.CollectRows(rows, scanReading)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan readings: %w", err)
	}
	if len(readings) == 0 {
		return []domain.Reading{}, []domain.Alert{}, nil
	}

	ids := make([]uuid.UUID, len(readings))
	for i, reading := range readings {
		ids[i] = reading.ID
	}

	alertRows, err := r.pool.Query(ctx, `
		SELECT id, reading_id, patient_id, category, acknowledged, acknowledged_by, acknowledged_at, created_at
		FROM alerts
		WHERE reading_id = ANY($1)
		ORDER BY created_at
	`, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	alerts, err := pgx.CollectRows(alertRows, scanAlert)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan alerts: %w", err)
	}

	return readings, alerts, nil
}

func scanReading(row pgx.CollectableRow) (domain.Reading, error) {
	var (
		reading  domain.Reading
		category string
		rules    []byte
		source   string
	)
	err := row.Scan(&reading.ID, &reading.PatientID,
		&reading.Metrics.Systolic, &reading.Metrics.Diastolic, &reading.Metrics.HeartRate,
		&reading.Metrics.Temperature, &reading.Metrics.SpO2,
		&category, &rules, &reading.ObservedAt, &source, &reading.CreatedAt)
	if err != nil {
		return domain.Reading{}, err
	}

	reading.Assessment.Category, err = domain.ParseCategory(category)
	if err != nil {
		return domain.Reading{}, err
	}
	if err := json.Unmarshal(rules, &reading.Assessment.TriggeredRules); err != nil {
		return domain.Reading{}, err
	}
	reading.Source = domain.Source(source)
	return reading, nil
}

func scanAlert(row pgx.CollectableRow) (domain.Alert, error) {
	var (
		alert    domain.Alert
		category string
	)
	err := row.Scan(&alert.ID, &alert.ReadingID, &alert.PatientID, &category,
		&alert.Acknowledged, &alert.AcknowledgedBy, &alert.AcknowledgedAt, &alert.CreatedAt)
	if err != nil {
		return domain.Alert{}, err
	}

	alert.Category, err = domain.ParseCategory(category)
	if err != nil {
		return domain.Alert{}, err
	}
	return alert, nil
}
