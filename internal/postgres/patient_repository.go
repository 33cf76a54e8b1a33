package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisdom-muso/laso/internal/domain"
)

// PatientRepo is the pgx-backed patient and treatment repository.
type PatientRepo struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) *PatientRepo {
	return &PatientRepo{pool: pool}
}

func (r *PatientRepo) Exists(ctx context.Context, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)
	`, patientID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check patient existence: %w", err)
	}
	return exists, nil
}

func (r *PatientRepo) Treats(ctx context.Context, staffID, patientID uuid.UUID) (bool, error) {
	var treats bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM treatments WHERE staff_id = $1 AND patient_id = $2)
	`, staffID, patientID).Scan(&treats)
	if err != nil {
		return false, fmt.Errorf("failed to check treatment relation: %w", err)
	}
	return treats, nil
}

func (r *PatientRepo) TreatedBy(ctx context.Context, staffID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT patient_id FROM treatments WHERE staff_id = $1
	`, staffID)
	if err != nil {
		return nil, fmt.Errorf("failed to query treated patients: %w", err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (uuid.UUID, error) {
		var id uuid.UUID
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan treated patients: %w", err)
	}
	return ids, nil
}

// Create registers a patient. Used by the development seed and tests; patient
// onboarding is otherwise owned by the upstream records system.
func (r *PatientRepo) Create(ctx context.Context, patient domain.Patient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, patient.ID, patient.Name)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

// AssignStaff records that a staff member treats a patient.
func (r *PatientRepo) AssignStaff(ctx context.Context, staffID, patientID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO treatments (staff_id, patient_id)
		VALUES ($1, $2)
		ON CONFLICT (staff_id, patient_id) DO NOTHING
	`, staffID, patientID)
	if err != nil {
		return fmt.Errorf("failed to assign staff: %w", err)
	}
	return nil
}
