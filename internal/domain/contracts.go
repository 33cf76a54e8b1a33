package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// VitalsStore is the durable append-only record of readings and alerts.
type VitalsStore interface {
	// SaveReading persists a reading (with its assessment) and, when alert is
	// non-nil, the alert, atomically: both become visible or neither does.
	SaveReading(ctx context.Context, reading *Reading, alert *Alert) error

	// History returns the patient's readings in [from, to] ordered by
	// observation time, plus any alerts raised for them.
	History(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]Reading, []Alert, error)
}

// AlertRepository exposes alert lookup and acknowledgment.
type AlertRepository interface {
	GetByID(ctx context.Context, alertID uuid.UUID) (*Alert, error)

	// Acknowledge marks the alert acknowledged exactly once. Returns
	// ErrAlertNotFound or ErrAlreadyAcknowledged.
	Acknowledge(ctx context.Context, alertID, staffID uuid.UUID, at time.Time) (*Alert, error)

	// ListOpen returns all unacknowledged alerts, newest first.
	ListOpen(ctx context.Context) ([]Alert, error)
}

// PatientRepository backs ingest validation and the treating-staff
// capability check.
type PatientRepository interface {
	Exists(ctx context.Context, patientID uuid.UUID) (bool, error)
	Treats(ctx context.Context, staffID, patientID uuid.UUID) (bool, error)
	TreatedBy(ctx context.Context, staffID uuid.UUID) ([]uuid.UUID, error)
}

// EventPublisher fans an event out to a topic's current subscribers.
// Best-effort relative to persistence: callers never block on delivery.
type EventPublisher interface {
	Publish(topic Topic, event Event)
}

// LatestReadingCache holds the most recent reading per patient so a new
// subscriber can be primed without a history query.
type LatestReadingCache interface {
	SetLatest(ctx context.Context, reading *Reading) error
	// GetLatest returns nil with no error when no reading is cached.
	GetLatest(ctx context.Context, patientID uuid.UUID) (*Reading, error)
}
