package domain

import (
	"time"

	"github.com/google/uuid"
)

// Alert is a persisted notable-risk event requiring staff acknowledgment.
// Created in the same transaction as its reading; never deleted.
type Alert struct {
	ID             uuid.UUID  `json:"id"`
	ReadingID      uuid.UUID  `json:"reading_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	Category       Category   `json:"category"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy *uuid.UUID `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
