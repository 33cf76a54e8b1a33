package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminates live-channel payloads.
type EventType string

const (
	EventReadingUpdate EventType = "ReadingUpdate"
	EventAlertRaised   EventType = "AlertRaised"
)

// Event is the wire payload fanned out to subscribers. Delivery to the live
// channel is at-most-once; the vitals store is the authoritative record a
// client re-queries to fill gaps.
type Event struct {
	Type           EventType  `json:"type"`
	PatientID      uuid.UUID  `json:"patient_id"`
	ReadingID      uuid.UUID  `json:"reading_id"`
	AlertID        *uuid.UUID `json:"alert_id,omitempty"`
	Category       Category   `json:"category"`
	TriggeredRules []Rule     `json:"triggered_rules"`
	ObservedAt     time.Time  `json:"observed_at"`
}

// ReadingUpdateEvent builds the per-patient live update for a stored reading.
func ReadingUpdateEvent(r *Reading) Event {
	return Event{
		Type:           EventReadingUpdate,
		PatientID:      r.PatientID,
		ReadingID:      r.ID,
		Category:       r.Assessment.Category,
		TriggeredRules: r.Assessment.TriggeredRules,
		ObservedAt:     r.ObservedAt,
	}
}

// AlertRaisedEvent builds the alert notification for a stored reading.
func AlertRaisedEvent(r *Reading, a *Alert) Event {
	e := ReadingUpdateEvent(r)
	e.Type = EventAlertRaised
	e.AlertID = &a.ID
	return e
}
