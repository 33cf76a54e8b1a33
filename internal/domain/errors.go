package domain

import "errors"

var (
	// Validation errors - rejected at the ingest boundary, nothing persisted.
	ErrUnknownPatient       = errors.New("unknown patient")
	ErrEmptyReading         = errors.New("reading contains no metrics")
	ErrImplausibleTimestamp = errors.New("observed_at is too far in the future")

	// Authorization errors - rejected at the session/subscribe boundary.
	ErrUnauthorized = errors.New("caller identity could not be established")
	ErrForbidden    = errors.New("caller is not authorized for this topic")

	// Resource errors - local, reported to the caller.
	ErrAlertNotFound       = errors.New("alert not found")
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSessionClosed       = errors.New("session is closed")
)
