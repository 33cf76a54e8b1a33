package domain

import "github.com/google/uuid"

// Patient is the minimal record this service keeps about a monitored person.
// Full demographics live in the upstream records system; readings and alerts
// reference patients by ID only.
type Patient struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
