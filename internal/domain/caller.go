package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Role is the caller's resolved role. How identity was established is the
// transport layer's concern; the capability check only sees the result.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleNurse   Role = "nurse"
)

// ParseRole validates a role tag.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleDoctor, RoleNurse:
		return Role(s), nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// IsStaff reports whether the role may see staff-only channels.
func (r Role) IsStaff() bool {
	return r == RoleDoctor || r == RoleNurse
}

// Caller is a resolved identity: who is asking, in what role, and which
// patients they currently treat (empty for patients).
type Caller struct {
	ID      uuid.UUID
	Role    Role
	Treated map[uuid.UUID]struct{}
}

// Treats reports whether the caller has a treating relationship with the
// patient, or is that patient.
func (c Caller) Treats(patientID uuid.UUID) bool {
	if c.Role == RolePatient {
		return c.ID == patientID
	}
	_, ok := c.Treated[patientID]
	return ok
}

// Allowed is the capability check: may this caller subscribe to this topic.
// Pure function over the resolved caller; no I/O.
//
//   - patient:{id}: the patient themself, or staff currently treating them.
//   - staff-alerts: staff roles only.
func Allowed(caller Caller, topic Topic) bool {
	if topic == TopicStaffAlerts {
		return caller.Role.IsStaff()
	}
	patientID, ok := topic.PatientID()
	if !ok {
		return false
	}
	return caller.Treats(patientID)
}
