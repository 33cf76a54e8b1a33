package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Topic is a logical broadcast channel. Not persisted; exists only as an
// index key in the dispatcher's registry.
type Topic string

// TopicStaffAlerts receives AlertRaised events for every patient.
const TopicStaffAlerts Topic = "staff-alerts"

const patientTopicPrefix = "patient:"

// PatientTopic returns the per-patient vitals topic.
func PatientTopic(patientID uuid.UUID) Topic {
	return Topic(patientTopicPrefix + patientID.String())
}

// PatientID extracts the patient from a patient topic. ok is false for
// staff-alerts or malformed keys.
func (t Topic) PatientID() (uuid.UUID, bool) {
	raw, found := strings.CutPrefix(string(t), patientTopicPrefix)
	if !found {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ParseTopic validates a topic key supplied by a subscriber.
func ParseTopic(s string) (Topic, bool) {
	t := Topic(s)
	if t == TopicStaffAlerts {
		return t, true
	}
	if _, ok := t.PatientID(); ok {
		return t, true
	}
	return "", false
}
