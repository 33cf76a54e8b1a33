package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source identifies where a reading entered the system.
type Source string

const (
	SourceDevice    Source = "device"
	SourceManual    Source = "manual"
	SourceSimulated Source = "simulated"
)

// ParseSource validates a source tag.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceDevice, SourceManual, SourceSimulated:
		return Source(s), nil
	default:
		return "", fmt.Errorf("invalid source %q", s)
	}
}

// MetricSet holds one observation's metric values. Each metric is optional;
// a valid reading carries at least one.
type MetricSet struct {
	Systolic    *int     `json:"systolic,omitempty"`
	Diastolic   *int     `json:"diastolic,omitempty"`
	HeartRate   *int     `json:"heart_rate,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	SpO2        *int     `json:"oxygen_saturation,omitempty"`
}

// Empty reports whether no metric is present.
func (m MetricSet) Empty() bool {
	return m.Systolic == nil && m.Diastolic == nil && m.HeartRate == nil &&
		m.Temperature == nil && m.SpO2 == nil
}

// Category classifies the clinical risk of a reading, ordered by severity.
type Category int

const (
	CategoryNormal Category = iota
	CategoryWatch
	CategoryElevated
	CategoryCritical
	// CategoryUnknown is outside the severity order: it marks a reading
	// with no evaluable metrics and never warrants an alert.
	CategoryUnknown
)

var categoryNames = map[Category]string{
	CategoryNormal:   "NORMAL",
	CategoryWatch:    "WATCH",
	CategoryElevated: "ELEVATED",
	CategoryCritical: "CRITICAL",
	CategoryUnknown:  "UNKNOWN",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// ParseCategory parses the canonical uppercase name.
func ParseCategory(s string) (Category, error) {
	for c, name := range categoryNames {
		if name == s {
			return c, nil
		}
	}
	return CategoryUnknown, fmt.Errorf("invalid category %q", s)
}

// AtLeast reports whether c is at or above threshold in severity.
// UNKNOWN is never at or above any threshold.
func (c Category) AtLeast(threshold Category) bool {
	if c == CategoryUnknown {
		return false
	}
	return c >= threshold
}

// MarshalText implements encoding.TextMarshaler so categories serialize
// as their canonical names.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Rule records one metric/band breach found during classification.
type Rule struct {
	Metric   string   `json:"metric"`
	Band     string   `json:"band"`
	Value    float64  `json:"value"`
	Category Category `json:"category"`
}

// RiskAssessment is derived 1:1 from a reading's metric set. Immutable once
// computed; persisted denormalized on the reading row so it cannot drift.
type RiskAssessment struct {
	Category       Category `json:"category"`
	TriggeredRules []Rule   `json:"triggered_rules"`
}

// NewReading is the ingest entry point's input: an observation that has not
// been validated, classified, or persisted yet.
type NewReading struct {
	PatientID  uuid.UUID
	Metrics    MetricSet
	ObservedAt time.Time
	Source     Source
}

// Reading is one persisted, immutable vitals observation with its assessment.
type Reading struct {
	ID         uuid.UUID      `json:"id"`
	PatientID  uuid.UUID      `json:"patient_id"`
	Metrics    MetricSet      `json:"metrics"`
	Assessment RiskAssessment `json:"assessment"`
	ObservedAt time.Time      `json:"observed_at"`
	Source     Source         `json:"source"`
	CreatedAt  time.Time      `json:"created_at"`
}
