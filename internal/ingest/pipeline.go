// Package ingest implements the vitals ingest pipeline: validate, classify,
// persist, publish.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/wisdom-muso/laso/internal/domain"
	"github.com/wisdom-muso/laso/internal/metrics"
	"github.com/wisdom-muso/laso/internal/risk"
)

// Pipeline turns raw observations into stored readings and live events.
//
// Persistence is the durability boundary: a reading is successfully ingested
// once the store transaction commits, regardless of whether anyone is
// subscribed. Publication and cache refresh are best-effort layered on top;
// the history query is the reconciliation path for missed events.
type Pipeline struct {
	store          domain.VitalsStore
	patients       domain.PatientRepository
	publisher      domain.EventPublisher
	cache          domain.LatestReadingCache
	clock          clockwork.Clock
	maxFutureSkew  time.Duration
	alertThreshold domain.Category
}

// New creates the pipeline. cache may be nil when no latest-reading cache is
// configured.
func New(store domain.VitalsStore, patients domain.PatientRepository, publisher domain.EventPublisher, cache domain.LatestReadingCache, clock clockwork.Clock, maxFutureSkew time.Duration, alertThreshold domain.Category) *Pipeline {
	return &Pipeline{
		store:          store,
		patients:       patients,
		publisher:      publisher,
		cache:          cache,
		clock:          clock,
		maxFutureSkew:  maxFutureSkew,
		alertThreshold: alertThreshold,
	}
}

// Ingest validates and classifies the observation, persists reading and any
// warranted alert atomically, then publishes the live events. The returned
// alert is nil when the category did not warrant one.
func (p *Pipeline) Ingest(ctx context.Context, in domain.NewReading) (*domain.Reading, *domain.Alert, error) {
	if err := p.validate(ctx, in); err != nil {
		return nil, nil, err
	}

	assessment := risk.Classify(in.Metrics)
	metrics.ClassificationsTotal.WithLabelValues(assessment.Category.String()).Inc()

	now := p.clock.Now().UTC()
	reading := &domain.Reading{
		ID:         uuid.New(),
		PatientID:  in.PatientID,
		Metrics:    in.Metrics,
		Assessment: assessment,
		ObservedAt: in.ObservedAt.UTC(),
		Source:     in.Source,
		CreatedAt:  now,
	}

	var alert *domain.Alert
	if assessment.Category.AtLeast(p.alertThreshold) {
		alert = &domain.Alert{
			ID:        uuid.New(),
			ReadingID: reading.ID,
			PatientID: reading.PatientID,
			Category:  assessment.Category,
			CreatedAt: now,
		}
	}

	start := p.clock.Now()
	if err := p.store.SaveReading(ctx, reading, alert); err != nil {
		metrics.IngestTotal.WithLabelValues("storage_error").Inc()
		return nil, nil, fmt.Errorf("failed to persist reading: %w", err)
	}
	metrics.IngestStoreDuration.Observe(p.clock.Since(start).Seconds())
	metrics.IngestTotal.WithLabelValues("stored").Inc()

	if alert != nil {
		metrics.AlertsRaisedTotal.WithLabelValues(alert.Category.String()).Inc()
	}

	p.refreshCache(ctx, reading)
	p.publish(reading, alert)

	return reading, alert, nil
}

func (p *Pipeline) validate(ctx context.Context, in domain.NewReading) error {
	if in.Metrics.Empty() {
		metrics.IngestTotal.WithLabelValues("empty_reading").Inc()
		return domain.ErrEmptyReading
	}
	if in.ObservedAt.After(p.clock.Now().Add(p.maxFutureSkew)) {
		metrics.IngestTotal.WithLabelValues("implausible_timestamp").Inc()
		return domain.ErrImplausibleTimestamp
	}

	exists, err := p.patients.Exists(ctx, in.PatientID)
	if err != nil {
		return fmt.Errorf("failed to look up patient: %w", err)
	}
	if !exists {
		metrics.IngestTotal.WithLabelValues("unknown_patient").Inc()
		return domain.ErrUnknownPatient
	}
	return nil
}

// publish fans the live events out. Fire-and-forget relative to persistence.
func (p *Pipeline) publish(reading *domain.Reading, alert *domain.Alert) {
	patientTopic := domain.PatientTopic(reading.PatientID)
	p.publisher.Publish(patientTopic, domain.ReadingUpdateEvent(reading))

	if alert != nil {
		event := domain.AlertRaisedEvent(reading, alert)
		p.publisher.Publish(patientTopic, event)
		p.publisher.Publish(domain.TopicStaffAlerts, event)
	}
}

func (p *Pipeline) refreshCache(ctx context.Context, reading *domain.Reading) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetLatest(ctx, reading); err != nil {
		slog.Warn("Failed to refresh latest-reading cache",
			"patient_id", reading.PatientID.String(),
			"error", err,
		)
	}
}
