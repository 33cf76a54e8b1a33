package server

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/wisdom-muso/laso/internal/broadcast"
	"github.com/wisdom-muso/laso/internal/config"
	"github.com/wisdom-muso/laso/internal/domain"
	"github.com/wisdom-muso/laso/internal/ingest"
)

// --- mocks ---

type mockVitals struct {
	saveFn    func(ctx context.Context, reading *domain.Reading, alert *domain.Alert) error
	historyFn func(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]domain.Reading, []domain.Alert, error)
}

func (m *mockVitals) SaveReading(ctx context.Context, reading *domain.Reading, alert *domain.Alert) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, reading, alert)
	}
	return nil
}

func (m *mockVitals) History(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]domain.Reading, []domain.Alert, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, patientID, from, to)
	}
	return nil, nil, nil
}

type mockAlerts struct {
	getFn      func(ctx context.Context, alertID uuid.UUID) (*domain.Alert, error)
	ackFn      func(ctx context.Context, alertID, staffID uuid.UUID, at time.Time) (*domain.Alert, error)
	listOpenFn func(ctx context.Context) ([]domain.Alert, error)
}

func (m *mockAlerts) GetByID(ctx context.Context, alertID uuid.UUID) (*domain.Alert, error) {
	if m.getFn != nil {
		return m.getFn(ctx, alertID)
	}
	return nil, domain.ErrAlertNotFound
}

func (m *mockAlerts) Acknowledge(ctx context.Context, alertID, staffID uuid.UUID, at time.Time) (*domain.Alert, error) {
	if m.ackFn != nil {
		return m.ackFn(ctx, alertID, staffID, at)
	}
	return nil, domain.ErrAlertNotFound
}

func (m *mockAlerts) ListOpen(ctx context.Context) ([]domain.Alert, error) {
	if m.listOpenFn != nil {
		return m.listOpenFn(ctx)
	}
	return nil, nil
}

type mockPatients struct {
	existsFn    func(ctx context.Context, patientID uuid.UUID) (bool, error)
	treatsFn    func(ctx context.Context, staffID, patientID uuid.UUID) (bool, error)
	treatedByFn func(ctx context.Context, staffID uuid.UUID) ([]uuid.UUID, error)
}

func (m *mockPatients) Exists(ctx context.Context, patientID uuid.UUID) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, patientID)
	}
	return true, nil
}

func (m *mockPatients) Treats(ctx context.Context, staffID, patientID uuid.UUID) (bool, error) {
	if m.treatsFn != nil {
		return m.treatsFn(ctx, staffID, patientID)
	}
	return false, nil
}

func (m *mockPatients) TreatedBy(ctx context.Context, staffID uuid.UUID) ([]uuid.UUID, error) {
	if m.treatedByFn != nil {
		return m.treatedByFn(ctx, staffID)
	}
	return nil, nil
}

type mockCache struct {
	setFn func(ctx context.Context, reading *domain.Reading) error
	getFn func(ctx context.Context, patientID uuid.UUID) (*domain.Reading, error)
}

func (m *mockCache) SetLatest(ctx context.Context, reading *domain.Reading) error {
	if m.setFn != nil {
		return m.setFn(ctx, reading)
	}
	return nil
}

func (m *mockCache) GetLatest(ctx context.Context, patientID uuid.UUID) (*domain.Reading, error) {
	if m.getFn != nil {
		return m.getFn(ctx, patientID)
	}
	return nil, nil
}

// --- test server wiring ---

type testDeps struct {
	vitals   *mockVitals
	alerts   *mockAlerts
	patients *mockPatients
	cache    *mockCache
}

func newTestServer(t *testing.T, deps testDeps) *Server {
	t.Helper()

	if deps.vitals == nil {
		deps.vitals = &mockVitals{}
	}
	if deps.alerts == nil {
		deps.alerts = &mockAlerts{}
	}
	if deps.patients == nil {
		deps.patients = &mockPatients{}
	}
	if deps.cache == nil {
		deps.cache = &mockCache{}
	}

	cfg := &config.Config{
		AppEnv:                  "test",
		Port:                    "0",
		MaxFutureSkew:           2 * time.Minute,
		AlertThreshold:          "ELEVATED",
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     16,
		SubscriberQueueSize:     8,
		PingInterval:            time.Second,
		IdleTimeout:             time.Minute,
	}

	clock := clockwork.NewRealClock()
	dispatcher := broadcast.NewDispatcher(clock, broadcast.Options{
		QueueSize:    cfg.SubscriberQueueSize,
		PingInterval: cfg.PingInterval,
		IdleTimeout:  cfg.IdleTimeout,
	})
	t.Cleanup(dispatcher.Stop)

	pipeline := ingest.New(deps.vitals, deps.patients, dispatcher, deps.cache,
		clock, cfg.MaxFutureSkew, cfg.AlertThresholdCategory())

	return NewServer(cfg, clock, Dependencies{
		Pipeline:   pipeline,
		Vitals:     deps.vitals,
		Alerts:     deps.alerts,
		Patients:   deps.patients,
		Cache:      deps.cache,
		Dispatcher: dispatcher,
	})
}
