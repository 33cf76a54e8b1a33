package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wisdom-muso/laso/internal/domain"
	"github.com/wisdom-muso/laso/internal/metrics"
)

const defaultHistoryWindow = 24 * time.Hour

type ingestRequest struct {
	PatientID   uuid.UUID `json:"patient_id"`
	Systolic    *int      `json:"systolic"`
	Diastolic   *int      `json:"diastolic"`
	HeartRate   *int      `json:"heart_rate"`
	Temperature *float64  `json:"temperature"`
	SpO2        *int      `json:"oxygen_saturation"`
	ObservedAt  time.Time `json:"observed_at"`
	Source      string    `json:"source"`
}

type ingestResponse struct {
	Reading *domain.Reading `json:"reading"`
	Alert   *domain.Alert   `json:"alert,omitempty"`
}

func (s *Server) handleIngest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.PatientID == uuid.Nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "patient_id is required"})
	}

	source := domain.SourceDevice
	if req.Source != "" {
		parsed, err := domain.ParseSource(req.Source)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid source"})
		}
		source = parsed
	}

	observedAt := req.ObservedAt
	if observedAt.IsZero() {
		observedAt = s.clock.Now().UTC()
	}

	reading, alert, err := s.pipeline.Ingest(c.Request().Context(), domain.NewReading{
		PatientID: req.PatientID,
		Metrics: domain.MetricSet{
			Systolic:    req.Systolic,
			Diastolic:   req.Diastolic,
			HeartRate:   req.HeartRate,
			Temperature: req.Temperature,
			SpO2:        req.SpO2,
		},
		ObservedAt: observedAt,
		Source:     source,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, ingestResponse{Reading: reading, Alert: alert})
}

type historyResponse struct {
	Readings []domain.Reading `json:"readings"`
	Alerts   []domain.Alert   `json:"alerts"`
}

func (s *Server) handleHistory(c echo.Context) error {
	ctx := c.Request().Context()

	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid patient id"})
	}

	caller, err := s.resolveCaller(ctx, c)
	if err != nil {
		return writeError(c, err)
	}
	if !domain.Allowed(caller, domain.PatientTopic(patientID)) {
		return writeError(c, domain.ErrForbidden)
	}

	exists, err := s.patients.Exists(ctx, patientID)
	if err != nil {
		return writeError(c, err)
	}
	if !exists {
		return writeError(c, domain.ErrPatientNotFound)
	}

	to := s.clock.Now().UTC()
	from := to.Add(-defaultHistoryWindow)
	if raw := c.QueryParam("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid from timestamp"})
		}
	}
	if raw := c.QueryParam("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid to timestamp"})
		}
	}
	if to.Before(from) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "to must not precede from"})
	}

	readings, alerts, err := s.vitals.History(ctx, patientID, from, to)
	if err != nil {
		return writeError(c, err)
	}
	if readings == nil {
		readings = []domain.Reading{}
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}

	return c.JSON(http.StatusOK, historyResponse{Readings: readings, Alerts: alerts})
}

func (s *Server) handleAcknowledgeAlert(c echo.Context) error {
	ctx := c.Request().Context()

	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid alert id"})
	}

	caller, err := s.resolveCaller(ctx, c)
	if err != nil {
		return writeError(c, err)
	}
	if !caller.Role.IsStaff() {
		return writeError(c, domain.ErrForbidden)
	}

	existing, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return writeError(c, err)
	}
	if !caller.Treats(existing.PatientID) {
		return writeError(c, domain.ErrUnauthorized)
	}

	alert, err := s.alerts.Acknowledge(ctx, alertID, caller.ID, s.clock.Now().UTC())
	if err != nil {
		return writeError(c, err)
	}

	metrics.AlertsAcknowledgedTotal.Inc()
	return c.JSON(http.StatusOK, alert)
}

func (s *Server) handleListOpenAlerts(c echo.Context) error {
	ctx := c.Request().Context()

	caller, err := s.resolveCaller(ctx, c)
	if err != nil {
		return writeError(c, err)
	}
	if !caller.Role.IsStaff() {
		return writeError(c, domain.ErrForbidden)
	}

	alerts, err := s.alerts.ListOpen(ctx)
	if err != nil {
		return writeError(c, err)
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}

	return c.JSON(http.StatusOK, map[string]any{"alerts": alerts})
}
