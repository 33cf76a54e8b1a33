package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisdom-muso/laso/internal/domain"
)

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func withIdentity(req *http.Request, id uuid.UUID, role domain.Role) *http.Request {
	req.Header.Set(headerUserID, id.String())
	req.Header.Set(headerUserRole, string(role))
	return req
}

// --- ingest ---

func TestHandleIngest_NormalReading(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	patientID := uuid.New()
	body := fmt.Sprintf(`{"patient_id": %q, "systolic": 120, "diastolic": 80, "heart_rate": 72}`, patientID)
	req := jsonRequest(http.MethodPost, "/api/vitals", body)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	require.NoError(t, srv.handleIngest(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Reading)
	assert.Equal(t, patientID, resp.Reading.PatientID)
	assert.Equal(t, domain.CategoryNormal, resp.Reading.Assessment.Category)
	assert.Nil(t, resp.Alert)
}

func TestHandleIngest_CriticalReadingReturnsAlert(t *testing.T) {
	var savedAlert *domain.Alert
	vitals := &mockVitals{
		saveFn: func(_ context.Context, _ *domain.Reading, alert *domain.Alert) error {
			savedAlert = alert
			return nil
		},
	}
	srv := newTestServer(t, testDeps{vitals: vitals})

	body := fmt.Sprintf(`{"patient_id": %q, "systolic": 190, "diastolic": 95}`, uuid.New())
	req := jsonRequest(http.MethodPost, "/api/vitals", body)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	require.NoError(t, srv.handleIngest(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Alert)
	assert.Equal(t, domain.CategoryCritical, resp.Alert.Category)
	require.NotNil(t, savedAlert)
	assert.Equal(t, resp.Alert.ID, savedAlert.ID)
}

func TestHandleIngest_MalformedBody(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	req := jsonRequest(http.MethodPost, "/api/vitals", `{not json`)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	_ = srv.handleIngest(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIngest_MissingPatientID(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	req := jsonRequest(http.MethodPost, "/api/vitals", `{"systolic": 120}`)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	_ = srv.handleIngest(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIngest_EmptyMetrics(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	body := fmt.Sprintf(`{"patient_id": %q}`, uuid.New())
	req := jsonRequest(http.MethodPost, "/api/vitals", body)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	_ = srv.handleIngest(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIngest_UnknownPatient(t *testing.T) {
	patients := &mockPatients{
		existsFn: func(_ context.Context, _ uuid.UUID) (bool, error) { return false, nil },
	}
	srv := newTestServer(t, testDeps{patients: patients})

	body := fmt.Sprintf(`{"patient_id": %q, "systolic": 120}`, uuid.New())
	req := jsonRequest(http.MethodPost, "/api/vitals", body)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	_ = srv.handleIngest(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleIngest_ImplausibleTimestamp(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	body := fmt.Sprintf(`{"patient_id": %q, "systolic": 120, "observed_at": %q}`, uuid.New(), future)
	req := jsonRequest(http.MethodPost, "/api/vitals", body)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	_ = srv.handleIngest(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIngest_InvalidSource(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	body := fmt.Sprintf(`{"patient_id": %q, "systolic": 120, "source": "carrier-pigeon"}`, uuid.New())
	req := jsonRequest(http.MethodPost, "/api/vitals", body)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	_ = srv.handleIngest(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- history ---

func historyContext(srv *Server, patientID uuid.UUID, req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(patientID.String())
	return c, rec
}

func TestHandleHistory_RequiresIdentity(t *testing.T) {
	srv := newTestServer(t, testDeps{})
	patientID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/patients/"+patientID.String()+"/history", nil)
	c, rec := historyContext(srv, patientID, req)

	_ = srv.handleHistory(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleHistory_PatientCannotReadOthers(t *testing.T) {
	srv := newTestServer(t, testDeps{})
	patientID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/patients/"+patientID.String()+"/history", nil)
	withIdentity(req, uuid.New(), domain.RolePatient)
	c, rec := historyContext(srv, patientID, req)

	_ = srv.handleHistory(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleHistory_PatientReadsOwnHistory(t *testing.T) {
	patientID := uuid.New()
	vitals := &mockVitals{
		historyFn: func(_ context.Context, id uuid.UUID, _, _ time.Time) ([]domain.Reading, []domain.Alert, error) {
			assert.Equal(t, patientID, id)
			return []domain.Reading{{ID: uuid.New(), PatientID: id}}, nil, nil
		},
	}
	srv := newTestServer(t, testDeps{vitals: vitals})

	req := httptest.NewRequest(http.MethodGet, "/api/patients/"+patientID.String()+"/history", nil)
	withIdentity(req, patientID, domain.RolePatient)
	c, rec := historyContext(srv, patientID, req)

	require.NoError(t, srv.handleHistory(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Readings, 1)
	assert.NotNil(t, resp.Alerts)
}

func TestHandleHistory_TreatingStaffAllowed(t *testing.T) {
	patientID := uuid.New()
	staffID := uuid.New()
	patients := &mockPatients{
		treatedByFn: func(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
			assert.Equal(t, staffID, id)
			return []uuid.UUID{patientID}, nil
		},
	}
	srv := newTestServer(t, testDeps{patients: patients})

	req := httptest.NewRequest(http.MethodGet, "/api/patients/"+patientID.String()+"/history", nil)
	withIdentity(req, staffID, domain.RoleDoctor)
	c, rec := historyContext(srv, patientID, req)

	require.NoError(t, srv.handleHistory(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHistory_NonTreatingStaffForbidden(t *testing.T) {
	srv := newTestServer(t, testDeps{})
	patientID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/patients/"+patientID.String()+"/history", nil)
	withIdentity(req, uuid.New(), domain.RoleNurse)
	c, rec := historyContext(srv, patientID, req)

	_ = srv.handleHistory(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleHistory_UnknownPatient(t *testing.T) {
	patientID := uuid.New()
	patients := &mockPatients{
		existsFn: func(_ context.Context, _ uuid.UUID) (bool, error) { return false, nil },
	}
	srv := newTestServer(t, testDeps{patients: patients})

	req := httptest.NewRequest(http.MethodGet, "/api/patients/"+patientID.String()+"/history", nil)
	withIdentity(req, patientID, domain.RolePatient)
	c, rec := historyContext(srv, patientID, req)

	_ = srv.handleHistory(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHistory_InvalidWindow(t *testing.T) {
	srv := newTestServer(t, testDeps{})
	patientID := uuid.New()

	req := httptest.NewRequest(http.MethodGet,
		"/api/patients/"+patientID.String()+"/history?from=garbage", nil)
	withIdentity(req, patientID, domain.RolePatient)
	c, rec := historyContext(srv, patientID, req)

	_ = srv.handleHistory(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- alert acknowledgment ---

func TestHandleAcknowledgeAlert_Success(t *testing.T) {
	alertID := uuid.New()
	staffID := uuid.New()
	patientID := uuid.New()
	alerts := &mockAlerts{
		getFn: func(_ context.Context, id uuid.UUID) (*domain.Alert, error) {
			return &domain.Alert{ID: id, PatientID: patientID}, nil
		},
		ackFn: func(_ context.Context, id, staff uuid.UUID, at time.Time) (*domain.Alert, error) {
			assert.Equal(t, alertID, id)
			assert.Equal(t, staffID, staff)
			return &domain.Alert{ID: id, Acknowledged: true, AcknowledgedBy: &staff, AcknowledgedAt: &at}, nil
		},
	}
	patients := &mockPatients{
		treatedByFn: func(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
			return []uuid.UUID{patientID}, nil
		},
	}
	srv := newTestServer(t, testDeps{alerts: alerts, patients: patients})

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/"+alertID.String()+"/ack", nil)
	withIdentity(req, staffID, domain.RoleNurse)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(alertID.String())

	require.NoError(t, srv.handleAcknowledgeAlert(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp domain.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Acknowledged)
}

func TestHandleAcknowledgeAlert_PatientForbidden(t *testing.T) {
	srv := newTestServer(t, testDeps{})
	alertID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/"+alertID.String()+"/ack", nil)
	withIdentity(req, uuid.New(), domain.RolePatient)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(alertID.String())

	_ = srv.handleAcknowledgeAlert(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleAcknowledgeAlert_NotFound(t *testing.T) {
	srv := newTestServer(t, testDeps{})
	alertID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/"+alertID.String()+"/ack", nil)
	withIdentity(req, uuid.New(), domain.RoleDoctor)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(alertID.String())

	_ = srv.handleAcknowledgeAlert(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAcknowledgeAlert_NonTreatingStaff(t *testing.T) {
	alertID := uuid.New()
	acknowledged := false
	alerts := &mockAlerts{
		getFn: func(_ context.Context, id uuid.UUID) (*domain.Alert, error) {
			return &domain.Alert{ID: id, PatientID: uuid.New()}, nil
		},
		ackFn: func(_ context.Context, id, staff uuid.UUID, at time.Time) (*domain.Alert, error) {
			acknowledged = true
			return &domain.Alert{ID: id, Acknowledged: true, AcknowledgedBy: &staff, AcknowledgedAt: &at}, nil
		},
	}
	srv := newTestServer(t, testDeps{alerts: alerts})

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/"+alertID.String()+"/ack", nil)
	withIdentity(req, uuid.New(), domain.RoleDoctor)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(alertID.String())

	_ = srv.handleAcknowledgeAlert(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, acknowledged)
}

func TestHandleAcknowledgeAlert_AlreadyAcknowledged(t *testing.T) {
	patientID := uuid.New()
	alerts := &mockAlerts{
		getFn: func(_ context.Context, id uuid.UUID) (*domain.Alert, error) {
			return &domain.Alert{ID: id, PatientID: patientID, Acknowledged: true}, nil
		},
		ackFn: func(_ context.Context, id, _ uuid.UUID, _ time.Time) (*domain.Alert, error) {
			return &domain.Alert{ID: id, Acknowledged: true}, domain.ErrAlreadyAcknowledged
		},
	}
	patients := &mockPatients{
		treatedByFn: func(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
			return []uuid.UUID{patientID}, nil
		},
	}
	srv := newTestServer(t, testDeps{alerts: alerts, patients: patients})
	alertID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/"+alertID.String()+"/ack", nil)
	withIdentity(req, uuid.New(), domain.RoleDoctor)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(alertID.String())

	_ = srv.handleAcknowledgeAlert(c)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// --- open alerts ---

func TestHandleListOpenAlerts_StaffOnly(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/open", nil)
	withIdentity(req, uuid.New(), domain.RolePatient)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	_ = srv.handleListOpenAlerts(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleListOpenAlerts_Success(t *testing.T) {
	alerts := &mockAlerts{
		listOpenFn: func(_ context.Context) ([]domain.Alert, error) {
			return []domain.Alert{{ID: uuid.New()}, {ID: uuid.New()}}, nil
		},
	}
	srv := newTestServer(t, testDeps{alerts: alerts})

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/open", nil)
	withIdentity(req, uuid.New(), domain.RoleNurse)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	require.NoError(t, srv.handleListOpenAlerts(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Alerts []domain.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Alerts, 2)
}

// --- health ---

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	require.NoError(t, srv.handleLiveness(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type failingPinger struct{ err error }

func (f failingPinger) Ping(context.Context) error { return f.err }

func TestHandleReadiness_FailingDependency(t *testing.T) {
	srv := newTestServer(t, testDeps{})
	srv.postgresHealth = failingPinger{err: fmt.Errorf("connection refused")}

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	require.NoError(t, srv.handleReadiness(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres")
}

func TestHandleReadiness_HealthyWithoutRedis(t *testing.T) {
	srv := newTestServer(t, testDeps{})
	srv.postgresHealth = failingPinger{err: nil}

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	require.NoError(t, srv.handleReadiness(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
