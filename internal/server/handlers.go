package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wisdom-muso/laso/internal/domain"
)

// Identity headers set by the authenticating reverse proxy. The proxy owns
// authentication; this service only resolves the forwarded identity into a
// caller and applies the capability policy.
const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// resolveCaller turns the forwarded identity headers into a Caller. For staff
// roles the treated-patient set is loaded up front so later capability checks
// need no I/O.
func (s *Server) resolveCaller(ctx context.Context, c echo.Context) (domain.Caller, error) {
	rawID := c.Request().Header.Get(headerUserID)
	rawRole := c.Request().Header.Get(headerUserRole)
	if rawID == "" || rawRole == "" {
		return domain.Caller{}, domain.ErrUnauthorized
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return domain.Caller{}, domain.ErrUnauthorized
	}
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		return domain.Caller{}, domain.ErrUnauthorized
	}

	caller := domain.Caller{ID: id, Role: role}
	if role.IsStaff() {
		treated, err := s.patients.TreatedBy(ctx, id)
		if err != nil {
			return domain.Caller{}, err
		}
		caller.Treated = make(map[uuid.UUID]struct{}, len(treated))
		for _, patientID := range treated {
			caller.Treated[patientID] = struct{}{}
		}
	}
	return caller, nil
}

// writeError maps domain errors onto HTTP statuses. Unrecognized errors are
// logged and surface as a plain 500.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	case errors.Is(err, domain.ErrForbidden):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, domain.ErrUnknownPatient), errors.Is(err, domain.ErrPatientNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "patient not found"})
	case errors.Is(err, domain.ErrAlertNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "alert not found"})
	case errors.Is(err, domain.ErrAlreadyAcknowledged):
		return c.JSON(http.StatusConflict, map[string]string{"error": "alert already acknowledged"})
	case errors.Is(err, domain.ErrEmptyReading):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "reading carries no metrics"})
	case errors.Is(err, domain.ErrImplausibleTimestamp):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "observation timestamp is implausibly far in the future"})
	default:
		slog.Error("Request failed", "path", c.Request().URL.Path, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
