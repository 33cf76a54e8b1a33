// Package server exposes the HTTP and WebSocket surface: vitals ingest,
// alert acknowledgment, history queries, and the live subscription endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/wisdom-muso/laso/internal/broadcast"
	"github.com/wisdom-muso/laso/internal/config"
	"github.com/wisdom-muso/laso/internal/domain"
	"github.com/wisdom-muso/laso/internal/ingest"
)

// New connections per IP: sustained rate and burst.
const (
	connectionsPerSecond = 10.0
	connectionBurst      = 20
)

type pingable interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo       *echo.Echo
	config     *config.Config
	clock      clockwork.Clock
	startTime  time.Time
	pipeline   *ingest.Pipeline
	vitals     domain.VitalsStore
	alerts     domain.AlertRepository
	patients   domain.PatientRepository
	cache      domain.LatestReadingCache
	dispatcher *broadcast.Dispatcher
	limits     *ConnectionLimits

	postgresHealth pingable
	redisHealth    pingable
}

type Dependencies struct {
	Pipeline   *ingest.Pipeline
	Vitals     domain.VitalsStore
	Alerts     domain.AlertRepository
	Patients   domain.PatientRepository
	Cache      domain.LatestReadingCache
	Dispatcher *broadcast.Dispatcher

	// Health check targets; RedisHealth may be nil when Redis is not configured.
	PostgresHealth pingable
	RedisHealth    pingable
}

func NewServer(cfg *config.Config, clock clockwork.Clock, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:       e,
		config:     cfg,
		clock:      clock,
		startTime:  clock.Now(),
		pipeline:   deps.Pipeline,
		vitals:     deps.Vitals,
		alerts:     deps.Alerts,
		patients:   deps.Patients,
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		limits: NewConnectionLimits(
			int64(cfg.MaxWebSocketConnections),
			cfg.MaxConnectionsPerIP,
			connectionsPerSecond,
			connectionBurst,
		),
		postgresHealth: deps.PostgresHealth,
		redisHealth:    deps.RedisHealth,
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
