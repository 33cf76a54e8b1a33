package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no identity required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Ingest (devices and the simulator)
	s.echo.POST("/api/vitals", s.handleIngest)

	// Staff and patient API
	s.echo.GET("/api/patients/:id/history", s.handleHistory)
	s.echo.POST("/api/alerts/:id/ack", s.handleAcknowledgeAlert)
	s.echo.GET("/api/alerts/open", s.handleListOpenAlerts)

	// Live subscription endpoint
	s.echo.GET("/ws/vitals", s.handleWebSocket)
}
