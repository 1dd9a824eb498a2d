package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// WebSocket fan-out endpoint
	s.echo.GET("/ws/:client_id", s.handleWebSocket)

	// Static assets (collaborator layer; the core serves no markup)
	if s.config.StaticDir != "" {
		s.echo.Static("/", s.config.StaticDir)
	}
}
