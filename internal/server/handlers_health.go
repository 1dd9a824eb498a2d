package server

import (
	"time"

	"github.com/labstack/echo/v4"

	"chatrelay/internal/version"
)

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := time.Since(s.startTime).Seconds()
	return c.JSON(200, map[string]any{
		"status": "ok",
		"uptime": uptime,
	})
}

// handleReadiness reports whether the instance can accept new connections.
// The hub is the only dependency; a stuck hub or a full registry means
// new connections would be rejected anyway.
func (s *Server) handleReadiness(c echo.Context) error {
	count := s.hub.ClientCount()
	if count < 0 {
		return c.JSON(503, map[string]any{
			"status":       "unhealthy",
			"failed_check": "hub",
			"error":        "hub did not respond",
		})
	}

	if s.limits.Global().Current() >= s.limits.Global().Max() {
		return c.JSON(503, map[string]any{
			"status":       "unhealthy",
			"failed_check": "capacity",
			"error":        "connection capacity exhausted",
		})
	}

	return c.JSON(200, map[string]any{
		"status":      "ready",
		"connections": count,
	})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(200, version.Get())
}
