package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"chatrelay/internal/hub"
	"chatrelay/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Clients embed the widget from arbitrary origins
	},
}

// handleWebSocket runs one connection's lifecycle: acquire a connection slot,
// upgrade, register, then pump inbound frames into the hub until the transport
// closes. Every inbound frame is rebroadcast to all registered connections,
// the sender included. On disconnect the remaining clients get a departure
// notice; the hub has already dropped the departing member at that point.
func (s *Server) handleWebSocket(c echo.Context) error {
	clientID := c.Param("client_id")
	if clientID == "" {
		return c.String(http.StatusBadRequest, "Missing client ID")
	}

	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		slog.Warn("Connection rejected", "client_id", clientID, "ip", ip, "reason", string(reason))
		metrics.ConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
		return c.String(http.StatusTooManyRequests, "Too many connections")
	}
	defer s.limits.Release(ip)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	if err := s.hub.Register(clientID, conn); err != nil {
		slog.Warn("Failed to register with hub", "client_id", clientID, "error", err)
		return nil
	}

	// Read pump — blocks until the connection closes. A read error is local
	// to this connection and only ends this loop.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.hub.Broadcast(hub.ChatLine(clientID, string(data)))
	}

	// Unregister before the departure notice: the hub processes commands in
	// order, so the departing connection never receives its own notice.
	// Unregister is idempotent in case the hub already evicted this member.
	s.hub.Unregister(conn)
	s.hub.Broadcast(hub.DepartureNotice(clientID))

	return nil //nolint:nilerr // ReadMessage err is block-scoped; outer err is nil
}
