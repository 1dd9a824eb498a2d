package hub

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"chatrelay/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second  // Actor command timeout
	stopTimeout    = 10 * time.Second // Graceful shutdown timeout
)

// member is one registered connection. The hub holds a non-owning reference;
// the endpoint read loop that accepted the connection owns its lifecycle.
type member struct {
	clientID string
	uid      uuid.UUID
	writer   *clientWriter
}

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	clientID     string
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseHubCmd
	connection *websocket.Conn
}

type broadcastCmd struct {
	baseHubCmd
	data []byte
}

type clientCountCmd struct {
	baseHubCmd
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub is the connection registry: a single goroutine owning the membership map,
// fed through a command channel. Broadcast iteration and membership mutation
// are serialized by construction, so a broadcast never observes a half-added
// or half-removed member.
type Hub struct {
	cmdCh          chan hubCmd
	clock          clockwork.Clock
	members        map[*websocket.Conn]*member
	done           chan struct{}
	stopTimeout    time.Duration
	maxConnections int
	sendBuffer     int
}

// New creates a hub and starts its actor goroutine.
// maxConnections caps registry membership (prevents resource exhaustion).
// sendBuffer bounds each member's outbound queue; a member whose queue is full
// during a broadcast sweep is evicted rather than stalling the others.
func New(clock clockwork.Clock, maxConnections, sendBuffer int) *Hub {
	h := &Hub{
		cmdCh:          make(chan hubCmd, 256),
		clock:          clock,
		members:        make(map[*websocket.Conn]*member),
		done:           make(chan struct{}),
		stopTimeout:    stopTimeout,
		maxConnections: maxConnections,
		sendBuffer:     sendBuffer,
	}
	go h.run()
	return h
}

// Register adds a connection to the registry under the given client ID.
// Duplicate client IDs are permitted; they label distinct members.
// Returns an error only if the registry is at capacity.
func (h *Hub) Register(clientID string, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- registerCmd{clientID: clientID, connection: conn, errorChannel: errCh}

	// Use timeout to prevent blocking forever if the hub is stuck
	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a connection from the registry. Idempotent: removing an
// absent connection is a no-op, which covers the race between explicit close
// detection and eviction after a failed send.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.cmdCh <- unregisterCmd{connection: conn}
}

// Broadcast delivers data to every currently registered connection's send
// queue. Per-member failures are isolated: a full queue marks that member for
// eviction after the sweep and never prevents delivery to the others.
// Broadcasting with zero members registered is a no-op.
func (h *Hub) Broadcast(data []byte) {
	h.cmdCh <- broadcastCmd{data: data}
}

// ClientCount returns the number of registered connections.
// Returns -1 if the command times out.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- clientCountCmd{replyChannel: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the hub, sending close frames to all members.
// Blocks until the actor goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timeout := h.clock.NewTimer(h.stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded, forcing exit", "timeout", h.stopTimeout)
		metrics.HubStopTimeoutsTotal.Inc()
		close(h.done)
		slog.Error("Hub goroutine may have leaked", "active_connections", len(h.members))
	}
}

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.closeAllMembers("hub panic")
		}
	}()

	defer close(h.done)

	// Track command channel depth every second
	depthTicker := h.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			metrics.HubCommandChannelDepth.Set(float64(depth))

			if depth > 200 { // 80% of 256
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(h.cmdCh))
			}

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case unregisterCmd:
				h.handleUnregister(c)
			case broadcastCmd:
				h.handleBroadcast(c)
			case clientCountCmd:
				c.replyChannel <- len(h.members)
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	if _, exists := h.members[c.connection]; exists {
		// Same transport registered twice is a no-op, not a fault
		c.errorChannel <- nil
		return
	}

	if len(h.members) >= h.maxConnections {
		slog.Warn("Rejecting client: max connections reached", "client_id", c.clientID, "max_connections", h.maxConnections)
		c.connection.Close()
		c.errorChannel <- fmt.Errorf("max connections (%d) reached", h.maxConnections)
		return
	}

	m := &member{
		clientID: c.clientID,
		uid:      uuid.New(),
		writer:   newClientWriter(c.connection, h.clock, h.sendBuffer),
	}
	h.members[c.connection] = m

	metrics.HubActiveConnections.Set(float64(len(h.members)))

	slog.Debug("Client registered", "client_id", m.clientID, "connection_uuid", m.uid.String(), "total_connections", len(h.members))
	c.errorChannel <- nil
}

func (h *Hub) handleUnregister(c unregisterCmd) {
	m, exists := h.members[c.connection]
	if !exists {
		return
	}

	m.writer.stop()
	delete(h.members, c.connection)

	metrics.HubActiveConnections.Set(float64(len(h.members)))

	slog.Debug("Client unregistered", "client_id", m.clientID, "connection_uuid", m.uid.String(), "remaining_connections", len(h.members))
}

func (h *Hub) handleBroadcast(c broadcastCmd) {
	metrics.HubBroadcastsTotal.Inc()

	if len(h.members) == 0 {
		return
	}

	var slow []*websocket.Conn
	for conn, m := range h.members {
		select {
		case m.writer.sendChannel <- c.data:
			metrics.HubMessagesDeliveredTotal.Inc()
		default:
			// Send buffer full: treat as an implicit disconnect, resolved
			// after the sweep so the remaining members still get the message
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		m := h.members[conn]
		slog.Warn("Evicting slow client", "client_id", m.clientID, "connection_uuid", m.uid.String())
		metrics.HubSlowClientsEvicted.Inc()
		h.handleUnregister(unregisterCmd{connection: conn})
	}
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "active_connections", len(h.members))
	h.closeAllMembers("Server shutting down")
	slog.Info("Hub shutdown complete")
}

// closeAllMembers closes all member connections with the given reason.
// Used during panic recovery and graceful shutdown.
func (h *Hub) closeAllMembers(reason string) {
	for conn, m := range h.members {
		m.writer.stopGraceful(reason)
		delete(h.members, conn)
	}
	metrics.HubActiveConnections.Set(0)
}
