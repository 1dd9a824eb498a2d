package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/config"
	"chatrelay/internal/hub"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "test",
		Port:                    "0",
		LogLevel:                "info",
		LogFormat:               "text",
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     100,
		ConnectionRate:          1000,
		ConnectionBurst:         1000,
		ClientSendBuffer:        16,
	}
}

// testServer starts the full HTTP surface and returns a dial function for the
// fan-out endpoint.
func testServer(t *testing.T, cfg *config.Config) (*httptest.Server, *hub.Hub, func(clientID string) (*ws.Conn, error)) {
	t.Helper()

	h := hub.New(clockwork.NewRealClock(), cfg.MaxWebSocketConnections, cfg.ClientSendBuffer)
	t.Cleanup(func() { h.Stop() })

	srv := NewServer(cfg, h)
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(func() { ts.Close() })

	dial := func(clientID string) (*ws.Conn, error) {
		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + clientID
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
		}
		return conn, err
	}

	return ts, h, dial
}

// waitForClients polls until the hub reports the expected member count.
func waitForClients(h *hub.Hub, expected int) bool {
	for n := 0; n < 500; n++ {
		if h.ClientCount() == expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func readText(t *testing.T, conn *ws.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestHandleWebSocket_FanOutIncludesSender(t *testing.T) {
	_, h, dial := testServer(t, testConfig())

	conn1, err := dial("1")
	require.NoError(t, err)
	conn2, err := dial("2")
	require.NoError(t, err)
	require.True(t, waitForClients(h, 2))

	require.NoError(t, conn1.WriteMessage(ws.TextMessage, []byte("hi")))

	assert.Equal(t, "Client #1: hi", readText(t, conn1))
	assert.Equal(t, "Client #1: hi", readText(t, conn2))
}

func TestHandleWebSocket_DepartureNotice(t *testing.T) {
	_, h, dial := testServer(t, testConfig())

	conn1, err := dial("1")
	require.NoError(t, err)
	conn2, err := dial("2")
	require.NoError(t, err)
	conn3, err := dial("3")
	require.NoError(t, err)
	require.True(t, waitForClients(h, 3))

	require.NoError(t, conn1.WriteMessage(ws.TextMessage, []byte("ping")))
	for _, conn := range []*ws.Conn{conn1, conn2, conn3} {
		assert.Equal(t, "Client #1: ping", readText(t, conn))
	}

	require.NoError(t, conn2.Close())

	assert.Equal(t, "Client #2 has left the chat", readText(t, conn1))
	assert.Equal(t, "Client #2 has left the chat", readText(t, conn3))
}

func TestHandleWebSocket_RejectsOverPerIPLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnectionsPerIP = 1
	_, _, dial := testServer(t, cfg)

	_, err := dial("1")
	require.NoError(t, err)

	_, err = dial("2")
	require.Error(t, err, "second connection from the same IP should be rejected")
}

func TestHandleLiveness(t *testing.T) {
	ts, _, _ := testServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/health/live")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleReadiness(t *testing.T) {
	ts, h, dial := testServer(t, testConfig())

	_, err := dial("1")
	require.NoError(t, err)
	require.True(t, waitForClients(h, 1))

	resp, err := http.Get(ts.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, float64(1), body["connections"])
}

func TestHandleVersion(t *testing.T) {
	ts, _, _ := testServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["version"])
	assert.NotEmpty(t, body["go_version"])
}

func TestHandleMetrics(t *testing.T) {
	ts, _, _ := testServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
}
