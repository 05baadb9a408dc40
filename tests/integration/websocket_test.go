// Package integration contains integration tests for the sentinel trading engine.
//
// WebSocket Integration Tests
// These tests verify the telemetry stream end to end:
// - Connection establishment and upgrade
// - Broadcast of state transitions and order updates
// - Multiple concurrent subscribers
// - Graceful disconnect handling
package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"sentinel/internal/models"
	"sentinel/internal/telemetry"
)

// dialStream opens a telemetry websocket against the test server
func dialStream(t *testing.T, ts *TestServer) *gorillaws.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/ws/stream"
	conn, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", url, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForClients polls the hub until the expected client count is reached
func waitForClients(t *testing.T, ts *TestServer, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for ts.Hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connected clients, got %d", want, ts.Hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// readFrames reads one websocket message and splits the batched frames.
// The write pump drains its queue into a single message separated by newlines.
func readFrames(t *testing.T, conn *gorillaws.Conn) [][]byte {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read websocket message: %v", err)
	}
	return bytes.Split(payload, []byte{'\n'})
}

// awaitMessageType reads frames until one of the wanted type arrives
func awaitMessageType(t *testing.T, conn *gorillaws.Conn, want telemetry.MessageType) json.RawMessage {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, frame := range readFrames(t, conn) {
			var base telemetry.BaseMessage
			if err := json.Unmarshal(frame, &base); err != nil {
				t.Fatalf("malformed telemetry frame %q: %v", frame, err)
			}
			if base.Type == want {
				return json.RawMessage(frame)
			}
		}
	}
	t.Fatalf("no %q message arrived in time", want)
	return nil
}

// ============================================================
// Connection Tests
// ============================================================

func TestWebSocket_ConnectAndDisconnect_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	conn := dialStream(t, ts)
	waitForClients(t, ts, 1)

	conn.Close()
	waitForClients(t, ts, 0)
}

func TestWebSocket_MultipleClients_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	first := dialStream(t, ts)
	second := dialStream(t, ts)
	waitForClients(t, ts, 2)

	ts.Hub.BroadcastStateChange(models.StateActive, models.StatePaused, "operator")

	for _, conn := range []*gorillaws.Conn{first, second} {
		raw := awaitMessageType(t, conn, telemetry.MessageTypeStateChange)

		var msg telemetry.StateChangeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("failed to decode state change: %v", err)
		}
		if msg.To != models.StatePaused {
			t.Errorf("expected transition to PAUSED, got %q", msg.To)
		}
	}
}

// ============================================================
// Broadcast Tests
// ============================================================

func TestWebSocket_StateChangeOnPause_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	conn := dialStream(t, ts)
	waitForClients(t, ts, 1)

	// Переход через HTTP API должен дойти до ws-подписчика
	resp, err := http.Post(ts.Server.URL+"/api/v1/system/pause", "application/json", nil)
	if err != nil {
		t.Fatalf("pause request failed: %v", err)
	}
	resp.Body.Close()

	raw := awaitMessageType(t, conn, telemetry.MessageTypeStateChange)

	var msg telemetry.StateChangeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("failed to decode state change: %v", err)
	}
	if msg.From != models.StateActive || msg.To != models.StatePaused {
		t.Errorf("expected ACTIVE -> PAUSED, got %q -> %q", msg.From, msg.To)
	}
}

func TestWebSocket_OrderUpdates_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	conn := dialStream(t, ts)
	waitForClients(t, ts, 1)

	body := strings.NewReader(`{"symbol":"BTCUSDT","side":"buy","quantity":0.1,"strategy":"manual"}`)
	resp, err := http.Post(ts.Server.URL+"/api/v1/orders", "application/json", body)
	if err != nil {
		t.Fatalf("order request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	raw := awaitMessageType(t, conn, telemetry.MessageTypeOrderUpdate)

	var msg telemetry.OrderUpdateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("failed to decode order update: %v", err)
	}
	if msg.Data == nil || msg.Data.Symbol != "BTCUSDT" {
		t.Errorf("expected BTCUSDT order update, got %+v", msg.Data)
	}
}

func TestWebSocket_BreakerUpdateOnTrip_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	conn := dialStream(t, ts)
	waitForClients(t, ts, 1)

	ts.Hub.BroadcastBreakerUpdate(true, "HEADLINE", "two critical headlines")

	raw := awaitMessageType(t, conn, telemetry.MessageTypeBreakerUpdate)

	var msg telemetry.BreakerUpdateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("failed to decode breaker update: %v", err)
	}
	if !msg.Tripped {
		t.Error("expected tripped breaker update")
	}
	if msg.Cause != "HEADLINE" {
		t.Errorf("expected HEADLINE cause, got %q", msg.Cause)
	}
}

// ============================================================
// Slow Client Tests
// ============================================================

func TestWebSocket_BroadcastNeverBlocks_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	if ts == nil {
		return
	}
	defer ts.Cleanup()

	// Клиент подключается и перестаёт читать
	conn := dialStream(t, ts)
	waitForClients(t, ts, 1)
	_ = conn

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5000; i++ {
			ts.Hub.BroadcastStateChange(models.StateActive, models.StatePaused, "flood")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}
