package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/kuchi/pkg/events"
)

func dialFeed(t *testing.T, f *Feed, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	return websocket.DefaultDialer.Dial(u, header)
}

func waitForClients(t *testing.T, f *Feed, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for f.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count never reached %d, got %d", want, f.ClientCount())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestFeedStreamsEventsToClient(t *testing.T) {
	bus := events.NewBus(16)
	defer bus.Close()
	f := NewFeed(Config{}, bus)
	go f.fanout(bus.Subscribe())

	conn, _, err := dialFeed(t, f, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, f, 1)

	bus.Publish(events.Event{
		Kind:      events.KindMouthUpdate,
		Time:      time.Now(),
		State:     "speaking",
		SessionID: "session-1",
	})

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["kind"] != "mouth_update" {
		t.Fatalf("expected mouth_update, got %v", payload["kind"])
	}
	if payload["session_id"] != "session-1" {
		t.Fatalf("expected session-1, got %v", payload["session_id"])
	}
}

func TestFeedRejectsDisallowedOrigin(t *testing.T) {
	bus := events.NewBus(16)
	defer bus.Close()
	f := NewFeed(Config{
		AllowAnyOrigin: false,
		AllowedOrigins: []string{"allowed.example.com"},
	}, bus)

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := dialFeed(t, f, header)
	if err == nil {
		t.Fatal("expected handshake rejection")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	header.Set("Origin", "https://allowed.example.com")
	conn, _, err := dialFeed(t, f, header)
	if err != nil {
		t.Fatalf("allowed origin refused: %v", err)
	}
	conn.Close()
}

func TestFeedDropsStalledClient(t *testing.T) {
	bus := events.NewBus(16)
	defer bus.Close()
	f := NewFeed(Config{}, bus)

	conn, _, err := dialFeed(t, f, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, f, 1)

	// A client whose send buffer is full fails to enqueue; the next fanout
	// detaches it instead of stalling the pipeline.
	f.mu.Lock()
	var c *client
	for _, cl := range f.clients {
		c = cl
	}
	f.mu.Unlock()
	c.closed.Store(true)

	sub := bus.Subscribe()
	go f.fanout(sub)
	bus.Publish(events.Event{Kind: events.KindMouthUpdate, Time: time.Now()})
	waitForClients(t, f, 0)
}

func TestFeedStopClosesClients(t *testing.T) {
	bus := events.NewBus(16)
	defer bus.Close()
	f := NewFeed(Config{}, bus)

	conn, _, err := dialFeed(t, f, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, f, 1)

	if err := f.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if f.ClientCount() != 0 {
		t.Fatalf("expected no clients after stop, got %d", f.ClientCount())
	}

	// A draining feed refuses new upgrades.
	_, resp, err := dialFeed(t, f, nil)
	if err == nil {
		t.Fatal("expected refusal while draining")
	}
	if resp != nil && resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}
