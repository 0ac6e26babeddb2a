package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clients, have %d", want, hub.ClientCount())
}

func TestHubBroadcastsRefresh(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	server := httptest.NewServer(http.HandlerFunc(hub.Subscribe))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+server.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	waitForClients(t, hub, 1)

	hub.Refresh()

	msgType, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msgType != websocket.MessageText || string(payload) != "refresh" {
		t.Fatalf("unexpected frame: type=%v payload=%q", msgType, payload)
	}
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	server := httptest.NewServer(http.HandlerFunc(hub.Subscribe))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+server.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForClients(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "")
	waitForClients(t, hub, 0)

	// Broadcasting with nobody connected is a no-op.
	hub.Refresh()
}
