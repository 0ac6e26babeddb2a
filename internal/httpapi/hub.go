package httpapi

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const refreshWriteTimeout = 5 * time.Second

// Hub fans the refresh signal out to connected websocket clients. The
// signal carries no payload; clients re-query the outbox endpoints.
type Hub struct {
	mu        sync.Mutex
	conns     map[*websocket.Conn]struct{}
	closed    bool
	closeOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{conns: map[*websocket.Conn]struct{}{}}
}

// Subscribe upgrades the request and parks it until the client
// disconnects or the hub shuts down.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("refresh socket accept failed: %v", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	// Clients never send application messages; CloseRead keeps the
	// connection's read side drained and tells us when it drops.
	ctx := conn.CloseRead(r.Context())
	<-ctx.Done()

	h.drop(conn)
	conn.Close(websocket.StatusNormalClosure, "")
}

// Refresh implements outbox.Notifier. A slow or dead client is
// disconnected rather than allowed to stall the commit path.
func (h *Hub) Refresh() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), refreshWriteTimeout)
		err := conn.Write(ctx, websocket.MessageText, []byte("refresh"))
		cancel()
		if err != nil {
			h.drop(conn)
			conn.Close(websocket.StatusPolicyViolation, "write timed out")
		}
	}
}

// ClientCount reports how many subscribers are connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		conns := make([]*websocket.Conn, 0, len(h.conns))
		for conn := range h.conns {
			conns = append(conns, conn)
		}
		h.conns = map[*websocket.Conn]struct{}{}
		h.mu.Unlock()

		for _, conn := range conns {
			conn.Close(websocket.StatusGoingAway, "shutting down")
		}
	})
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}
