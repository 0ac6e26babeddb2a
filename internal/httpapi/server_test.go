package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/webstash/webstash/internal/capture"
	"github.com/webstash/webstash/internal/outbox"
	"github.com/webstash/webstash/internal/remote"
)

type stubProvider struct {
	ok bool
}

func (p stubProvider) Gateway() (remote.Gateway, bool) { return nil, p.ok }

type stubStatus struct {
	status outbox.Status
}

func (s stubStatus) Status() outbox.Status { return s.status }

func newTestServer(t *testing.T, cfg ServerConfig) (*Server, *outbox.Outbox) {
	t.Helper()
	ob, err := outbox.NewOutbox(outbox.NewMemoryQueueStore())
	if err != nil {
		t.Fatalf("NewOutbox: %v", err)
	}
	// The guard sees no gateway, so duplicate checks are local-only.
	guard := outbox.NewGuard(ob, stubProvider{ok: false})
	svc, err := capture.NewService(capture.ServiceOptions{
		Outbox:    ob,
		Gateways:  stubProvider{ok: true},
		Guard:     guard,
		Extractor: capture.NewExtractor(""),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewServerWithConfig(svc, stubStatus{status: outbox.Status{QueueDepth: 0, GatewayConfigured: true}}, nil, cfg), ob
}

func doJSON(t *testing.T, server *Server, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	rec := doJSON(t, server, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
}

func TestCaptureQueuesIntent(t *testing.T) {
	server, ob := newTestServer(t, ServerConfig{})
	rec := doJSON(t, server, http.MethodPost, "/v1/capture", "", map[string]string{"url": "https://a.example"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("capture returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "queued" || resp["correlationId"] == "" {
		t.Fatalf("unexpected response: %v", resp)
	}
	if depth, _ := ob.Len(); depth != 1 {
		t.Fatalf("intent not queued, depth=%d", depth)
	}
}

func TestCaptureDuplicateReturnsConflict(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	if rec := doJSON(t, server, http.MethodPost, "/v1/capture", "", map[string]string{"url": "https://a.example"}); rec.Code != http.StatusAccepted {
		t.Fatalf("first capture returned %d", rec.Code)
	}
	rec := doJSON(t, server, http.MethodPost, "/v1/capture", "", map[string]string{"url": "https://a.example"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate capture returned %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "duplicate") {
		t.Fatalf("expected duplicate error code, got %s", rec.Body.String())
	}
}

func TestCaptureRejectsMissingURL(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	rec := doJSON(t, server, http.MethodPost, "/v1/capture", "", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEnqueuePreExtractedIntent(t *testing.T) {
	server, ob := newTestServer(t, ServerConfig{})
	rec := doJSON(t, server, http.MethodPost, "/v1/outbox/intents", "", map[string]string{
		"title":       "Example",
		"url":         "https://a.example",
		"summaryText": "a summary",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue returned %d: %s", rec.Code, rec.Body.String())
	}
	intents, _ := ob.Snapshot()
	if len(intents) != 1 || intents[0].Title != "Example" || intents[0].Summary != "a summary" {
		t.Fatalf("unexpected queue: %+v", intents)
	}
}

func TestListPendingReturnsFIFO(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	for _, url := range []string{"https://a.example", "https://b.example"} {
		if rec := doJSON(t, server, http.MethodPost, "/v1/capture", "", map[string]string{"url": url}); rec.Code != http.StatusAccepted {
			t.Fatalf("capture %s returned %d", url, rec.Code)
		}
	}
	rec := doJSON(t, server, http.MethodGet, "/v1/outbox", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d", rec.Code)
	}
	var resp struct {
		Intents []outbox.Intent `json:"intents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Intents) != 2 || resp.Intents[0].URL != "https://a.example" || resp.Intents[1].URL != "https://b.example" {
		t.Fatalf("unexpected order: %+v", resp.Intents)
	}
}

func TestCancelRemovesPendingIntent(t *testing.T) {
	server, ob := newTestServer(t, ServerConfig{})
	if rec := doJSON(t, server, http.MethodPost, "/v1/capture", "", map[string]string{"url": "https://a.example"}); rec.Code != http.StatusAccepted {
		t.Fatalf("capture returned %d", rec.Code)
	}
	rec := doJSON(t, server, http.MethodPost, "/v1/outbox/cancel", "", map[string]string{"url": "https://a.example"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp["removed"] {
		t.Fatal("expected removed=true")
	}
	if depth, _ := ob.Len(); depth != 0 {
		t.Fatalf("intent still queued, depth=%d", depth)
	}
}

func TestStatusEndpoint(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{StoreKind: "memory"})
	rec := doJSON(t, server, http.MethodGet, "/v1/outbox/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status returned %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["storeKind"] != "memory" || resp["gatewayConfigured"] != true {
		t.Fatalf("unexpected status: %v", resp)
	}
}

func TestBearerTokenEnforced(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{APIToken: "secret"})

	rec := doJSON(t, server, http.MethodGet, "/v1/outbox", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token returned %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/outbox", "wrong", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token returned %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/outbox", "secret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token returned %d", rec.Code)
	}
	// Health stays open for probes.
	rec = doJSON(t, server, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health with auth enabled returned %d", rec.Code)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	rec := doJSON(t, server, http.MethodGet, "/v1/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	// Wrong method on a known path.
	rec = doJSON(t, server, http.MethodDelete, "/v1/outbox", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for wrong method, got %d", rec.Code)
	}
}

func TestBodySizeLimit(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{MaxBodyBytes: 64})
	rec := doJSON(t, server, http.MethodPost, "/v1/capture", "", map[string]string{
		"url": "https://a.example/" + strings.Repeat("x", 256),
	})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestDashboardRendersPending(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	if rec := doJSON(t, server, http.MethodPost, "/v1/outbox/intents", "", map[string]string{
		"title":       "Example",
		"url":         "https://a.example",
		"summaryText": "some **bold** text",
	}); rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue returned %d", rec.Code)
	}

	rec := doJSON(t, server, http.MethodGet, "/dashboard", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard returned %d", rec.Code)
	}
	html := rec.Body.String()
	if !strings.Contains(html, "https://a.example") {
		t.Fatal("dashboard missing the pending URL")
	}
	if !strings.Contains(html, "<strong>bold</strong>") {
		t.Fatal("summary markdown was not rendered")
	}
}
