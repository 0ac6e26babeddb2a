package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const emptyPipelineResponse = `{"results":[{"type":"ok","response":{"result":{"rows":[]}}}]}`

func TestHTTPGatewayExecuteDecodesRows(t *testing.T) {
	var gotAuth string
	var gotReq pipelineRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/pipeline" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"results":[{"type":"ok","response":{"result":{"rows":[[{"type":"integer","value":"42"}]]}}}]}`))
	}))
	defer server.Close()

	gw := NewHTTPGateway(HTTPGatewayOptions{BaseURL: server.URL, AuthToken: "tok"})
	result, err := gw.Execute(context.Background(), Statement{
		SQL:  "SELECT id FROM items WHERE url = ? LIMIT 1",
		Args: []any{"https://a.example"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	id, ok := result.FirstID()
	if !ok || id != 42 {
		t.Fatalf("expected id 42, got (%d, %v)", id, ok)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("missing bearer token, got %q", gotAuth)
	}
	// One execute step plus the trailing close.
	if len(gotReq.Requests) != 2 || gotReq.Requests[0].Type != "execute" || gotReq.Requests[1].Type != "close" {
		t.Fatalf("unexpected pipeline steps: %+v", gotReq.Requests)
	}
	args := gotReq.Requests[0].Stmt.Args
	if len(args) != 1 || args[0].Type != "text" || args[0].Value != "https://a.example" {
		t.Fatalf("unexpected encoded args: %+v", args)
	}
}

func TestHTTPGatewayRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(emptyPipelineResponse))
	}))
	defer server.Close()

	gw := NewHTTPGateway(HTTPGatewayOptions{
		BaseURL:   server.URL,
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
	})
	if _, err := gw.Execute(context.Background(), Statement{SQL: "SELECT 1"}); err != nil {
		t.Fatalf("execute should succeed after retry: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestHTTPGatewayDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	gw := NewHTTPGateway(HTTPGatewayOptions{BaseURL: server.URL, BaseDelay: time.Millisecond})
	if _, err := gw.Execute(context.Background(), Statement{SQL: "SELECT 1"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("client errors must not be retried, calls=%d", calls)
	}
}

func TestHTTPGatewaySurfacesStatementErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"type":"error","error":{"message":"no such table: items"}}]}`))
	}))
	defer server.Close()

	gw := NewHTTPGateway(HTTPGatewayOptions{BaseURL: server.URL})
	_, err := gw.Execute(context.Background(), Statement{SQL: "SELECT id FROM items"})
	if err == nil {
		t.Fatal("expected statement error")
	}
}

func TestHTTPGatewayBatchWrapsInTransaction(t *testing.T) {
	var gotReq pipelineRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	gw := NewHTTPGateway(HTTPGatewayOptions{BaseURL: server.URL})
	err := gw.Batch(context.Background(), []Statement{
		{SQL: "INSERT INTO item_tags (item_id, tag_id) VALUES (?, ?)", Args: []any{int64(1), int64(2)}},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	// BEGIN, statement, COMMIT, close.
	if len(gotReq.Requests) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(gotReq.Requests))
	}
	if gotReq.Requests[0].Stmt.SQL != "BEGIN" || gotReq.Requests[2].Stmt.SQL != "COMMIT" {
		t.Fatalf("batch must be wrapped in BEGIN/COMMIT: %+v", gotReq.Requests)
	}
}
