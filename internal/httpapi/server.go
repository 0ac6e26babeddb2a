package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/webstash/webstash/internal/capture"
	"github.com/webstash/webstash/internal/outbox"
)

type ServerConfig struct {
	APIToken     string
	StoreKind    string
	MaxBodyBytes int64
}

// StatusReporter exposes the drain engine's view for the status
// endpoint.
type StatusReporter interface {
	Status() outbox.Status
}

type Server struct {
	svc    *capture.Service
	status StatusReporter
	hub    *Hub
	cfg    ServerConfig
}

func NewServer(svc *capture.Service, status StatusReporter, hub *Hub) *Server {
	return NewServerWithConfig(svc, status, hub, ServerConfig{})
}

func NewServerWithConfig(svc *capture.Service, status StatusReporter, hub *Hub, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.StoreKind == "" {
		cfg.StoreKind = "file"
	}
	return &Server{
		svc:    svc,
		status: status,
		hub:    hub,
		cfg:    cfg,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	correlationID := getCorrelationID(r)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	if authErr := authorizeBearer(r.Header.Get("Authorization"), s.cfg.APIToken); authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message, correlationID)
		return
	}

	switch {
	case r.URL.Path == "/v1/capture" && r.Method == http.MethodPost:
		s.handleCapture(w, r, correlationID)
	case r.URL.Path == "/v1/outbox/intents" && r.Method == http.MethodPost:
		s.handleEnqueue(w, r, correlationID)
	case r.URL.Path == "/v1/outbox" && r.Method == http.MethodGet:
		s.handlePending(w, r, correlationID)
	case r.URL.Path == "/v1/outbox/cancel" && r.Method == http.MethodPost:
		s.handleCancel(w, r, correlationID)
	case r.URL.Path == "/v1/outbox/status" && r.Method == http.MethodGet:
		s.handleStatus(w, r, correlationID)
	case r.URL.Path == "/v1/refresh/ws" && r.Method == http.MethodGet:
		s.handleRefreshSocket(w, r, correlationID)
	case r.URL.Path == "/dashboard" && r.Method == http.MethodGet:
		s.handleDashboard(w, r, correlationID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
	}
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request, correlationID string) {
	var req struct {
		URL string `json:"url"`
	}
	if !s.decodeJSONBody(w, r, correlationID, &req) {
		return
	}
	receipt, err := s.svc.Capture(r.Context(), req.URL)
	if err != nil {
		writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":        "queued",
		"correlationId": receipt.CorrelationID,
	})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request, correlationID string) {
	var req struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Summary string `json:"summaryText"`
	}
	if !s.decodeJSONBody(w, r, correlationID, &req) {
		return
	}
	receipt, err := s.svc.Enqueue(r.Context(), outbox.Intent{
		Title:   req.Title,
		URL:     req.URL,
		Summary: req.Summary,
	})
	if err != nil {
		writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":        "queued",
		"correlationId": receipt.CorrelationID,
	})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request, correlationID string) {
	intents, err := s.svc.Pending()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to read outbox", correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"intents": intents})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, correlationID string) {
	var req struct {
		URL string `json:"url"`
	}
	if !s.decodeJSONBody(w, r, correlationID, &req) {
		return
	}
	removed, err := s.svc.CancelPending(req.URL)
	if err != nil {
		writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, correlationID string) {
	st := s.status.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"queueDepth":        st.QueueDepth,
		"draining":          st.Draining,
		"gatewayConfigured": st.GatewayConfigured,
		"storeKind":         s.cfg.StoreKind,
	})
}

func (s *Server) handleRefreshSocket(w http.ResponseWriter, r *http.Request, correlationID string) {
	if s.hub == nil {
		writeError(w, http.StatusNotImplemented, "not_implemented", "refresh socket disabled", correlationID)
		return
	}
	s.hub.Subscribe(w, r)
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

// writeServiceError maps the capture/outbox error taxonomy onto HTTP.
func writeServiceError(w http.ResponseWriter, err error, correlationID string) {
	switch {
	case errors.Is(err, outbox.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
	case errors.Is(err, outbox.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate", err.Error(), correlationID)
	case errors.Is(err, outbox.ErrConfigurationMissing):
		writeError(w, http.StatusFailedDependency, "configuration_missing", "remote gateway credentials are not configured", correlationID)
	case errors.Is(err, outbox.ErrExtractionTimeout):
		writeError(w, http.StatusGatewayTimeout, "extraction_timeout", err.Error(), correlationID)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), correlationID)
	}
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request, correlationID string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", correlationID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID)
		return nil, false
	}
	return body, true
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, correlationID string, dst any) bool {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}
