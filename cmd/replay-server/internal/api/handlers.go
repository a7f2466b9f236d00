// Package api provides HTTP handlers for the replay server REST API.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coregx/replay"
	"github.com/coregx/replay/cmd/replay-server/internal/metrics"
	"github.com/coregx/replay/model"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	manager *replay.ReplayManager
	logger  replay.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a new API handler.
func NewHandler(manager *replay.ReplayManager, logger replay.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		manager: manager,
		logger:  logger,
		metrics: m,
	}
}

// PersistRequest represents a persist message request.
// Payload is base64-encoded in JSON (standard encoding for []byte).
type PersistRequest struct {
	Subject       string            `json:"subject"`
	Payload       []byte            `json:"payload"`
	Headers       map[string]string `json:"headers,omitempty"`
	Priority      int               `json:"priority,omitempty"`
	CorrelationID string            `json:"correlationID,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandlePersist handles POST /api/v1/messages
func (h *Handler) HandlePersist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req PersistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	if req.Subject == "" {
		h.respondError(w, http.StatusBadRequest, "subject is required", "VALIDATION_ERROR")
		return
	}

	record, err := h.manager.Persist(r.Context(), replay.PersistRequest{
		Subject:       req.Subject,
		Payload:       req.Payload,
		Headers:       req.Headers,
		Priority:      model.Priority(req.Priority),
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		h.logger.Errorf("Failed to persist message: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to persist message", "PERSIST_ERROR")
		return
	}

	h.metrics.Persisted.Inc()
	h.respondSuccess(w, http.StatusCreated, record, "Message persisted successfully")
}

// HandleMessage routes /api/v1/messages/:id and its subactions:
//
//	GET  /api/v1/messages/:id          - fetch a record
//	POST /api/v1/messages/:id/replay   - manual dispatch attempt
//	POST /api/v1/messages/:id/requeue  - reset a dead-lettered record
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	// parts: ["api", "v1", "messages", id] or ["api", "v1", "messages", id, action]
	if len(parts) < 4 {
		h.respondError(w, http.StatusBadRequest, "Message ID is required", "INVALID_ID")
		return
	}
	id := parts[3]

	if len(parts) == 4 {
		h.handleGetMessage(w, r, id)
		return
	}

	switch parts[4] {
	case "replay":
		h.handleReplay(w, r, id)
	case "requeue":
		h.handleRequeue(w, r, id)
	default:
		h.respondError(w, http.StatusNotFound, "Unknown action", "NOT_FOUND")
	}
}

func (h *Handler) handleGetMessage(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	record, err := h.manager.Load(r.Context(), id)
	if err != nil {
		if replay.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, "Message not found", "NOT_FOUND")
			return
		}
		h.logger.Errorf("Failed to load message %s: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to load message", "LOAD_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, record, "")
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	delivered, err := h.manager.Replay(r.Context(), id)
	if err != nil {
		if replay.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, "Message not found", "NOT_FOUND")
			return
		}
		h.logger.Errorf("Failed to replay message %s: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to replay message", "REPLAY_ERROR")
		return
	}

	if !delivered {
		h.respondSuccess(w, http.StatusOK, map[string]bool{"delivered": false},
			"Replay attempted; message was not delivered")
		return
	}
	h.respondSuccess(w, http.StatusOK, map[string]bool{"delivered": true}, "Message delivered")
}

func (h *Handler) handleRequeue(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	if err := h.manager.RequeueDeadLetter(r.Context(), id); err != nil {
		if replay.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, "Message not found", "NOT_FOUND")
			return
		}
		h.logger.Errorf("Failed to requeue message %s: %v", id, err)
		h.respondError(w, http.StatusConflict, "Failed to requeue message", "REQUEUE_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, nil, "Message requeued successfully")
}

// HandleStats handles GET /api/v1/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		h.logger.Errorf("Failed to read statistics: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to read statistics", "STATS_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, stats, "")
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "0.1.0",
	}

	h.respondSuccess(w, http.StatusOK, health, "")
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// splitPath splits a URL path into its non-empty segments.
func splitPath(path string) []string {
	parts := []string{}
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
