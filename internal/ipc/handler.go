// Package ipc provides the HTTP API for the lobby daemon.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/arenahall/lobbyd/internal/domain"
	"github.com/arenahall/lobbyd/internal/guard"
	"github.com/arenahall/lobbyd/internal/lobby"
	"github.com/arenahall/lobbyd/internal/notify"
	"github.com/arenahall/lobbyd/internal/store"
)

// EventSource lists journal events of the running session.
type EventSource interface {
	Events(ctx context.Context, q store.EventQuery) ([]domain.SessionEvent, error)
}

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Coordinator *lobby.Coordinator
	Events      EventSource
	Hub         *notify.Hub
	Guard       *guard.Guard // nil disables throttling
	Log         *slog.Logger
}

// ParticipantRequest is the body for login, join and leave.
type ParticipantRequest struct {
	ParticipantID string `json:"participant_id"`
}

// AbilityRequest is the body for POST /api/v1/session/abilities/{capability}.
type AbilityRequest struct {
	ActorID string        `json:"actor_id"`
	Facing  domain.Vector `json:"facing"`
}

// PhaseRequest is the body for POST /api/v1/session/phase.
type PhaseRequest struct {
	Action string `json:"action"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetSession handles GET /api/v1/session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Coordinator.Status())
}

// Login handles POST /api/v1/session/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	id, ok := h.decodeParticipant(w, r, true)
	if !ok {
		return
	}
	dec := h.Coordinator.OnLoginAttempt(r.Context(), id)
	var refused *domain.EngineError
	if errors.As(dec.Err(), &refused) {
		writeJSON(w, statusFor(refused.Code), loginRefusal{LoginDecision: dec, Code: refused.Code})
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

// loginRefusal is the body of a refused login: the decision and its error
// code.
type loginRefusal struct {
	domain.LoginDecision
	Code int `json:"code"`
}

// Join handles POST /api/v1/session/join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	id, ok := h.decodeParticipant(w, r, true)
	if !ok {
		return
	}
	res, err := h.Coordinator.OnJoin(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Leave handles POST /api/v1/session/leave. Leaves are never throttled.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	id, ok := h.decodeParticipant(w, r, false)
	if !ok {
		return
	}
	res, err := h.Coordinator.OnLeave(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// InvokeAbility handles POST /api/v1/session/abilities/{capability}.
func (h *Handler) InvokeAbility(w http.ResponseWriter, r *http.Request) {
	capability := domain.CapabilityID(r.PathValue("capability"))
	var req AbilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.ActorID == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "actor_id is required"})
		return
	}
	if err := h.Guard.CheckRateLimit(req.ActorID); err != nil {
		writeError(w, err)
		return
	}
	eff, err := h.Coordinator.OnAbilityInvoke(r.Context(), domain.ParticipantID(req.ActorID), capability, req.Facing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eff)
}

// ApplyPhase handles POST /api/v1/session/phase.
func (h *Handler) ApplyPhase(w http.ResponseWriter, r *http.Request) {
	var req PhaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.Action == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "action is required"})
		return
	}
	if err := h.Coordinator.Apply(r.Context(), req.Action); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEvents handles GET /api/v1/session/events?since_seq=N&type=T&limit=L.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := store.EventQuery{Type: query.Get("type")}
	if s := query.Get("since_seq"); s != "" {
		if parsed, err := strconv.ParseInt(s, 10, 64); err == nil {
			q.SinceSeq = parsed
		}
	}
	if s := query.Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil {
			q.Limit = parsed
		}
	}

	events, err := h.Events.Events(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.SessionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// StreamNotices handles GET /api/v1/session/stream (SSE). The optional
// participant_id query also delivers notices addressed to that participant.
func (h *Handler) StreamNotices(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: 500, Message: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id := domain.ParticipantID(r.URL.Query().Get("participant_id"))
	msgs, unsubscribe := h.Hub.Subscribe(id)
	defer unsubscribe()
	h.logger().Debug("stream opened", "participant", id, "listeners", h.Hub.Count())
	defer h.logger().Debug("stream closed", "participant", id)

	// Announce the current state so a listener need not poll first.
	writeSSE(w, flusher, "status", h.Coordinator.Status())

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-msgs:
			writeSSE(w, flusher, msg.Event, msg)
		}
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Log == nil {
		return slog.Default()
	}
	return h.Log
}

// decodeParticipant reads the participant id from the body. throttle applies
// the per-participant rate limit.
func (h *Handler) decodeParticipant(w http.ResponseWriter, r *http.Request, throttle bool) (domain.ParticipantID, bool) {
	var req ParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return "", false
	}
	if req.ParticipantID == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "participant_id is required"})
		return "", false
	}
	if throttle {
		if err := h.Guard.CheckRateLimit(req.ParticipantID); err != nil {
			writeError(w, err)
			return "", false
		}
	}
	return domain.ParticipantID(req.ParticipantID), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var engErr *domain.EngineError
	if errors.As(err, &engErr) {
		writeJSON(w, statusFor(engErr.Code), APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

func statusFor(code int) int {
	switch code {
	case domain.ErrInvalidParticipant.Code:
		return http.StatusBadRequest
	case domain.ErrUnknownCapability.Code:
		return http.StatusNotFound
	case domain.ErrAbilityNotAllowed.Code:
		return http.StatusConflict
	case domain.ErrCooldownActive.Code, domain.ErrRateLimitExceeded.Code:
		return http.StatusTooManyRequests
	case domain.ErrLoginDenied.Code:
		return http.StatusForbidden
	case domain.ErrInvalidTransition.Code, domain.ErrUnknownAction.Code:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeSSE(w http.ResponseWriter, f http.Flusher, event string, v any) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	f.Flush()
}
