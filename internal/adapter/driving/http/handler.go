// Package httphandler is the HTTP driving adapter that serves the REST API.
package httphandler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kmathis/glucopanel/internal/application"
	"github.com/kmathis/glucopanel/internal/domain/model"
	"github.com/kmathis/glucopanel/internal/domain/port/driven"
)

// Handler serves the REST API over the poll controller's snapshot state.
type Handler struct {
	poll   *application.PollService
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(poll *application.PollService, logger *slog.Logger) *Handler {
	return &Handler{poll: poll, logger: logger}
}

// RegisterAPIRoutes registers the REST API routes on the provided mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/readings", h.ListReadings)
	mux.HandleFunc("GET /api/v1/readings/latest", h.LatestReading)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("POST /api/v1/login", h.Login)
	mux.HandleFunc("POST /api/v1/logout", h.Logout)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// ApplyMiddleware wraps the handler with logging and recovery middleware.
// Recovery sits innermost so panics are caught before the request is logged.
func ApplyMiddleware(handler http.Handler, logger *slog.Logger) http.Handler {
	wrapped := recoveryMiddleware(logger, handler)
	wrapped = loggingMiddleware(logger, wrapped)
	return wrapped
}

// ListReadings returns the live reading window, oldest first.
func (h *Handler) ListReadings(w http.ResponseWriter, _ *http.Request) {
	readings := h.poll.Readings()

	resp := make([]ReadingResponse, 0, len(readings))
	for _, r := range readings {
		resp = append(resp, toReadingResponse(r))
	}

	writeJSON(w, http.StatusOK, resp)
}

// LatestReading returns the newest reading, or 204 when none is available.
func (h *Handler) LatestReading(w http.ResponseWriter, _ *http.Request) {
	latest := h.poll.Latest()
	if latest == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, toReadingResponse(*latest))
}

// Status returns the controller state and the current patient snapshot.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{State: string(h.poll.State())}

	if err := h.poll.LastError(); err != nil {
		resp.LastError = err.Error()
	}

	if state := h.poll.UserState(); state != nil {
		resp.TransmitterConnected = state.TransmitterConnected
		if state.CurrentGlucose != nil {
			zone := model.Categorize(*state.CurrentGlucose)
			trend := state.Trend.Collapse()
			resp.CurrentGlucose = state.CurrentGlucose
			resp.Zone = string(zone)
			resp.ZoneLabel = zone.Label()
			resp.Trend = string(trend)
			resp.TrendArrow = trend.Arrow()
		}
	}

	if latest := h.poll.Latest(); latest != nil {
		resp.LastUpdated = latest.Timestamp.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Login authenticates with the vendor through the poll controller.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if err := h.poll.Login(r.Context(), req.Username, req.Password, req.Remember); err != nil {
		var authErr *driven.AuthError
		if errors.As(err, &authErr) {
			writeError(w, http.StatusUnauthorized, authErr.Message)
			return
		}
		h.logger.Error("login failed", "error", err)
		writeError(w, http.StatusBadGateway, "could not reach the glucose service")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Logout ends the session. The body is optional; an empty body logs out
// without forgetting persisted credentials.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.poll.Logout(r.Context(), req.Forget); err != nil {
		h.logger.Error("logout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
