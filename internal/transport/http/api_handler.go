package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"interactive-video-service/internal/app"
	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/identity"
)

// APIHandler serves the plain HTTP endpoints next to the playback socket.
type APIHandler struct {
	service *app.PlaybackService
	ids     identity.Provider
	logger  *zap.Logger
}

func NewAPIHandler(service *app.PlaybackService, ids identity.Provider, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{service: service, ids: ids, logger: logger}
}

// Summary returns the watch and quiz aggregates of a viewer. Viewers can
// only read their own summary.
func (h *APIHandler) Summary(w http.ResponseWriter, r *http.Request) {
	viewerID := r.PathValue("viewerID")
	if viewerID == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "badRequest", Message: "missing viewerID"})
		return
	}
	caller, err := h.ids.ViewerID(r)
	if err != nil {
		writeJSON(w, statusFor(err), toErrorPayload(err))
		return
	}
	if caller != viewerID {
		h.logger.Warn("summary denied", zap.String("viewerId", viewerID), zap.String("caller", caller))
		writeJSON(w, http.StatusForbidden, toErrorPayload(domain.ErrForbidden))
		return
	}
	summary, err := h.service.Summary(r.Context(), viewerID)
	if err != nil {
		h.logger.Error("viewer summary failed", zap.String("viewerId", viewerID), zap.Error(err))
		writeJSON(w, statusFor(err), toErrorPayload(err))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *APIHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewRouter mounts every endpoint of the service.
func NewRouter(ws *WSHandler, api *APIHandler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", ws.ServeWS)
	mux.HandleFunc("GET /viewers/{viewerID}/summary", api.Summary)
	mux.HandleFunc("GET /healthz", api.Health)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrVideoNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
