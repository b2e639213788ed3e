package spancache

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// Handler exposes the four cache operations over HTTP JSON.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a new HTTP handler around the cache service.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.With("component", "http"),
	}
}

// Register mounts the cache routes on a router. Anything else on the
// router 404s.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/v1/spans", h.ingest).Methods(http.MethodPost)
	r.HandleFunc("/v1/spans/search", h.search).Methods(http.MethodPost)
	r.HandleFunc("/v1/traces/{traceId}", h.traceDetail).Methods(http.MethodGet)
	r.HandleFunc("/v1/spans/{traceId}/{spanId}/exists", h.exists).Methods(http.MethodGet)
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var batch IngestBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid ingest body: "+err.Error())
		return
	}

	if err := h.svc.Ingest(r.Context(), &batch); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// searchEnvelope is the search wire shape: the partition selector plus
// the query itself.
type searchEnvelope struct {
	EnvironmentID string `json:"environmentId"`
	SearchRequest
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	var req searchEnvelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid search body: "+err.Error())
		return
	}

	result, err := h.svc.Search(r.Context(), req.EnvironmentID, &req.SearchRequest)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, result)
}

func (h *Handler) traceDetail(w http.ResponseWriter, r *http.Request) {
	traceID := mux.Vars(r)["traceId"]
	env := r.URL.Query().Get("environment")

	result, err := h.svc.TraceDetail(r.Context(), env, traceID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, result)
}

func (h *Handler) exists(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	env := r.URL.Query().Get("environment")

	exists, err := h.svc.Exists(r.Context(), env, vars["traceId"], vars["spanId"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]bool{"exists": exists})
}

// writeServiceError maps cache errors onto HTTP statuses: rejected
// input is the client's fault, anything else is a storage failure.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrMissingTimeRange) || errors.Is(err, ErrMissingSpanIdentity) || errors.Is(err, ErrMissingEnvironment) {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	h.writeError(w, r, http.StatusInternalServerError, "internal error")
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
