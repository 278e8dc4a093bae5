package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"invnorm/internal/codec"
	"invnorm/internal/domain"
	"invnorm/internal/repository"
	"invnorm/internal/service"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 32 << 20

// Runner executes a normalization run over a parsed batch
type Runner interface {
	Run(ctx context.Context, batch domain.Batch) (*service.RunResult, error)
}

// RunHandler handles normalization and run history requests
type RunHandler struct {
	persisted Runner
	ephemeral Runner
	store     repository.RunStore
	importer  codec.Importer
	log       zerolog.Logger
}

// NewRunHandler creates a run handler. persisted records runs in store;
// ephemeral serves POST /api/normalize without touching the history.
func NewRunHandler(persisted, ephemeral Runner, store repository.RunStore, log zerolog.Logger) *RunHandler {
	return &RunHandler{
		persisted: persisted,
		ephemeral: ephemeral,
		store:     store,
		importer:  codec.NewCSVCodec(),
		log:       log,
	}
}

// Register mounts every route on mux
func (h *RunHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("POST /api/normalize", h.Normalize)
	mux.HandleFunc("POST /api/runs", h.CreateRun)
	mux.HandleFunc("GET /api/runs", h.ListRuns)
	mux.HandleFunc("GET /api/runs/{id}", h.GetRun)
	mux.HandleFunc("GET /api/runs/{id}/records", h.ListRecords)
	mux.HandleFunc("GET /api/runs/{id}/anomalies", h.ListAnomalies)
	mux.HandleFunc("GET /api/runs/{id}/audit", h.ListAudit)
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// NormalizeRequest is the body of POST /api/normalize
type NormalizeRequest struct {
	Records []map[string]string `json:"records"`
}

// NormalizeResponse is the reply of POST /api/normalize
type NormalizeResponse struct {
	Records   []*domain.NormalizedRecord `json:"records"`
	Anomalies []domain.AnomalyEntry      `json:"anomalies"`
	Summary   service.AnomalySummary     `json:"summary"`
}

// Health reports liveness
func (h *RunHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// Normalize runs the pipeline over JSON records without persisting them
func (h *RunHandler) Normalize(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, "Invalid JSON", err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Records) == 0 {
		h.writeError(w, "No records", "records must contain at least one row", http.StatusBadRequest)
		return
	}

	batch, err := codec.ParseMaps(req.Records, "api")
	if err != nil {
		h.writeError(w, "Invalid records", err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.ephemeral.Run(r.Context(), *batch)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to normalize records")
		h.writeError(w, "Failed to normalize records", err.Error(), http.StatusInternalServerError)
		return
	}

	anomalies := result.Anomalies
	if anomalies == nil {
		anomalies = []domain.AnomalyEntry{}
	}
	h.writeJSON(w, NormalizeResponse{
		Records:   result.Records,
		Anomalies: anomalies,
		Summary:   result.Summary,
	}, http.StatusOK)
}

// CreateRun normalizes a raw CSV body and records the run
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}

	batch, err := h.importer.Parse(http.MaxBytesReader(w, r.Body, maxBodyBytes), source)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, codec.ErrMissingHeader) {
			status = http.StatusBadRequest
		}
		h.writeError(w, "Failed to parse inventory", err.Error(), status)
		return
	}

	result, err := h.persisted.Run(r.Context(), *batch)
	if err != nil {
		h.log.Error().Err(err).Msg("Run failed")
		h.writeError(w, "Run failed", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, result.Run, http.StatusCreated)
}

// ListRuns returns recent runs, newest first
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, "Invalid limit", "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		h.writeError(w, "Failed to list runs", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, runs, http.StatusOK)
}

// GetRun returns one run summary
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		h.storeError(w, "Failed to get run", err)
		return
	}
	h.writeJSON(w, run, http.StatusOK)
}

// ListRecords returns a run's normalized records
func (h *RunHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListRecords(r.Context(), r.PathValue("id"))
	if err != nil {
		h.storeError(w, "Failed to list records", err)
		return
	}
	h.writeJSON(w, records, http.StatusOK)
}

// ListAnomalies returns a run's anomalies, optionally filtered by severity
func (h *RunHandler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	var severity domain.Severity
	if v := r.URL.Query().Get("severity"); v != "" {
		s, ok := domain.ParseSeverity(v)
		if !ok {
			h.writeError(w, "Invalid severity", "severity must be error, warning or info", http.StatusBadRequest)
			return
		}
		severity = s
	}

	anomalies, err := h.store.ListAnomalies(r.Context(), r.PathValue("id"), severity)
	if err != nil {
		h.storeError(w, "Failed to list anomalies", err)
		return
	}
	h.writeJSON(w, anomalies, http.StatusOK)
}

// ListAudit returns a run's enrichment audit entries
func (h *RunHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListAudit(r.Context(), r.PathValue("id"))
	if err != nil {
		h.storeError(w, "Failed to list audit entries", err)
		return
	}
	h.writeJSON(w, entries, http.StatusOK)
}

// Helper methods

func (h *RunHandler) storeError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		h.writeError(w, "Run not found", err.Error(), http.StatusNotFound)
		return
	}
	h.log.Error().Err(err).Msg(msg)
	h.writeError(w, msg, err.Error(), http.StatusInternalServerError)
}

func (h *RunHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON")
	}
}

func (h *RunHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{
		Error:   error,
		Details: details,
	}, statusCode)
}
