package jobs

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mosaic-archive/mosaic/pkg/common/logger"
	"github.com/mosaic-archive/mosaic/pkg/common/models"
	"github.com/mosaic-archive/mosaic/pkg/ingest"
	"github.com/redis/go-redis/v9"
)

// HTTPHandler exposes the import API: submit, status, cancel, and the
// ingester catalogue.
type HTTPHandler struct {
	service  *Service
	registry *ingest.Registry
	redis    *redis.Client // optional; nil hides live progress from status
	maxBody  int64
}

func NewHTTPHandler(service *Service, registry *ingest.Registry, redisClient *redis.Client, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, registry: registry, redis: redisClient, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/imports", h.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/imports/{id}", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/imports/{id}/cancel", h.handleCancel).Methods(http.MethodPost)
	router.HandleFunc("/sources", h.handleSources).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req models.SubmitImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid import payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	jobID, runID, err := h.service.Submit(r.Context(), req.Path, req.DataTypes)
	if err != nil {
		logger.Log.WithError(err).Error("failed to submit import")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusAccepted, models.SubmitImportResponse{
		JobID:       jobID,
		ImportRunID: runID,
		Timestamp:   time.Now().UTC(),
	})
}

// importStatus joins the persisted run record with the live run state
// published by the worker, when one exists.
type importStatus struct {
	ImportRun interface{} `json:"import_run"`
	Live      *RunState   `json:"live,omitempty"`
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	runID, err := uuid.Parse(id)
	if err != nil {
		http.Error(w, "invalid import run id", http.StatusBadRequest)
		return
	}

	run, err := h.service.store.GetImportRun(r.Context(), runID)
	if err != nil {
		logger.Log.WithError(err).Error("failed to fetch import run")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "import run not found", http.StatusNotFound)
		return
	}

	status := importStatus{ImportRun: run}
	if h.redis != nil && run.IsRunning() {
		if state, err := FetchRunState(r.Context(), h.redis, id); err == nil {
			status.Live = state
		}
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *HTTPHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result := h.service.Cancel(r.Context(), id)
	code := http.StatusOK
	if !result.Success {
		code = http.StatusConflict
	}
	writeJSON(w, code, result)
}

// ingesterInfo describes a registered ingester to API consumers.
type ingesterInfo struct {
	SourceType   string   `json:"source_type"`
	EntityTypes  []string `json:"entity_types"`
	Patterns     []string `json:"detection_patterns,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

func (h *HTTPHandler) handleSources(w http.ResponseWriter, r *http.Request) {
	ingesters := h.registry.All()
	infos := make([]ingesterInfo, 0, len(ingesters))
	for _, ing := range ingesters {
		types := ing.SupportedEntityTypes()
		typeNames := make([]string, 0, len(types))
		for _, t := range types {
			typeNames = append(typeNames, string(t))
		}
		infos = append(infos, ingesterInfo{
			SourceType:   string(ing.SourceType()),
			EntityTypes:  typeNames,
			Patterns:     ing.DetectionPatterns(),
			Instructions: ing.Instructions(),
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
