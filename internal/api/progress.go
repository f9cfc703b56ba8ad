package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsroom-builder/internal/progress"
)

// ProgressSource answers status queries.
type ProgressSource interface {
	Latest(stage string) (progress.Snapshot, bool)
	All() []progress.Snapshot
}

// ProgressHandler exposes the latest stage snapshots.
type ProgressHandler struct {
	source ProgressSource
	logger *zap.Logger
}

// NewProgressHandler wires the source and logger.
func NewProgressHandler(source ProgressSource, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{source: source, logger: logger}
}

// Routes mounts GET /progress and GET /progress/{stage}.
func (h *ProgressHandler) Routes(r chi.Router) {
	r.Get("/progress", h.ListStages)
	r.Get("/progress/{stage}", h.GetStage)
}

// ListStages handles GET /progress and returns {"stages": [...]}.
func (h *ProgressHandler) ListStages(w http.ResponseWriter, _ *http.Request) {
	if h.source == nil {
		h.writeError(w, http.StatusServiceUnavailable, "progress unavailable")
		return
	}
	snaps := h.source.All()
	out := make([]snapshotDTO, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, toSnapshotDTO(s))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"stages": out})
}

// GetStage handles GET /progress/{stage}; 404 when the stage never reported.
func (h *ProgressHandler) GetStage(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		h.writeError(w, http.StatusServiceUnavailable, "progress unavailable")
		return
	}
	stage := chi.URLParam(r, "stage")
	snap, ok := h.source.Latest(stage)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no progress for stage "+stage)
		return
	}
	h.writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

type snapshotDTO struct {
	Stage      string  `json:"stage"`
	Total      int     `json:"total"`
	Done       int     `json:"done"`
	Failed     int     `json:"failed"`
	Percent    float64 `json:"percent"`
	PerSecond  float64 `json:"per_second"`
	ElapsedSec float64 `json:"elapsed_seconds"`
	Final      bool    `json:"final"`
}

func toSnapshotDTO(s progress.Snapshot) snapshotDTO {
	return snapshotDTO{
		Stage:      s.Stage,
		Total:      s.Total,
		Done:       s.Done,
		Failed:     s.Failed,
		Percent:    s.Percent(),
		PerSecond:  s.Rate(),
		ElapsedSec: s.Elapsed.Round(time.Millisecond).Seconds(),
		Final:      s.Final,
	}
}

func (h *ProgressHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (h *ProgressHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
