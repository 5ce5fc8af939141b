package api

import (
	"net/http"

	"log/slog"

	"github.com/newsweaver/newsweaver/internal/database"
	"github.com/newsweaver/newsweaver/internal/models"
)

// PipelineHandler reports queue health for operators.
type PipelineHandler struct {
	files  *database.ScrapedFileRepository
	logger *slog.Logger
}

func NewPipelineHandler(files *database.ScrapedFileRepository, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{files: files, logger: logger}
}

// Status handles GET /api/pipeline/status with per-status row counts. Every
// known status appears in the response, zero or not, so dashboards get a
// stable shape.
func (h *PipelineHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts, err := h.files.CountByStatus(r.Context())
	if err != nil {
		h.logger.Error("failed to count files by status", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	statuses := map[string]int{}
	total := 0
	for _, s := range []models.FileStatus{
		models.StatusPending, models.StatusInProgress, models.StatusProcessed,
		models.StatusLoadFailed, models.StatusTransformFailed, models.StatusDeadLetter,
	} {
		n := counts[s]
		statuses[string(s)] = n
		total += n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"statuses": statuses,
		"total":    total,
	}, h.logger)
}
