package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/newsweaver/newsweaver/internal/database"
	"github.com/newsweaver/newsweaver/internal/models"
)

// SourceHandler implements the admin CRUD surface over registered sources.
type SourceHandler struct {
	sources *database.SourceRepository
	logger  *slog.Logger
}

func NewSourceHandler(sources *database.SourceRepository, logger *slog.Logger) *SourceHandler {
	return &SourceHandler{sources: sources, logger: logger}
}

// sourceRequest is the admin-facing create/update body. The type string is
// normalized, so "website" and "file" are accepted aliases.
type sourceRequest struct {
	URL      string `json:"url"`
	Type     string `json:"source_type"`
	Schedule string `json:"schedule"`
}

func (req *sourceRequest) validate() (models.SourceType, string) {
	if strings.TrimSpace(req.URL) == "" {
		return "", "url is required"
	}
	typ, ok := models.ParseSourceType(req.Type)
	if !ok {
		return "", "source_type must be one of http, rss, local"
	}
	return typ, ""
}

// Collection handles GET and POST /api/sources.
func (h *SourceHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sources, err := h.sources.List(r.Context())
		if err != nil {
			h.logger.Error("failed to list sources", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, sources, h.logger)

	case http.MethodPost:
		var req sourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		typ, problem := req.validate()
		if problem != "" {
			http.Error(w, problem, http.StatusBadRequest)
			return
		}

		source := &models.Source{URL: strings.TrimSpace(req.URL), Type: typ, Schedule: req.Schedule}
		if err := h.sources.Create(r.Context(), source); err != nil {
			if errors.Is(err, database.ErrDuplicateURL) {
				http.Error(w, "A source with this URL already exists", http.StatusConflict)
				return
			}
			h.logger.Error("failed to create source", "url", source.URL, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		h.logger.Info("source created", "source_id", source.ID, "url", source.URL, "source_type", string(source.Type))
		writeJSON(w, http.StatusCreated, source, h.logger)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Item handles GET, PUT and DELETE /api/sources/{id}.
func (h *SourceHandler) Item(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/sources/"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid source id", http.StatusBadRequest)
		return
	}

	source, err := h.sources.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load source", "source_id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if source == nil {
		http.Error(w, "Source not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, source, h.logger)

	case http.MethodPut:
		var req sourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		typ, problem := req.validate()
		if problem != "" {
			http.Error(w, problem, http.StatusBadRequest)
			return
		}

		source.URL = strings.TrimSpace(req.URL)
		source.Type = typ
		source.Schedule = req.Schedule
		if err := h.sources.Update(r.Context(), *source); err != nil {
			h.logger.Error("failed to update source", "source_id", id, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, source, h.logger)

	case http.MethodDelete:
		if err := h.sources.Delete(r.Context(), id); err != nil {
			h.logger.Error("failed to delete source", "source_id", id, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		h.logger.Info("source deleted", "source_id", id)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
