package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"log/slog"

	"github.com/newsweaver/newsweaver/internal/database"
	"github.com/newsweaver/newsweaver/internal/models"
)

// LoaderHandler accepts extracted payloads and writes them to the content
// store. Each record is keyed by source_file_id: a payload that already
// landed is acknowledged without mutation, so redelivery is always safe.
type LoaderHandler struct {
	content *database.ContentRepository
	logger  *slog.Logger
}

func NewLoaderHandler(content *database.ContentRepository, logger *slog.Logger) *LoaderHandler {
	return &LoaderHandler{content: content, logger: logger}
}

// Handle returns the POST handler for one content kind.
func (h *LoaderHandler) Handle(kind models.ContentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		payload, err := decodePayload(kind, r)
		if err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if payload.FileID() <= 0 {
			http.Error(w, "source_file_id is required", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		exists, err := h.content.Exists(ctx, kind, payload.FileID())
		if err != nil {
			h.logger.Error("existence check failed", "kind", string(kind), "source_file_id", payload.FileID(), "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if exists {
			h.logger.Info("payload already loaded", "kind", string(kind), "source_file_id", payload.FileID())
			writeJSON(w, http.StatusOK, map[string]any{
				"message":        "already exists",
				"source_file_id": payload.FileID(),
			}, h.logger)
			return
		}

		if err := h.insert(r, kind, payload); err != nil {
			// A concurrent delivery can slip between the check and the
			// insert; the unique index turns that into a conflict, which the
			// client treats as success.
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				writeJSON(w, http.StatusConflict, map[string]any{
					"message":        "already exists",
					"source_file_id": payload.FileID(),
				}, h.logger)
				return
			}
			h.logger.Error("content insert failed", "kind", string(kind), "source_file_id", payload.FileID(), "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		h.logger.Info("payload loaded", "kind", string(kind), "source_file_id", payload.FileID())
		writeJSON(w, http.StatusCreated, map[string]any{
			"message":        "created",
			"source_file_id": payload.FileID(),
		}, h.logger)
	}
}

func decodePayload(kind models.ContentKind, r *http.Request) (models.Payload, error) {
	dec := json.NewDecoder(r.Body)
	switch kind {
	case models.KindArticle:
		var p models.ArticlePayload
		if err := dec.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case models.KindDocument:
		var p models.DocumentPayload
		if err := dec.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case models.KindSpreadsheet:
		var p models.SpreadsheetPayload
		if err := dec.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case models.KindImage:
		var p models.ImagePayload
		if err := dec.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown content kind %q", kind)
}

func (h *LoaderHandler) insert(r *http.Request, kind models.ContentKind, payload models.Payload) error {
	ctx := r.Context()
	switch p := payload.(type) {
	case models.ArticlePayload:
		return h.content.InsertArticle(ctx, p)
	case models.DocumentPayload:
		return h.content.InsertDocument(ctx, p)
	case models.SpreadsheetPayload:
		return h.content.InsertSpreadsheet(ctx, p)
	case models.ImagePayload:
		return h.content.InsertImage(ctx, p)
	}
	return fmt.Errorf("unknown payload type for kind %q", kind)
}
