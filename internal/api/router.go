package api

import (
	"database/sql"
	"net/http"

	"log/slog"

	"github.com/newsweaver/newsweaver/internal/auth"
	"github.com/newsweaver/newsweaver/internal/database"
	"github.com/newsweaver/newsweaver/internal/metrics"
	"github.com/newsweaver/newsweaver/internal/models"
)

// SetupRoutes configures all API routes: the key-guarded loader endpoints,
// the JWT-guarded admin surface, and the operational probes.
func SetupRoutes(mux *http.ServeMux, pipelineDB, contentDB *sql.DB, sources *database.SourceRepository, files *database.ScrapedFileRepository, content *database.ContentRepository, authConfig auth.Config, collector *metrics.Collector, logger *slog.Logger) error {
	loaderHandler := NewLoaderHandler(content, logger)
	sourceHandler := NewSourceHandler(sources, logger)
	pipelineHandler := NewPipelineHandler(files, logger)
	authHandler, err := NewAuthHandler(authConfig, logger)
	if err != nil {
		return err
	}

	apiKey := auth.APIKeyMiddleware(authConfig.SecretKey)
	jwt := auth.JWTMiddleware(authConfig)

	// Loader endpoints (pre-shared key)
	for _, kind := range []models.ContentKind{
		models.KindArticle, models.KindDocument, models.KindSpreadsheet, models.KindImage,
	} {
		mux.Handle("/api/"+kind.Endpoint(), apiKey(loaderHandler.Handle(kind)))
	}

	// Authentication routes (public)
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.Handle("/api/auth/validate", jwt(http.HandlerFunc(authHandler.ValidateToken)))

	// Admin surface (JWT)
	mux.Handle("/api/sources", jwt(http.HandlerFunc(sourceHandler.Collection)))
	mux.Handle("/api/sources/", jwt(http.HandlerFunc(sourceHandler.Item)))
	mux.Handle("/api/pipeline/status", jwt(http.HandlerFunc(pipelineHandler.Status)))

	// Operational probes (public)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		for _, db := range []*sql.DB{pipelineDB, contentDB} {
			if err := database.HealthCheck(r.Context(), db); err != nil {
				logger.Error("health check failed", "error", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	})
	if collector != nil {
		mux.Handle("/metrics", collector.Handler())
	}
	return nil
}
