// Package api implements the loader surface consumed by the delivery client
// and the JWT-protected admin surface for source management.
package api

import (
	"encoding/json"
	"net/http"

	"log/slog"
)

// writeJSON encodes a response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
