package api

import (
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/newsweaver/newsweaver/internal/auth"
)

// AuthHandler handles admin authentication requests.
type AuthHandler struct {
	config       auth.Config
	passwordHash string
	logger       *slog.Logger
}

// NewAuthHandler creates a new authentication handler. The admin password is
// hashed once at startup so login compares through bcrypt.
func NewAuthHandler(config auth.Config, logger *slog.Logger) (*AuthHandler, error) {
	hash, err := auth.HashPassword(config.AdminPassword)
	if err != nil {
		return nil, err
	}
	return &AuthHandler{config: config, passwordHash: hash, logger: logger}, nil
}

// LoginRequest represents a login request
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !auth.CheckPassword(req.Password, h.passwordHash) {
		h.logger.Warn("failed login attempt", "ip", r.RemoteAddr)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateToken("admin", h.config.JWTSecret, h.config.TokenDuration)
	if err != nil {
		h.logger.Error("failed to generate token", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("successful login", "ip", r.RemoteAddr)
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.config.TokenDuration),
	}, h.logger)
}

// ValidateToken handles GET /api/auth/validate. Token validation happens in
// the middleware; reaching here means the token is good.
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := auth.GetUserIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  true,
		"userID": userID,
	}, h.logger)
}
