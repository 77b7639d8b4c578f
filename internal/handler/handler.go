package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mtlprog/convodist/docs" // Import generated docs
	"github.com/mtlprog/convodist/internal/handler/dto"
	"github.com/mtlprog/convodist/internal/middleware"
	"github.com/mtlprog/convodist/internal/repository"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	pool           *pgxpool.Pool
	ruleRepo       *repository.DistributionRuleRepository
	authMiddleware *middleware.AuthMiddleware
}

// New creates a new Handler instance with all dependencies.
func New(pool *pgxpool.Pool, apiToken string) *Handler {
	return &Handler{
		pool:           pool,
		ruleRepo:       repository.NewDistributionRuleRepository(pool),
		authMiddleware: middleware.NewAuthMiddleware(apiToken),
	}
}

// RegisterRoutes registers all HTTP routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /healthz", h.handleHealthz)

	// Swagger UI
	mux.HandleFunc("GET /swagger/", httpSwagger.Handler())

	// API v1 routes with authentication
	mux.Handle("POST /api/v1/workspaces/{id}/distribution-rule",
		h.authMiddleware.Authenticate(http.HandlerFunc(h.handleCreateRule)))
	mux.Handle("GET /api/v1/workspaces/{id}/distribution-rule",
		h.authMiddleware.Authenticate(http.HandlerFunc(h.handleGetRule)))
	mux.Handle("PUT /api/v1/workspaces/{id}/distribution-rule",
		h.authMiddleware.Authenticate(http.HandlerFunc(h.handleUpdateRule)))
	mux.Handle("DELETE /api/v1/workspaces/{id}/distribution-rule",
		h.authMiddleware.Authenticate(http.HandlerFunc(h.handleDeleteRule)))
	mux.Handle("GET /api/v1/distribution-rules",
		h.authMiddleware.Authenticate(http.HandlerFunc(h.handleListRules)))
}

// handleHealthz returns 200 OK if the database is reachable.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.pool.Ping(ctx); err != nil {
		slog.Error("database health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Ping checks if the database is reachable (used for testing).
func (h *Handler) Ping(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a standard error response.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, dto.NewErrorResponse(code, message))
}

// extractWorkspaceID extracts the workspace ID from the path parameter.
// Workspace ids are opaque identifiers minted by the conversation
// platform, so no format is enforced beyond non-emptiness.
// Returns (workspaceID, true) if present, ("", false) otherwise (error
// already sent to client).
func extractWorkspaceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	workspaceID := r.PathValue("id")
	if workspaceID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "workspace id is required")
		return "", false
	}

	return workspaceID, true
}
