package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mtlprog/convodist/internal/domain"
	"github.com/mtlprog/convodist/internal/handler/dto"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ruleFromRequest builds a domain rule from the request body.
func ruleFromRequest(workspaceID string, req dto.RuleRequest) *domain.DistributionRule {
	return &domain.DistributionRule{
		WorkspaceID:                      workspaceID,
		Active:                           req.Active,
		MaxConversationsPerAgent:         req.MaxConversationsPerAgent,
		CheckUserWasOnConversation:       req.CheckUserWasOnConversation,
		CheckTeamWorkingTimeConversation: req.CheckTeamWorkingTimeConversation,
		ExcludedUserIDs:                  req.ExcludedUserIDs,
	}
}

// handleCreateRule creates the distribution rule for a workspace.
// @Summary Create a workspace distribution rule
// @Description Creates the automatic distribution rule for a workspace. Each workspace has at most one rule.
// @Tags distribution-rules
// @Accept json
// @Produce json
// @Param id path string true "Workspace ID"
// @Param request body dto.RuleRequest true "Rule creation request"
// @Success 201 {object} dto.RuleResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /workspaces/{id}/distribution-rule [post]
func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workspaceID, ok := extractWorkspaceID(w, r)
	if !ok {
		return
	}

	var req dto.RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	rule := ruleFromRequest(workspaceID, req)
	if err := rule.Validate(); err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	if err := h.ruleRepo.Create(ctx, rule); err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewRuleResponse(rule))
}

// handleGetRule returns the distribution rule for a workspace.
// @Summary Get a workspace distribution rule
// @Tags distribution-rules
// @Produce json
// @Param id path string true "Workspace ID"
// @Success 200 {object} dto.RuleResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /workspaces/{id}/distribution-rule [get]
func (h *Handler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workspaceID, ok := extractWorkspaceID(w, r)
	if !ok {
		return
	}

	rule, err := h.ruleRepo.GetByWorkspace(ctx, workspaceID)
	if err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewRuleResponse(rule))
}

// handleUpdateRule replaces the distribution rule for a workspace.
// @Summary Update a workspace distribution rule
// @Tags distribution-rules
// @Accept json
// @Produce json
// @Param id path string true "Workspace ID"
// @Param request body dto.RuleRequest true "Rule update request"
// @Success 200 {object} dto.RuleResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /workspaces/{id}/distribution-rule [put]
func (h *Handler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workspaceID, ok := extractWorkspaceID(w, r)
	if !ok {
		return
	}

	var req dto.RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	rule := ruleFromRequest(workspaceID, req)
	if err := rule.Validate(); err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	if err := h.ruleRepo.Update(ctx, rule); err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	updated, err := h.ruleRepo.GetByWorkspace(ctx, workspaceID)
	if err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewRuleResponse(updated))
}

// handleDeleteRule removes the distribution rule for a workspace.
// @Summary Delete a workspace distribution rule
// @Tags distribution-rules
// @Param id path string true "Workspace ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /workspaces/{id}/distribution-rule [delete]
func (h *Handler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workspaceID, ok := extractWorkspaceID(w, r)
	if !ok {
		return
	}

	if err := h.ruleRepo.Delete(ctx, workspaceID); err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListRules lists distribution rules across workspaces.
// @Summary List distribution rules
// @Tags distribution-rules
// @Produce json
// @Param limit query int false "Page size (default 50, max 200)"
// @Param offset query int false "Page offset"
// @Success 200 {object} dto.RulesListResponse
// @Security BearerAuth
// @Router /distribution-rules [get]
func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filters := parseListFilters(r)

	rules, err := h.ruleRepo.List(ctx, filters.Limit, filters.Offset)
	if err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	total, err := h.ruleRepo.Count(ctx)
	if err != nil {
		status, code, message := dto.MapDomainError(err)
		respondError(w, status, code, message)
		return
	}

	response := dto.RulesListResponse{
		Rules:  make([]dto.RuleResponse, 0, len(rules)),
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}
	for _, rule := range rules {
		response.Rules = append(response.Rules, dto.NewRuleResponse(rule))
	}

	respondJSON(w, http.StatusOK, response)
}

// parseListFilters parses pagination query parameters with defaults.
func parseListFilters(r *http.Request) dto.ListRulesFilters {
	filters := dto.ListRulesFilters{
		Limit:  defaultListLimit,
		Offset: 0,
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			if limit > maxListLimit {
				limit = maxListLimit
			}
			filters.Limit = limit
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	return filters
}
