package dto

import (
	"time"

	"github.com/mtlprog/convodist/internal/domain"
)

// RuleResponse represents a distribution rule in API responses.
type RuleResponse struct {
	ID                               string    `json:"id"`
	WorkspaceID                      string    `json:"workspace_id"`
	Active                           bool      `json:"active"`
	MaxConversationsPerAgent         int       `json:"max_conversations_per_agent"`
	CheckUserWasOnConversation       bool      `json:"check_user_was_on_conversation"`
	CheckTeamWorkingTimeConversation bool      `json:"check_team_working_time_conversation"`
	ExcludedUserIDs                  []string  `json:"excluded_user_ids"`
	CreatedAt                        time.Time `json:"created_at"`
	UpdatedAt                        time.Time `json:"updated_at"`
}

// NewRuleResponse converts a domain rule to its API representation.
func NewRuleResponse(rule *domain.DistributionRule) RuleResponse {
	excluded := rule.ExcludedUserIDs
	if excluded == nil {
		excluded = []string{}
	}
	return RuleResponse{
		ID:                               rule.ID,
		WorkspaceID:                      rule.WorkspaceID,
		Active:                           rule.Active,
		MaxConversationsPerAgent:         rule.MaxConversationsPerAgent,
		CheckUserWasOnConversation:       rule.CheckUserWasOnConversation,
		CheckTeamWorkingTimeConversation: rule.CheckTeamWorkingTimeConversation,
		ExcludedUserIDs:                  excluded,
		CreatedAt:                        rule.CreatedAt,
		UpdatedAt:                        rule.UpdatedAt,
	}
}

// RulesListResponse represents the response for GET /distribution-rules.
type RulesListResponse struct {
	Rules  []RuleResponse `json:"rules"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}
