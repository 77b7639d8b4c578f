package dto

// RuleRequest represents the request body for creating or updating a
// workspace distribution rule.
type RuleRequest struct {
	Active                           bool     `json:"active"`
	MaxConversationsPerAgent         int      `json:"max_conversations_per_agent"`
	CheckUserWasOnConversation       bool     `json:"check_user_was_on_conversation"`
	CheckTeamWorkingTimeConversation bool     `json:"check_team_working_time_conversation"`
	ExcludedUserIDs                  []string `json:"excluded_user_ids,omitempty"`
}

// ListRulesFilters represents query parameters for GET /distribution-rules.
type ListRulesFilters struct {
	Limit  int // ?limit=50
	Offset int // ?offset=0
}
