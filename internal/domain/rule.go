package domain

import "time"

// DistributionRule is the per-workspace configuration for automatic
// distribution. At most one rule exists per workspace.
type DistributionRule struct {
	ID                               string
	WorkspaceID                      string
	Active                           bool
	MaxConversationsPerAgent         int
	CheckUserWasOnConversation       bool
	CheckTeamWorkingTimeConversation bool
	ExcludedUserIDs                  []string
	CreatedAt                        time.Time
	UpdatedAt                        time.Time
}

// Validate checks invariants that must hold before a rule is persisted.
func (r *DistributionRule) Validate() error {
	if r.WorkspaceID == "" {
		return ErrWorkspaceRequired
	}
	if r.MaxConversationsPerAgent < 1 {
		return ErrInvalidMaxConversations
	}
	return nil
}

// IsExcluded reports whether the given user is on the rule's exclusion list.
func (r *DistributionRule) IsExcluded(userID string) bool {
	for _, id := range r.ExcludedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
