package service

import (
	"sort"

	"github.com/mtlprog/convodist/internal/domain"
)

// SortByWorkload orders candidates ascending by current conversation
// count, then by last assignment recency. Never-assigned agents sort
// before agents with a recorded assignment.
func SortByWorkload(candidates []domain.AgentWorkload) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CurrentConversations != b.CurrentConversations {
			return a.CurrentConversations < b.CurrentConversations
		}
		switch {
		case a.LastAssignedAt == nil && b.LastAssignedAt == nil:
			return false
		case a.LastAssignedAt == nil:
			return true
		case b.LastAssignedAt == nil:
			return false
		default:
			return a.LastAssignedAt.Before(*b.LastAssignedAt)
		}
	})
}

// PickAgent selects the best-ranked candidate from an already sorted
// set, skipping the team's last assigned agent when another candidate
// survives. When the only survivor is that agent, availability beats
// fairness and it is accepted.
func PickAgent(sorted []domain.AgentWorkload, lastAssignedAgentID string) *domain.AgentWorkload {
	if len(sorted) == 0 {
		return nil
	}
	if lastAssignedAgentID != "" && len(sorted) > 1 {
		for i := range sorted {
			if sorted[i].ID != lastAssignedAgentID {
				return &sorted[i]
			}
		}
	}
	return &sorted[0]
}
