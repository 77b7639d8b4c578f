package domain

import "time"

// ConversationState represents the lifecycle state reported by the
// conversation service.
type ConversationState string

const (
	ConversationStateOpen   ConversationState = "open"
	ConversationStateClosed ConversationState = "closed"
)

// MemberType classifies a conversation member.
type MemberType string

const (
	MemberTypeAgent   MemberType = "agent"
	MemberTypeContact MemberType = "contact"
	MemberTypeSystem  MemberType = "system"
)

// ConversationMember is a member entry as delivered in lifecycle events
// and conversation snapshots.
type ConversationMember struct {
	UserID   string     `json:"userId,omitempty"`
	Type     MemberType `json:"type"`
	Disabled bool       `json:"disabled"`
}

// HasActiveAgent reports whether any member is an enabled agent.
// A conversation with an active agent does not need distribution.
func HasActiveAgent(members []ConversationMember) bool {
	for _, m := range members {
		if m.Type == MemberTypeAgent && !m.Disabled {
			return true
		}
	}
	return false
}

// PendingDistribution tracks one conversation per workspace that was
// last observed without an enabled agent member. Rows are maintained
// exclusively by the eligibility tracker; the distribution engine only
// reads them.
type PendingDistribution struct {
	WorkspaceID    string
	ConversationID string
	TeamID         string
	State          ConversationState
	Order          int
	Priority       int
	HasMember      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
