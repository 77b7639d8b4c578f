package domain

import "time"

// RuleTag names a pipeline rule, not an outcome. A tag in an entry's
// executedRules means the rule ran and passed; the same tag reported
// as an abort reason means the rule ran and stopped the assignment.
type RuleTag string

const (
	// RuleTagGetOutOfConversation is the disabled-member exclusion
	// check against this exact conversation.
	RuleTagGetOutOfConversation RuleTag = "GET_OUT_OF_CONVERSATION"

	// RuleTagNotInWorkingTime is the team attendance-window check.
	RuleTagNotInWorkingTime RuleTag = "NOT_IN_WORKING_TIME"

	// RuleTagConversationLimit is the per-agent capacity filter.
	RuleTagConversationLimit RuleTag = "CONVERSATION_LIMIT"

	// RuleTagLoadBalancer is the workload-ranked agent selection.
	RuleTagLoadBalancer RuleTag = "LOAD_BALANCER"
)

// AssignmentLogEntry is an immutable audit record written once per
// successful distribution.
type AssignmentLogEntry struct {
	ID                string
	ConversationID    string
	WorkspaceID       string
	TeamID            string
	Order             int
	Priority          int
	AssignedAgentID   string
	AssignedAgentName string
	ExecutedRules     []RuleTag
	AssignmentData    map[string]any
	CreatedAt         time.Time
}

// AgentWorkload is the derived per-candidate view used for selection.
// It is recomputed from live collaborator data on every engine run and
// never cached across ticks.
type AgentWorkload struct {
	ID                   string
	Name                 string
	Email                string
	TeamID               string
	CurrentConversations int
	LastAssignedAt       *time.Time
}
