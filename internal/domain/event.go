package domain

// EventType identifies a conversation lifecycle event consumed by the
// eligibility tracker.
type EventType string

const (
	EventTypeConversationAssigned       EventType = "CONVERSATION_ASSIGNED"
	EventTypeConversationMembersUpdated EventType = "CONVERSATION_MEMBERS_UPDATED"
	EventTypeConversationClosed         EventType = "CONVERSATION_CLOSED"
)

// EventTeamRef carries the team reference as published by the
// conversation service.
type EventTeamRef struct {
	ID string `json:"_id"`
}

// EventConversation is the conversation snapshot embedded in assigned
// events.
type EventConversation struct {
	State    ConversationState    `json:"state"`
	Order    int                  `json:"order"`
	Priority int                  `json:"priority"`
	Members  []ConversationMember `json:"members"`
}

// ConversationEventData is the payload of a lifecycle event. Team may
// arrive either as a nested reference or as a flat teamId, depending on
// the publisher version.
type ConversationEventData struct {
	ConversationID string               `json:"conversationId"`
	WorkspaceID    string               `json:"workspaceId"`
	Team           *EventTeamRef        `json:"team,omitempty"`
	TeamID         string               `json:"teamId,omitempty"`
	Conversation   *EventConversation   `json:"conversation,omitempty"`
	Members        []ConversationMember `json:"members,omitempty"`
}

// ConversationEvent is the envelope delivered over the event transport.
type ConversationEvent struct {
	Type EventType             `json:"type"`
	Data ConversationEventData `json:"data"`
}

// ResolvedTeamID returns the team id regardless of publisher format.
func (d ConversationEventData) ResolvedTeamID() string {
	if d.Team != nil && d.Team.ID != "" {
		return d.Team.ID
	}
	return d.TeamID
}
