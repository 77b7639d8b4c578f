package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mtlprog/convodist/internal/domain"
	"github.com/rabbitmq/amqp091-go"
)

// Routing keys for conversation lifecycle events.
const (
	RoutingKeyAssigned       = "conversation.assigned"
	RoutingKeyMembersUpdated = "conversation.members_updated"
	RoutingKeyClosed         = "conversation.closed"
)

// PendingStore is the write surface the tracker maintains.
type PendingStore interface {
	Upsert(ctx context.Context, p *domain.PendingDistribution) error
	UpdateHasMember(ctx context.Context, workspaceID, conversationID string, hasMember bool) (bool, error)
	Delete(ctx context.Context, workspaceID, conversationID string) error
}

// EligibilityTracker consumes conversation lifecycle events and keeps
// the pending distribution store consistent with which conversations
// currently lack an enabled agent. Every handler is idempotent:
// duplicate or out-of-order delivery of the same event converges to the
// same row state.
type EligibilityTracker struct {
	store PendingStore
}

// NewEligibilityTracker creates a tracker over the given store.
func NewEligibilityTracker(store PendingStore) *EligibilityTracker {
	return &EligibilityTracker{store: store}
}

// Bind registers the tracker's handlers on the subscriber.
func (t *EligibilityTracker) Bind(sub *Subscriber) {
	sub.RegisterHandler(RoutingKeyAssigned, t.decodeAnd(t.HandleAssigned))
	sub.RegisterHandler(RoutingKeyMembersUpdated, t.decodeAnd(t.HandleMembersUpdated))
	sub.RegisterHandler(RoutingKeyClosed, t.decodeAnd(t.HandleClosed))
}

// decodeAnd wraps a typed handler with envelope decoding. Undecodable
// payloads are logged and dropped; redelivery cannot make them valid.
func (t *EligibilityTracker) decodeAnd(
	handle func(ctx context.Context, data domain.ConversationEventData) error,
) HandlerFunc {
	return func(ctx context.Context, delivery amqp091.Delivery) error {
		var event domain.ConversationEvent
		if err := json.Unmarshal(delivery.Body, &event); err != nil {
			slog.Error("undecodable conversation event",
				"routing_key", delivery.RoutingKey,
				"message_id", delivery.MessageId,
				"error", err,
			)
			return nil
		}
		if event.Data.ConversationID == "" || event.Data.WorkspaceID == "" {
			slog.Warn("conversation event missing identifiers",
				"routing_key", delivery.RoutingKey,
				"message_id", delivery.MessageId,
			)
			return nil
		}
		return handle(ctx, event.Data)
	}
}

// HandleAssigned upserts the pending row for an assigned conversation.
// hasMember reflects whether any member is an enabled agent; the row is
// created if absent and refreshed in place otherwise.
func (t *EligibilityTracker) HandleAssigned(ctx context.Context, data domain.ConversationEventData) error {
	if data.Conversation == nil {
		slog.Warn("assigned event without conversation snapshot",
			"conversation_id", data.ConversationID,
			"workspace_id", data.WorkspaceID,
		)
		return nil
	}

	pending := &domain.PendingDistribution{
		WorkspaceID:    data.WorkspaceID,
		ConversationID: data.ConversationID,
		TeamID:         data.ResolvedTeamID(),
		State:          data.Conversation.State,
		Order:          data.Conversation.Order,
		Priority:       data.Conversation.Priority,
		HasMember:      domain.HasActiveAgent(data.Conversation.Members),
	}

	if err := t.store.Upsert(ctx, pending); err != nil {
		return fmt.Errorf("upsert pending distribution: %w", err)
	}

	slog.Debug("conversation tracked",
		"conversation_id", data.ConversationID,
		"workspace_id", data.WorkspaceID,
		"has_member", pending.HasMember,
	)
	return nil
}

// HandleMembersUpdated recomputes hasMember for an already tracked
// conversation. Untracked conversations are a no-op: membership churn
// on a conversation that was never assigned does not create a row.
func (t *EligibilityTracker) HandleMembersUpdated(ctx context.Context, data domain.ConversationEventData) error {
	hasMember := domain.HasActiveAgent(data.Members)

	updated, err := t.store.UpdateHasMember(ctx, data.WorkspaceID, data.ConversationID, hasMember)
	if err != nil {
		return fmt.Errorf("update has_member: %w", err)
	}
	if !updated {
		slog.Debug("members update for untracked conversation",
			"conversation_id", data.ConversationID,
			"workspace_id", data.WorkspaceID,
		)
	}
	return nil
}

// HandleClosed removes the pending row. Closing an untracked
// conversation is a no-op.
func (t *EligibilityTracker) HandleClosed(ctx context.Context, data domain.ConversationEventData) error {
	if err := t.store.Delete(ctx, data.WorkspaceID, data.ConversationID); err != nil {
		return fmt.Errorf("delete pending distribution: %w", err)
	}
	return nil
}
