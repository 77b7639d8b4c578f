package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mtlprog/convodist/internal/domain"
)

// GetByID retrieves a conversation snapshot including members.
func (c *Client) GetByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var conversation domain.Conversation
	path := fmt.Sprintf("/conversations/%s", conversationID)
	if err := c.do(ctx, http.MethodGet, path, nil, &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// AddMember adds a member to a conversation.
func (c *Client) AddMember(ctx context.Context, conversationID string, member domain.ConversationMember) error {
	path := fmt.Sprintf("/conversations/%s/members", conversationID)
	return c.do(ctx, http.MethodPost, path, member, nil)
}

// DispatchActivity posts an activity into a conversation.
func (c *Client) DispatchActivity(ctx context.Context, conversationID string, activity domain.Activity) error {
	path := fmt.Sprintf("/conversations/%s/activities", conversationID)
	return c.do(ctx, http.MethodPost, path, activity, nil)
}

// TransferToAgent makes the agent an active member of the conversation.
func (c *Client) TransferToAgent(ctx context.Context, conversationID, agentID string) error {
	path := fmt.Sprintf("/conversations/%s/transfer", conversationID)
	body := map[string]string{"agentId": agentID}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// GetUserConversationCounts returns the live open-conversation count
// per user in one batched call.
func (c *Client) GetUserConversationCounts(ctx context.Context, userIDs []string, workspaceID string) (map[string]int, error) {
	body := map[string]any{
		"userIds":     userIDs,
		"workspaceId": workspaceID,
	}
	counts := make(map[string]int)
	if err := c.do(ctx, http.MethodPost, "/conversations/counts", body, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}
