package client

import (
	"context"
	"net/http"

	"github.com/mtlprog/convodist/internal/domain"
)

// UserClient resolves user directory entries.
type UserClient struct {
	*Client
}

// NewUserClient wraps a collaborator client with the user surface.
func NewUserClient(c *Client) *UserClient {
	return &UserClient{Client: c}
}

// GetAll retrieves directory entries for the given user ids.
func (c *UserClient) GetAll(ctx context.Context, userIDs []string) ([]domain.User, error) {
	body := map[string]any{"ids": userIDs}
	var users []domain.User
	if err := c.do(ctx, http.MethodPost, "/users/search", body, &users); err != nil {
		return nil, err
	}
	return users, nil
}
