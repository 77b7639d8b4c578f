package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mtlprog/convodist/internal/domain"
)

// TeamClient resolves team rosters and attendance schedules.
type TeamClient struct {
	*Client
}

// NewTeamClient wraps a collaborator client with the team surface.
func NewTeamClient(c *Client) *TeamClient {
	return &TeamClient{Client: c}
}

// GetByID retrieves a team with roleUsers and attendancePeriods.
func (c *TeamClient) GetByID(ctx context.Context, teamID string) (*domain.Team, error) {
	var team domain.Team
	path := fmt.Sprintf("/teams/%s", teamID)
	if err := c.do(ctx, http.MethodGet, path, nil, &team); err != nil {
		return nil, err
	}
	return &team, nil
}
