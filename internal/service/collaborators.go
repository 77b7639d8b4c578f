package service

import (
	"context"
	"time"

	"github.com/mtlprog/convodist/internal/domain"
)

// ConversationService is the narrow view of the conversation platform
// consumed by the engine.
type ConversationService interface {
	GetByID(ctx context.Context, conversationID string) (*domain.Conversation, error)
	AddMember(ctx context.Context, conversationID string, member domain.ConversationMember) error
	DispatchActivity(ctx context.Context, conversationID string, activity domain.Activity) error
	TransferToAgent(ctx context.Context, conversationID, agentID string) error
	GetUserConversationCounts(ctx context.Context, userIDs []string, workspaceID string) (map[string]int, error)
}

// TeamService resolves team rosters and attendance schedules.
type TeamService interface {
	GetByID(ctx context.Context, teamID string) (*domain.Team, error)
}

// UserService resolves user directory entries.
type UserService interface {
	GetAll(ctx context.Context, userIDs []string) ([]domain.User, error)
}

// RuleSource is the read surface of the distribution rule store.
type RuleSource interface {
	GetByWorkspace(ctx context.Context, workspaceID string) (*domain.DistributionRule, error)
	GetActiveWorkspaceIDs(ctx context.Context) ([]string, error)
}

// PendingSource is the read surface of the pending distribution store.
type PendingSource interface {
	GetPending(ctx context.Context, workspaceID string, limit, offset int) ([]*domain.PendingDistribution, error)
}

// AssignmentLogStore is the append-only assignment audit log.
type AssignmentLogStore interface {
	Save(ctx context.Context, entry *domain.AssignmentLogEntry) error
	GetLastAssignment(ctx context.Context, teamID string) (*domain.AssignmentLogEntry, error)
	GetLastAssignedAt(ctx context.Context, agentIDs []string) (map[string]time.Time, error)
}
