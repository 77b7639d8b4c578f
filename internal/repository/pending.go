package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mtlprog/convodist/internal/domain"
)

// pendingColumns is the shared list of columns for pending distribution queries.
var pendingColumns = []string{
	"workspace_id", "conversation_id", "team_id", "state",
	"conversation_order", "priority", "has_member", "created_at", "updated_at",
}

// PendingDistributionRepository handles database operations for pending distributions.
type PendingDistributionRepository struct {
	pool *pgxpool.Pool
}

// NewPendingDistributionRepository creates a new PendingDistributionRepository.
func NewPendingDistributionRepository(pool *pgxpool.Pool) *PendingDistributionRepository {
	return &PendingDistributionRepository{pool: pool}
}

// scanPending scans a single row into a PendingDistribution struct.
func scanPending(row pgx.Row) (*domain.PendingDistribution, error) {
	var p domain.PendingDistribution
	err := row.Scan(
		&p.WorkspaceID,
		&p.ConversationID,
		&p.TeamID,
		&p.State,
		&p.Order,
		&p.Priority,
		&p.HasMember,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan pending distribution: %w", err)
	}
	return &p, nil
}

// Upsert creates or updates the row for (workspaceID, conversationID).
// Existing rows keep their created_at so queue order is stable across
// repeated assignment events.
func (r *PendingDistributionRepository) Upsert(ctx context.Context, p *domain.PendingDistribution) error {
	query, args, err := psql.
		Insert("pending_distributions").
		Columns("workspace_id", "conversation_id", "team_id", "state",
			"conversation_order", "priority", "has_member").
		Values(p.WorkspaceID, p.ConversationID, p.TeamID, p.State,
			p.Order, p.Priority, p.HasMember).
		Suffix(`ON CONFLICT (workspace_id, conversation_id) DO UPDATE SET
			team_id = EXCLUDED.team_id,
			state = EXCLUDED.state,
			conversation_order = EXCLUDED.conversation_order,
			priority = EXCLUDED.priority,
			has_member = EXCLUDED.has_member,
			updated_at = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build Upsert query for conversation %s: %w", p.ConversationID, err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert pending distribution: %w", err)
	}
	return nil
}

// UpdateHasMember updates has_member for an existing row only.
// Returns false without error when the row does not exist.
func (r *PendingDistributionRepository) UpdateHasMember(
	ctx context.Context,
	workspaceID string,
	conversationID string,
	hasMember bool,
) (bool, error) {
	query, args, err := psql.
		Update("pending_distributions").
		Set("has_member", hasMember).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{
			"workspace_id":    workspaceID,
			"conversation_id": conversationID,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build UpdateHasMember query for conversation %s: %w", conversationID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update has_member: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes the row for a closed conversation. Deleting an absent
// row is a no-op.
func (r *PendingDistributionRepository) Delete(ctx context.Context, workspaceID, conversationID string) error {
	query, args, err := psql.
		Delete("pending_distributions").
		Where(sq.Eq{
			"workspace_id":    workspaceID,
			"conversation_id": conversationID,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build Delete query for conversation %s: %w", conversationID, err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete pending distribution: %w", err)
	}
	return nil
}

// GetPending retrieves conversations awaiting an agent for a workspace,
// oldest first, then by conversation order.
func (r *PendingDistributionRepository) GetPending(
	ctx context.Context,
	workspaceID string,
	limit int,
	offset int,
) ([]*domain.PendingDistribution, error) {
	query, args, err := psql.
		Select(pendingColumns...).
		From("pending_distributions").
		Where(sq.Eq{
			"workspace_id": workspaceID,
			"has_member":   false,
		}).
		OrderBy("created_at ASC", "conversation_order ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetPending query for workspace %s: %w", workspaceID, err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending distributions: %w", err)
	}
	defer rows.Close()

	var pending []*domain.PendingDistribution
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return pending, nil
}
