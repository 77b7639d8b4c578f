package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mtlprog/convodist/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// ruleColumns is the shared list of columns for distribution rule queries.
var ruleColumns = []string{
	"id", "workspace_id", "active", "max_conversations_per_agent",
	"check_user_was_on_conversation", "check_team_working_time_conversation",
	"excluded_user_ids", "created_at", "updated_at",
}

// DistributionRuleRepository handles database operations for distribution rules.
type DistributionRuleRepository struct {
	pool *pgxpool.Pool
}

// NewDistributionRuleRepository creates a new DistributionRuleRepository.
func NewDistributionRuleRepository(pool *pgxpool.Pool) *DistributionRuleRepository {
	return &DistributionRuleRepository{pool: pool}
}

// scanRule scans a single row into a DistributionRule struct.
func scanRule(row pgx.Row) (*domain.DistributionRule, error) {
	var rule domain.DistributionRule
	err := row.Scan(
		&rule.ID,
		&rule.WorkspaceID,
		&rule.Active,
		&rule.MaxConversationsPerAgent,
		&rule.CheckUserWasOnConversation,
		&rule.CheckTeamWorkingTimeConversation,
		&rule.ExcludedUserIDs,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, fmt.Errorf("scan distribution rule: %w", err)
	}
	return &rule, nil
}

// Create inserts a new rule. Returns ErrRuleExists if the workspace
// already has one.
func (r *DistributionRuleRepository) Create(ctx context.Context, rule *domain.DistributionRule) error {
	if rule.ExcludedUserIDs == nil {
		rule.ExcludedUserIDs = []string{}
	}

	query, args, err := psql.
		Insert("distribution_rules").
		Columns("workspace_id", "active", "max_conversations_per_agent",
			"check_user_was_on_conversation", "check_team_working_time_conversation",
			"excluded_user_ids").
		Values(rule.WorkspaceID, rule.Active, rule.MaxConversationsPerAgent,
			rule.CheckUserWasOnConversation, rule.CheckTeamWorkingTimeConversation,
			rule.ExcludedUserIDs).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Create query for workspace %s: %w", rule.WorkspaceID, err)
	}

	err = r.pool.QueryRow(ctx, query, args...).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrRuleExists
		}
		return fmt.Errorf("create distribution rule: %w", err)
	}
	return nil
}

// GetByWorkspace retrieves the rule for a workspace.
func (r *DistributionRuleRepository) GetByWorkspace(ctx context.Context, workspaceID string) (*domain.DistributionRule, error) {
	query, args, err := psql.
		Select(ruleColumns...).
		From("distribution_rules").
		Where(sq.Eq{"workspace_id": workspaceID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByWorkspace query for workspace %s: %w", workspaceID, err)
	}

	return scanRule(r.pool.QueryRow(ctx, query, args...))
}

// Update replaces the mutable fields of an existing rule.
// Returns ErrRuleNotFound if the workspace has no rule.
func (r *DistributionRuleRepository) Update(ctx context.Context, rule *domain.DistributionRule) error {
	if rule.ExcludedUserIDs == nil {
		rule.ExcludedUserIDs = []string{}
	}

	query, args, err := psql.
		Update("distribution_rules").
		Set("active", rule.Active).
		Set("max_conversations_per_agent", rule.MaxConversationsPerAgent).
		Set("check_user_was_on_conversation", rule.CheckUserWasOnConversation).
		Set("check_team_working_time_conversation", rule.CheckTeamWorkingTimeConversation).
		Set("excluded_user_ids", rule.ExcludedUserIDs).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"workspace_id": rule.WorkspaceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build Update query for workspace %s: %w", rule.WorkspaceID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update distribution rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// Delete removes the rule for a workspace.
// Returns ErrRuleNotFound if the workspace has no rule.
func (r *DistributionRuleRepository) Delete(ctx context.Context, workspaceID string) error {
	query, args, err := psql.
		Delete("distribution_rules").
		Where(sq.Eq{"workspace_id": workspaceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build Delete query for workspace %s: %w", workspaceID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete distribution rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// List retrieves rules ordered by creation time, newest last.
func (r *DistributionRuleRepository) List(ctx context.Context, limit, offset int) ([]*domain.DistributionRule, error) {
	query, args, err := psql.
		Select(ruleColumns...).
		From("distribution_rules").
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build List query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query distribution rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.DistributionRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return rules, nil
}

// Count returns the total number of rules, for listing pagination.
func (r *DistributionRuleRepository) Count(ctx context.Context) (int, error) {
	query, args, err := psql.
		Select("COUNT(*)").
		From("distribution_rules").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build Count query: %w", err)
	}

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count distribution rules: %w", err)
	}
	return count, nil
}

// GetActiveWorkspaceIDs returns workspaces whose rule is active,
// letting the engine skip inactive workspaces entirely.
func (r *DistributionRuleRepository) GetActiveWorkspaceIDs(ctx context.Context) ([]string, error) {
	query, args, err := psql.
		Select("workspace_id").
		From("distribution_rules").
		Where(sq.Eq{"active": true}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetActiveWorkspaceIDs query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query active workspaces: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan workspace id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return ids, nil
}
