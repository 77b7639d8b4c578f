package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mtlprog/convodist/internal/domain"
)

// logColumns is the shared list of columns for assignment log queries.
var logColumns = []string{
	"id", "conversation_id", "workspace_id", "team_id",
	"conversation_order", "priority", "assigned_agent_id", "assigned_agent_name",
	"executed_rules", "assignment_data", "created_at",
}

// AssignmentLogRepository handles the append-only assignment audit log.
type AssignmentLogRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentLogRepository creates a new AssignmentLogRepository.
func NewAssignmentLogRepository(pool *pgxpool.Pool) *AssignmentLogRepository {
	return &AssignmentLogRepository{pool: pool}
}

// scanLogEntry scans a single row into an AssignmentLogEntry struct.
func scanLogEntry(row pgx.Row) (*domain.AssignmentLogEntry, error) {
	var entry domain.AssignmentLogEntry
	var rules []string
	var dataJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.ConversationID,
		&entry.WorkspaceID,
		&entry.TeamID,
		&entry.Order,
		&entry.Priority,
		&entry.AssignedAgentID,
		&entry.AssignedAgentName,
		&rules,
		&dataJSON,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan assignment log entry: %w", err)
	}

	entry.ExecutedRules = make([]domain.RuleTag, len(rules))
	for i, tag := range rules {
		entry.ExecutedRules[i] = domain.RuleTag(tag)
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &entry.AssignmentData); err != nil {
			return nil, fmt.Errorf("parse assignment_data: %w", err)
		}
	}

	return &entry, nil
}

// Save appends an assignment log entry. Entries are never updated.
func (r *AssignmentLogRepository) Save(ctx context.Context, entry *domain.AssignmentLogEntry) error {
	rules := make([]string, len(entry.ExecutedRules))
	for i, tag := range entry.ExecutedRules {
		rules[i] = string(tag)
	}

	dataJSON, err := json.Marshal(entry.AssignmentData)
	if err != nil {
		return fmt.Errorf("marshal assignment_data: %w", err)
	}

	query, args, err := psql.
		Insert("assignment_log").
		Columns("id", "conversation_id", "workspace_id", "team_id",
			"conversation_order", "priority", "assigned_agent_id", "assigned_agent_name",
			"executed_rules", "assignment_data").
		Values(entry.ID, entry.ConversationID, entry.WorkspaceID, entry.TeamID,
			entry.Order, entry.Priority, entry.AssignedAgentID, entry.AssignedAgentName,
			rules, dataJSON).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Save query for conversation %s: %w", entry.ConversationID, err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&entry.CreatedAt); err != nil {
		return fmt.Errorf("save assignment log entry: %w", err)
	}
	return nil
}

// GetLastAssignment retrieves the most recent entry for a team.
// Returns (nil, nil) when the team has no assignments yet.
func (r *AssignmentLogRepository) GetLastAssignment(ctx context.Context, teamID string) (*domain.AssignmentLogEntry, error) {
	query, args, err := psql.
		Select(logColumns...).
		From("assignment_log").
		Where(sq.Eq{"team_id": teamID}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetLastAssignment query for team %s: %w", teamID, err)
	}

	entry, err := scanLogEntry(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

// GetLastAssignedAt returns the most recent assignment timestamp per
// agent in a single batched query. Agents with no assignments are
// absent from the map.
func (r *AssignmentLogRepository) GetLastAssignedAt(ctx context.Context, agentIDs []string) (map[string]time.Time, error) {
	result := make(map[string]time.Time, len(agentIDs))
	if len(agentIDs) == 0 {
		return result, nil
	}

	query, args, err := psql.
		Select("assigned_agent_id", "MAX(created_at)").
		From("assignment_log").
		Where(sq.Eq{"assigned_agent_id": agentIDs}).
		GroupBy("assigned_agent_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetLastAssignedAt query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query last assigned timestamps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var agentID string
		var at time.Time
		if err := rows.Scan(&agentID, &at); err != nil {
			return nil, fmt.Errorf("scan last assigned timestamp: %w", err)
		}
		result[agentID] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
