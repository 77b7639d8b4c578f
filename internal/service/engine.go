package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mtlprog/convodist/internal/domain"
)

const (
	defaultBatchSize   = 50
	defaultCallTimeout = 10 * time.Second
)

// TickStats summarizes one engine pass.
type TickStats struct {
	Workspaces int
	Processed  int
	Assigned   int
	Failed     int
}

// Engine runs the periodic load-balancing pass. It only reads the
// pending distribution store; hasMember flips arrive through the
// eligibility tracker once the transfer takes effect.
type Engine struct {
	Rules         RuleSource
	Pending       PendingSource
	Log           AssignmentLogStore
	Conversations ConversationService
	Teams         TeamService
	Users         UserService
	Gate          Gate
	Pipeline      *Pipeline

	// BatchSize bounds pending rows pulled per workspace per pass;
	// defaults to 50.
	BatchSize int

	// CallTimeout bounds each collaborator call; a timeout fails only
	// that conversation for that tick.
	CallTimeout time.Duration

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (e *Engine) batchSize() int {
	if e.BatchSize <= 0 {
		return defaultBatchSize
	}
	return e.BatchSize
}

func (e *Engine) callTimeout() time.Duration {
	if e.CallTimeout <= 0 {
		return defaultCallTimeout
	}
	return e.CallTimeout
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) pipeline() *Pipeline {
	if e.Pipeline != nil {
		return e.Pipeline
	}
	return NewPipeline()
}

// Start runs distribution passes on the given period until the context
// is cancelled. Pass failures are logged, never fatal.
func (e *Engine) Start(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	slog.Info("distribution engine started", "period", period, "batch_size", e.batchSize())

	for {
		select {
		case <-ctx.Done():
			slog.Info("distribution engine stopped")
			return
		case <-ticker.C:
			if _, err := e.RunOnce(ctx); err != nil {
				slog.Error("distribution pass failed", "error", err)
			}
		}
	}
}

// RunOnce executes a single distribution pass over all workspaces with
// an active rule.
func (e *Engine) RunOnce(ctx context.Context) (TickStats, error) {
	var stats TickStats

	run, err := e.Gate.ShouldRun(ctx)
	if err != nil {
		return stats, fmt.Errorf("check run gate: %w", err)
	}
	if !run {
		slog.Debug("distribution disabled for this process, skipping pass")
		return stats, nil
	}

	workspaceIDs, err := e.Rules.GetActiveWorkspaceIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("get active workspaces: %w", err)
	}
	stats.Workspaces = len(workspaceIDs)

	for _, workspaceID := range workspaceIDs {
		processed, assigned, failed := e.distributeWorkspace(ctx, workspaceID)
		stats.Processed += processed
		stats.Assigned += assigned
		stats.Failed += failed
	}

	slog.Info("distribution pass completed",
		"workspaces", stats.Workspaces,
		"processed", stats.Processed,
		"assigned", stats.Assigned,
		"failed", stats.Failed,
	)
	return stats, nil
}

// distributeWorkspace walks the workspace's pending queue in batches,
// oldest first. A failed conversation never aborts the batch.
func (e *Engine) distributeWorkspace(ctx context.Context, workspaceID string) (processed, assigned, failed int) {
	limit := e.batchSize()
	offset := 0

	for {
		batch, err := e.Pending.GetPending(ctx, workspaceID, limit, offset)
		if err != nil {
			slog.Error("failed to fetch pending conversations",
				"workspace_id", workspaceID,
				"error", err,
			)
			return processed, assigned, failed
		}
		if len(batch) == 0 {
			return processed, assigned, failed
		}

		for _, pending := range batch {
			processed++
			ok, err := e.processConversation(ctx, pending)
			if err != nil {
				failed++
				slog.Error("conversation distribution failed",
					"workspace_id", pending.WorkspaceID,
					"conversation_id", pending.ConversationID,
					"error", err,
				)
				continue
			}
			if ok {
				assigned++
			}
		}

		if len(batch) < limit {
			return processed, assigned, failed
		}
		offset += limit
	}
}

// processConversation runs the assignment pipeline for one pending
// conversation and applies the side effects on success. Returns false
// with a nil error for the expected no-agent outcomes: the row stays
// pending and is retried next tick.
func (e *Engine) processConversation(ctx context.Context, pending *domain.PendingDistribution) (bool, error) {
	// Defensive re-check: the rule may have been deactivated since the
	// workspace list was fetched.
	rule, err := e.Rules.GetByWorkspace(ctx, pending.WorkspaceID)
	if err != nil {
		if errors.Is(err, domain.ErrRuleNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("reload rule: %w", err)
	}
	if !rule.Active {
		return false, nil
	}

	candidates, err := e.resolveCandidates(ctx, pending, rule)
	if err != nil {
		return false, err
	}
	if len(candidates.workloads) == 0 {
		slog.Warn("no distribution candidates in team roster",
			"workspace_id", pending.WorkspaceID,
			"conversation_id", pending.ConversationID,
			"team_id", pending.TeamID,
		)
		return false, nil
	}

	state := &PipelineState{
		Rule:                rule,
		Pending:             pending,
		Team:                candidates.team,
		Now:                 e.now(),
		ConversationMembers: candidates.conversationMembers,
		LastTeamAssignment:  candidates.lastTeamAssignment,
		Candidates:          candidates.workloads,
	}

	result := e.pipeline().Run(state)
	if result.Agent == nil {
		slog.Warn("no eligible agent for conversation",
			"workspace_id", pending.WorkspaceID,
			"conversation_id", pending.ConversationID,
			"team_id", pending.TeamID,
			"stage", result.AbortedStage,
			"rule_tag", string(result.AbortTag),
		)
		return false, nil
	}

	if err := e.applyAssignment(ctx, pending, rule, result); err != nil {
		return false, err
	}
	return true, nil
}

// candidateSet bundles everything resolved from collaborators for one
// conversation's pipeline run.
type candidateSet struct {
	team                *domain.Team
	workloads           []domain.AgentWorkload
	conversationMembers []domain.ConversationMember
	lastTeamAssignment  *domain.AssignmentLogEntry
}

// resolveCandidates builds the live workload snapshot for the team's
// line agents: roster minus supervisors minus the rule's exclusions,
// hydrated with one batched conversation count and one batched
// last-assignment lookup.
func (e *Engine) resolveCandidates(
	ctx context.Context,
	pending *domain.PendingDistribution,
	rule *domain.DistributionRule,
) (*candidateSet, error) {
	set := &candidateSet{}

	team, err := callWithTimeout(ctx, e.callTimeout(), func(ctx context.Context) (*domain.Team, error) {
		return e.Teams.GetByID(ctx, pending.TeamID)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve team %s: %w", pending.TeamID, err)
	}
	set.team = team

	var agentIDs []string
	for _, ru := range team.RoleUsers {
		if ru.Permission.CanViewHistoricConversation {
			continue
		}
		if rule.IsExcluded(ru.UserID) {
			continue
		}
		agentIDs = append(agentIDs, ru.UserID)
	}
	if len(agentIDs) == 0 {
		return set, nil
	}

	users, err := callWithTimeout(ctx, e.callTimeout(), func(ctx context.Context) ([]domain.User, error) {
		return e.Users.GetAll(ctx, agentIDs)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}

	counts, err := callWithTimeout(ctx, e.callTimeout(), func(ctx context.Context) (map[string]int, error) {
		return e.Conversations.GetUserConversationCounts(ctx, agentIDs, pending.WorkspaceID)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve conversation counts: %w", err)
	}

	lastAssigned, err := e.Log.GetLastAssignedAt(ctx, agentIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve last assigned timestamps: %w", err)
	}

	for _, user := range users {
		workload := domain.AgentWorkload{
			ID:                   user.ID,
			Name:                 user.Name,
			Email:                user.Email,
			TeamID:               team.ID,
			CurrentConversations: counts[user.ID],
		}
		if at, ok := lastAssigned[user.ID]; ok {
			t := at
			workload.LastAssignedAt = &t
		}
		set.workloads = append(set.workloads, workload)
	}

	if rule.CheckUserWasOnConversation {
		conversation, err := callWithTimeout(ctx, e.callTimeout(), func(ctx context.Context) (*domain.Conversation, error) {
			return e.Conversations.GetByID(ctx, pending.ConversationID)
		})
		if err != nil {
			return nil, fmt.Errorf("resolve conversation %s: %w", pending.ConversationID, err)
		}
		set.conversationMembers = conversation.Members
	}

	last, err := e.Log.GetLastAssignment(ctx, team.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve last team assignment: %w", err)
	}
	set.lastTeamAssignment = last

	return set, nil
}

// applyAssignment performs the three side effects of a resolved
// assignment. The activity post and the audit append are best-effort;
// the transfer is not, since without it the assignment did not happen.
func (e *Engine) applyAssignment(
	ctx context.Context,
	pending *domain.PendingDistribution,
	rule *domain.DistributionRule,
	result PipelineResult,
) error {
	agent := result.Agent

	e.postDistributionActivity(ctx, pending, agent)

	err := e.withTimeoutErr(ctx, func(ctx context.Context) error {
		return e.Conversations.TransferToAgent(ctx, pending.ConversationID, agent.ID)
	})
	if err != nil {
		return fmt.Errorf("transfer conversation to agent %s: %w", agent.ID, err)
	}

	entry := &domain.AssignmentLogEntry{
		ID:                uuid.NewString(),
		ConversationID:    pending.ConversationID,
		WorkspaceID:       pending.WorkspaceID,
		TeamID:            pending.TeamID,
		Order:             pending.Order,
		Priority:          pending.Priority,
		AssignedAgentID:   agent.ID,
		AssignedAgentName: agent.Name,
		ExecutedRules:     result.ExecutedRules,
		AssignmentData: map[string]any{
			"agentEmail":               agent.Email,
			"agentConversations":       agent.CurrentConversations,
			"maxConversationsPerAgent": rule.MaxConversationsPerAgent,
		},
	}
	if err := e.Log.Save(ctx, entry); err != nil {
		slog.Error("failed to append assignment log entry",
			"conversation_id", pending.ConversationID,
			"agent_id", agent.ID,
			"error", err,
		)
	}

	slog.Info("conversation distributed",
		"workspace_id", pending.WorkspaceID,
		"conversation_id", pending.ConversationID,
		"team_id", pending.TeamID,
		"agent_id", agent.ID,
		"executed_rules", result.ExecutedRules,
	)
	return nil
}

// postDistributionActivity writes the system-authored note into the
// conversation, creating a system member first if none exists. Failures
// are logged and swallowed; the note is not critical to the transfer.
func (e *Engine) postDistributionActivity(ctx context.Context, pending *domain.PendingDistribution, agent *domain.AgentWorkload) {
	conversation, err := callWithTimeout(ctx, e.callTimeout(), func(ctx context.Context) (*domain.Conversation, error) {
		return e.Conversations.GetByID(ctx, pending.ConversationID)
	})
	if err != nil {
		slog.Warn("failed to load conversation for activity post",
			"conversation_id", pending.ConversationID,
			"error", err,
		)
		return
	}

	hasSystemMember := false
	for _, m := range conversation.Members {
		if m.Type == domain.MemberTypeSystem {
			hasSystemMember = true
			break
		}
	}
	if !hasSystemMember {
		err := e.withTimeoutErr(ctx, func(ctx context.Context) error {
			return e.Conversations.AddMember(ctx, pending.ConversationID, domain.ConversationMember{
				Type: domain.MemberTypeSystem,
			})
		})
		if err != nil {
			slog.Warn("failed to add system member",
				"conversation_id", pending.ConversationID,
				"error", err,
			)
			return
		}
	}

	err = e.withTimeoutErr(ctx, func(ctx context.Context) error {
		return e.Conversations.DispatchActivity(ctx, pending.ConversationID, domain.Activity{
			Type:    "automatic_distribution",
			Message: fmt.Sprintf("Conversation automatically assigned to %s", agent.Name),
		})
	})
	if err != nil {
		slog.Warn("failed to dispatch distribution activity",
			"conversation_id", pending.ConversationID,
			"error", err,
		)
	}
}

// withTimeoutErr runs one collaborator call under the per-call timeout.
func (e *Engine) withTimeoutErr(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout())
	defer cancel()
	return fn(ctx)
}

// callWithTimeout runs one value-returning collaborator call under the
// per-call timeout.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
