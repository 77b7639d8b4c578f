package service_test

import (
	"testing"
	"time"

	"github.com/mtlprog/convodist/internal/domain"
	"github.com/mtlprog/convodist/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workload(id string, conversations int, lastAssigned *time.Time) domain.AgentWorkload {
	return domain.AgentWorkload{
		ID:                   id,
		Name:                 "agent-" + id,
		TeamID:               "team-1",
		CurrentConversations: conversations,
		LastAssignedAt:       lastAssigned,
	}
}

func baseState(rule *domain.DistributionRule, candidates ...domain.AgentWorkload) *service.PipelineState {
	return &service.PipelineState{
		Rule: rule,
		Pending: &domain.PendingDistribution{
			WorkspaceID:    "ws-1",
			ConversationID: "conv-1",
			TeamID:         "team-1",
		},
		Team:       &domain.Team{ID: "team-1"},
		Now:        time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), // Monday
		Candidates: candidates,
	}
}

func TestPipeline_SelectsLeastLoadedAgent(t *testing.T) {
	rule := &domain.DistributionRule{Active: true, MaxConversationsPerAgent: 2}
	st := baseState(rule,
		workload("a", 2, nil),
		workload("b", 1, nil),
	)

	result := service.NewPipeline().Run(st)

	require.NotNil(t, result.Agent)
	assert.Equal(t, "b", result.Agent.ID)
	assert.Equal(t, []domain.RuleTag{
		domain.RuleTagConversationLimit,
		domain.RuleTagLoadBalancer,
	}, result.ExecutedRules)
}

func TestPipeline_NoAgentWhenAllAtCapacity(t *testing.T) {
	rule := &domain.DistributionRule{Active: true, MaxConversationsPerAgent: 2}
	st := baseState(rule,
		workload("a", 2, nil),
		workload("b", 2, nil),
	)

	result := service.NewPipeline().Run(st)

	assert.Nil(t, result.Agent)
	assert.Equal(t, "capacity", result.AbortedStage)
	// Capacity aborts carry no tag so they are distinguishable from
	// scheduling aborts in the trace.
	assert.Empty(t, string(result.AbortTag))
}

func TestPipeline_NeverSelectsAgentAtLimit(t *testing.T) {
	rule := &domain.DistributionRule{Active: true, MaxConversationsPerAgent: 3}
	st := baseState(rule,
		workload("a", 3, nil),
		workload("b", 5, nil),
		workload("c", 2, nil),
	)

	result := service.NewPipeline().Run(st)

	require.NotNil(t, result.Agent)
	assert.Equal(t, "c", result.Agent.ID)
}

func TestPipeline_AntiRepeatPrefersOtherAgent(t *testing.T) {
	rule := &domain.DistributionRule{Active: true, MaxConversationsPerAgent: 5}
	st := baseState(rule,
		workload("a", 1, nil),
		workload("b", 1, nil),
	)
	st.LastTeamAssignment = &domain.AssignmentLogEntry{AssignedAgentID: "a"}

	result := service.NewPipeline().Run(st)

	require.NotNil(t, result.Agent)
	assert.Equal(t, "b", result.Agent.ID)
}

func TestPipeline_AntiRepeatAcceptsOnlySurvivor(t *testing.T) {
	rule := &domain.DistributionRule{Active: true, MaxConversationsPerAgent: 5}
	st := baseState(rule, workload("a", 1, nil))
	st.LastTeamAssignment = &domain.AssignmentLogEntry{AssignedAgentID: "a"}

	result := service.NewPipeline().Run(st)

	// Availability beats fairness when the last assigned agent is the
	// only one left.
	require.NotNil(t, result.Agent)
	assert.Equal(t, "a", result.Agent.ID)
}

func TestPipeline_RecencyTieBreak(t *testing.T) {
	earlier := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	later := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	rule := &domain.DistributionRule{Active: true, MaxConversationsPerAgent: 5}
	st := baseState(rule,
		workload("a", 1, &later),
		workload("b", 1, &earlier),
	)

	result := service.NewPipeline().Run(st)

	require.NotNil(t, result.Agent)
	assert.Equal(t, "b", result.Agent.ID)
}

func TestPipeline_NeverAssignedSortsFirst(t *testing.T) {
	assigned := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rule := &domain.DistributionRule{Active: true, MaxConversationsPerAgent: 5}
	st := baseState(rule,
		workload("a", 1, &assigned),
		workload("b", 1, nil),
	)

	result := service.NewPipeline().Run(st)

	require.NotNil(t, result.Agent)
	assert.Equal(t, "b", result.Agent.ID)
}

func TestPipeline_WorkingTimeGateBlocksOutsideWindows(t *testing.T) {
	rule := &domain.DistributionRule{
		Active:                           true,
		MaxConversationsPerAgent:         2,
		CheckTeamWorkingTimeConversation: true,
	}
	st := baseState(rule, workload("a", 0, nil))
	st.Team = &domain.Team{
		ID: "team-1",
		AttendancePeriods: map[string][]domain.AttendanceWindow{
			"mon": {{Start: 0, End: 28_800_000}}, // 00:00-08:00
		},
	}
	// Monday 09:00 in the team's reference offset.
	st.Now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	result := service.NewPipeline().Run(st)

	assert.Nil(t, result.Agent)
	assert.Equal(t, domain.RuleTagNotInWorkingTime, result.AbortTag)
	assert.Equal(t, "working-time", result.AbortedStage)
}

func TestPipeline_WorkingTimeGatePassesInsideWindow(t *testing.T) {
	rule := &domain.DistributionRule{
		Active:                           true,
		MaxConversationsPerAgent:         2,
		CheckTeamWorkingTimeConversation: true,
	}
	st := baseState(rule, workload("a", 0, nil))
	st.Team = &domain.Team{
		ID: "team-1",
		AttendancePeriods: map[string][]domain.AttendanceWindow{
			"mon": {{Start: 0, End: 28_800_000}},
		},
	}
	st.Now = time.Date(2026, 3, 2, 7, 59, 59, 0, time.UTC)

	result := service.NewPipeline().Run(st)

	require.NotNil(t, result.Agent)
	assert.Contains(t, result.ExecutedRules, domain.RuleTagNotInWorkingTime)
}

func TestPipeline_WorkingTimeGateBlocksWithoutWindows(t *testing.T) {
	rule := &domain.DistributionRule{
		Active:                           true,
		MaxConversationsPerAgent:         2,
		CheckTeamWorkingTimeConversation: true,
	}
	st := baseState(rule, workload("a", 0, nil))

	result := service.NewPipeline().Run(st)

	assert.Nil(t, result.Agent)
	assert.Equal(t, domain.RuleTagNotInWorkingTime, result.AbortTag)
}

func TestPipeline_MemberExclusionDropsDisabledMembers(t *testing.T) {
	rule := &domain.DistributionRule{
		Active:                     true,
		MaxConversationsPerAgent:   5,
		CheckUserWasOnConversation: true,
	}
	st := baseState(rule,
		workload("a", 0, nil),
		workload("b", 1, nil),
	)
	st.ConversationMembers = []domain.ConversationMember{
		{UserID: "a", Type: domain.MemberTypeAgent, Disabled: true},
	}

	result := service.NewPipeline().Run(st)

	require.NotNil(t, result.Agent)
	assert.Equal(t, "b", result.Agent.ID)
}

func TestPipeline_MemberExclusionAbortsWhenEmpty(t *testing.T) {
	rule := &domain.DistributionRule{
		Active:                     true,
		MaxConversationsPerAgent:   5,
		CheckUserWasOnConversation: true,
	}
	st := baseState(rule, workload("a", 0, nil))
	st.ConversationMembers = []domain.ConversationMember{
		{UserID: "a", Type: domain.MemberTypeAgent, Disabled: true},
	}

	result := service.NewPipeline().Run(st)

	assert.Nil(t, result.Agent)
	assert.Equal(t, domain.RuleTagGetOutOfConversation, result.AbortTag)
}

func TestInWorkingTime_WindowBoundaries(t *testing.T) {
	team := &domain.Team{
		ID: "team-1",
		AttendancePeriods: map[string][]domain.AttendanceWindow{
			"mon": {{Start: 32_400_000, End: 61_200_000}}, // 09:00-17:00
		},
	}

	// Inclusive start
	assert.True(t, service.InWorkingTime(team, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)))
	// Exclusive end
	assert.False(t, service.InWorkingTime(team, time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)))
	// Just before end
	assert.True(t, service.InWorkingTime(team, time.Date(2026, 3, 2, 16, 59, 59, 0, time.UTC)))
	// Other weekday has no windows
	assert.False(t, service.InWorkingTime(team, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)))
}

func TestInWorkingTime_RespectsTeamOffset(t *testing.T) {
	team := &domain.Team{
		ID:               "team-1",
		UTCOffsetMinutes: -180, // UTC-3
		AttendancePeriods: map[string][]domain.AttendanceWindow{
			"mon": {{Start: 32_400_000, End: 61_200_000}}, // 09:00-17:00 local
		},
	}

	// 11:00 UTC is 08:00 local, before opening.
	assert.False(t, service.InWorkingTime(team, time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)))
	// 13:00 UTC is 10:00 local, inside the window.
	assert.True(t, service.InWorkingTime(team, time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)))
}
