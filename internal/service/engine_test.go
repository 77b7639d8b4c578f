package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mtlprog/convodist/internal/domain"
	"github.com/mtlprog/convodist/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRules struct {
	rules       map[string]*domain.DistributionRule
	activeIDs   []string
	activeCalls int
}

func (f *fakeRules) GetByWorkspace(_ context.Context, workspaceID string) (*domain.DistributionRule, error) {
	rule, ok := f.rules[workspaceID]
	if !ok {
		return nil, domain.ErrRuleNotFound
	}
	return rule, nil
}

func (f *fakeRules) GetActiveWorkspaceIDs(_ context.Context) ([]string, error) {
	f.activeCalls++
	return f.activeIDs, nil
}

type fakePending struct {
	rows []*domain.PendingDistribution
}

func (f *fakePending) GetPending(_ context.Context, workspaceID string, limit, offset int) ([]*domain.PendingDistribution, error) {
	var matched []*domain.PendingDistribution
	for _, row := range f.rows {
		if row.WorkspaceID == workspaceID {
			matched = append(matched, row)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

type fakeLog struct {
	entries  []*domain.AssignmentLogEntry
	lastTeam map[string]*domain.AssignmentLogEntry
	lastAt   map[string]time.Time
	saveErr  error
}

func (f *fakeLog) Save(_ context.Context, entry *domain.AssignmentLogEntry) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLog) GetLastAssignment(_ context.Context, teamID string) (*domain.AssignmentLogEntry, error) {
	return f.lastTeam[teamID], nil
}

func (f *fakeLog) GetLastAssignedAt(_ context.Context, agentIDs []string) (map[string]time.Time, error) {
	result := make(map[string]time.Time)
	for _, id := range agentIDs {
		if at, ok := f.lastAt[id]; ok {
			result[id] = at
		}
	}
	return result, nil
}

type transferCall struct {
	conversationID string
	agentID        string
}

type fakeConversations struct {
	conversations map[string]*domain.Conversation
	counts        map[string]int
	transferErr   error

	transfers  []transferCall
	activities []domain.Activity
	addedTypes []domain.MemberType
}

func (f *fakeConversations) GetByID(_ context.Context, conversationID string) (*domain.Conversation, error) {
	conversation, ok := f.conversations[conversationID]
	if !ok {
		return nil, errors.New("conversation not found")
	}
	return conversation, nil
}

func (f *fakeConversations) AddMember(_ context.Context, conversationID string, member domain.ConversationMember) error {
	f.addedTypes = append(f.addedTypes, member.Type)
	if conversation, ok := f.conversations[conversationID]; ok {
		conversation.Members = append(conversation.Members, member)
	}
	return nil
}

func (f *fakeConversations) DispatchActivity(_ context.Context, _ string, activity domain.Activity) error {
	f.activities = append(f.activities, activity)
	return nil
}

func (f *fakeConversations) TransferToAgent(_ context.Context, conversationID, agentID string) error {
	if f.transferErr != nil {
		return f.transferErr
	}
	f.transfers = append(f.transfers, transferCall{conversationID: conversationID, agentID: agentID})
	return nil
}

func (f *fakeConversations) GetUserConversationCounts(_ context.Context, userIDs []string, _ string) (map[string]int, error) {
	result := make(map[string]int)
	for _, id := range userIDs {
		result[id] = f.counts[id]
	}
	return result, nil
}

type fakeTeams struct {
	teams map[string]*domain.Team
	calls int
}

func (f *fakeTeams) GetByID(_ context.Context, teamID string) (*domain.Team, error) {
	f.calls++
	team, ok := f.teams[teamID]
	if !ok {
		return nil, errors.New("team not found")
	}
	return team, nil
}

type fakeUsers struct {
	users map[string]domain.User
}

func (f *fakeUsers) GetAll(_ context.Context, userIDs []string) ([]domain.User, error) {
	var result []domain.User
	for _, id := range userIDs {
		if user, ok := f.users[id]; ok {
			result = append(result, user)
		}
	}
	return result, nil
}

type fakeGate bool

func (g fakeGate) ShouldRun(context.Context) (bool, error) {
	return bool(g), nil
}

// fixture wires an engine over one workspace with a two-agent team and
// a single pending conversation.
type fixture struct {
	engine        *service.Engine
	rules         *fakeRules
	pending       *fakePending
	log           *fakeLog
	conversations *fakeConversations
	teams         *fakeTeams
}

func newFixture() *fixture {
	rules := &fakeRules{
		rules: map[string]*domain.DistributionRule{
			"ws-1": {
				ID:                       "rule-1",
				WorkspaceID:              "ws-1",
				Active:                   true,
				MaxConversationsPerAgent: 2,
			},
		},
		activeIDs: []string{"ws-1"},
	}
	pending := &fakePending{
		rows: []*domain.PendingDistribution{
			{
				WorkspaceID:    "ws-1",
				ConversationID: "conv-1",
				TeamID:         "team-1",
				State:          domain.ConversationStateOpen,
			},
		},
	}
	log := &fakeLog{
		lastTeam: map[string]*domain.AssignmentLogEntry{},
		lastAt:   map[string]time.Time{},
	}
	conversations := &fakeConversations{
		conversations: map[string]*domain.Conversation{
			"conv-1": {
				ID:    "conv-1",
				State: domain.ConversationStateOpen,
			},
		},
		counts: map[string]int{"a": 2, "b": 1},
	}
	teams := &fakeTeams{
		teams: map[string]*domain.Team{
			"team-1": {
				ID: "team-1",
				RoleUsers: []domain.RoleUser{
					{UserID: "a"},
					{UserID: "b"},
				},
			},
		},
	}
	users := &fakeUsers{
		users: map[string]domain.User{
			"a": {ID: "a", Name: "Alice", Email: "alice@example.com"},
			"b": {ID: "b", Name: "Bob", Email: "bob@example.com"},
		},
	}

	engine := &service.Engine{
		Rules:         rules,
		Pending:       pending,
		Log:           log,
		Conversations: conversations,
		Teams:         teams,
		Users:         users,
		Gate:          fakeGate(true),
		Now: func() time.Time {
			return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // Monday
		},
	}

	return &fixture{
		engine:        engine,
		rules:         rules,
		pending:       pending,
		log:           log,
		conversations: conversations,
		teams:         teams,
	}
}

func TestEngine_AssignsLeastLoadedAgent(t *testing.T) {
	f := newFixture()

	stats, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Workspaces)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Assigned)
	assert.Equal(t, 0, stats.Failed)

	require.Len(t, f.conversations.transfers, 1)
	assert.Equal(t, "conv-1", f.conversations.transfers[0].conversationID)
	assert.Equal(t, "b", f.conversations.transfers[0].agentID)

	require.Len(t, f.log.entries, 1)
	entry := f.log.entries[0]
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "b", entry.AssignedAgentID)
	assert.Equal(t, "Bob", entry.AssignedAgentName)
	assert.Equal(t, []domain.RuleTag{
		domain.RuleTagConversationLimit,
		domain.RuleTagLoadBalancer,
	}, entry.ExecutedRules)
	assert.Equal(t, "bob@example.com", entry.AssignmentData["agentEmail"])
	assert.Equal(t, 2, entry.AssignmentData["maxConversationsPerAgent"])
}

func TestEngine_PostsActivityWithSystemMember(t *testing.T) {
	f := newFixture()

	_, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, f.conversations.addedTypes, 1)
	assert.Equal(t, domain.MemberTypeSystem, f.conversations.addedTypes[0])

	require.Len(t, f.conversations.activities, 1)
	assert.Equal(t, "automatic_distribution", f.conversations.activities[0].Type)
	assert.Contains(t, f.conversations.activities[0].Message, "Bob")
}

func TestEngine_ReusesExistingSystemMember(t *testing.T) {
	f := newFixture()
	f.conversations.conversations["conv-1"].Members = []domain.ConversationMember{
		{UserID: "sys", Type: domain.MemberTypeSystem},
	}

	_, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.conversations.addedTypes)
	assert.Len(t, f.conversations.activities, 1)
}

func TestEngine_NoAgentWhenAllAtCapacity(t *testing.T) {
	f := newFixture()
	f.conversations.counts = map[string]int{"a": 2, "b": 2}

	stats, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	// No eligible agent is not a failure; the row stays pending for the
	// next pass.
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Assigned)
	assert.Equal(t, 0, stats.Failed)
	assert.Empty(t, f.conversations.transfers)
	assert.Empty(t, f.log.entries)
}

func TestEngine_AvoidsLastAssignedAgent(t *testing.T) {
	f := newFixture()
	f.conversations.counts = map[string]int{"a": 1, "b": 1}
	f.log.lastTeam["team-1"] = &domain.AssignmentLogEntry{AssignedAgentID: "b"}

	_, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, f.conversations.transfers, 1)
	assert.Equal(t, "a", f.conversations.transfers[0].agentID)
}

func TestEngine_SkipsInactiveRule(t *testing.T) {
	f := newFixture()
	f.rules.rules["ws-1"].Active = false

	stats, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Assigned)
	assert.Equal(t, 0, stats.Failed)
	assert.Zero(t, f.teams.calls)
	assert.Empty(t, f.conversations.transfers)
}

func TestEngine_SkipsDeletedRule(t *testing.T) {
	f := newFixture()
	delete(f.rules.rules, "ws-1")

	stats, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Failed)
	assert.Empty(t, f.conversations.transfers)
}

func TestEngine_GateDisabledSkipsPass(t *testing.T) {
	f := newFixture()
	f.engine.Gate = fakeGate(false)

	stats, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, service.TickStats{}, stats)
	assert.Zero(t, f.rules.activeCalls)
}

func TestEngine_TransferFailureLeavesNoLogEntry(t *testing.T) {
	f := newFixture()
	f.conversations.transferErr = errors.New("transfer rejected")

	stats, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Assigned)
	assert.Equal(t, 1, stats.Failed)
	assert.Empty(t, f.log.entries)
}

func TestEngine_LogFailureDoesNotFailAssignment(t *testing.T) {
	f := newFixture()
	f.log.saveErr = errors.New("log unavailable")

	stats, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Assigned)
	assert.Equal(t, 0, stats.Failed)
	assert.Len(t, f.conversations.transfers, 1)
}

func TestEngine_ExcludedAgentsNeverSelected(t *testing.T) {
	f := newFixture()
	f.rules.rules["ws-1"].ExcludedUserIDs = []string{"b"}

	_, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, f.conversations.transfers, 1)
	assert.Equal(t, "a", f.conversations.transfers[0].agentID)
}

func TestEngine_SupervisorsNeverSelected(t *testing.T) {
	f := newFixture()
	f.teams.teams["team-1"].RoleUsers = append(f.teams.teams["team-1"].RoleUsers, domain.RoleUser{
		UserID:     "sup",
		Permission: domain.Permission{CanViewHistoricConversation: true},
	})
	f.conversations.counts["sup"] = 0

	_, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, f.conversations.transfers, 1)
	assert.Equal(t, "b", f.conversations.transfers[0].agentID)
}

func TestEngine_PagesThroughPendingBatches(t *testing.T) {
	f := newFixture()
	f.engine.BatchSize = 1
	f.pending.rows = append(f.pending.rows, &domain.PendingDistribution{
		WorkspaceID:    "ws-1",
		ConversationID: "conv-2",
		TeamID:         "team-1",
		State:          domain.ConversationStateOpen,
	})
	f.conversations.conversations["conv-2"] = &domain.Conversation{
		ID:    "conv-2",
		State: domain.ConversationStateOpen,
	}

	stats, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.Assigned)
	assert.Len(t, f.conversations.transfers, 2)
}

func TestEngine_EmptyRosterStaysPending(t *testing.T) {
	f := newFixture()
	f.teams.teams["team-1"].RoleUsers = nil

	stats, err := f.engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Assigned)
	assert.Equal(t, 0, stats.Failed)
	assert.Empty(t, f.conversations.transfers)
}
