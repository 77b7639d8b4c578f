package service

import (
	"time"

	"github.com/mtlprog/convodist/internal/domain"
)

// PipelineState carries everything a stage may consult. Stages are
// pure over this state: the engine performs all external fetches before
// running the pipeline.
type PipelineState struct {
	Rule    *domain.DistributionRule
	Pending *domain.PendingDistribution
	Team    *domain.Team
	Now     time.Time

	// Members of the exact conversation being distributed; only
	// populated when the rule enables the member-exclusion check.
	ConversationMembers []domain.ConversationMember

	// Most recent assignment for the team, nil if none.
	LastTeamAssignment *domain.AssignmentLogEntry

	// Candidates shrinks as stages apply.
	Candidates []domain.AgentWorkload

	// Selected is set by the selection stage.
	Selected *domain.AgentWorkload
}

// StageResult reports the outcome of one stage. Tag names the rule that
// ran; it is appended to the executed trace on a pass and reported as
// the abort reason on a failure. Stages without a named rule leave it
// empty.
type StageResult struct {
	Tag     domain.RuleTag
	Aborted bool
}

// Stage is one named step of the assignment pipeline.
type Stage struct {
	Name string
	Run  func(st *PipelineState) StageResult
}

// PipelineResult is the pipeline verdict for a single conversation.
type PipelineResult struct {
	Agent         *domain.AgentWorkload
	ExecutedRules []domain.RuleTag
	AbortTag      domain.RuleTag
	AbortedStage  string
}

// Pipeline is an ordered list of stages. New rules are added by
// inserting a stage, not by touching engine control flow.
type Pipeline struct {
	stages []Stage
}

// NewPipeline returns the default assignment pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{stages: []Stage{
		{Name: "member-exclusion", Run: memberExclusionStage},
		{Name: "working-time", Run: workingTimeStage},
		{Name: "capacity", Run: capacityStage},
		{Name: "selection", Run: selectionStage},
	}}
}

// Run executes stages in order until one aborts or all pass.
func (p *Pipeline) Run(st *PipelineState) PipelineResult {
	result := PipelineResult{}
	for _, stage := range p.stages {
		out := stage.Run(st)
		if out.Aborted {
			result.AbortTag = out.Tag
			result.AbortedStage = stage.Name
			return result
		}
		if out.Tag != "" {
			result.ExecutedRules = append(result.ExecutedRules, out.Tag)
		}
	}
	result.Agent = st.Selected
	return result
}

// memberExclusionStage drops candidates that are present as disabled
// members of this exact conversation. Only runs when the rule enables
// checkUserWasOnConversation.
func memberExclusionStage(st *PipelineState) StageResult {
	if !st.Rule.CheckUserWasOnConversation {
		return StageResult{}
	}

	disabled := make(map[string]bool)
	for _, m := range st.ConversationMembers {
		if m.Type == domain.MemberTypeAgent && m.Disabled && m.UserID != "" {
			disabled[m.UserID] = true
		}
	}

	kept := st.Candidates[:0]
	for _, c := range st.Candidates {
		if !disabled[c.ID] {
			kept = append(kept, c)
		}
	}
	st.Candidates = kept

	if len(st.Candidates) == 0 {
		return StageResult{Tag: domain.RuleTagGetOutOfConversation, Aborted: true}
	}
	return StageResult{Tag: domain.RuleTagGetOutOfConversation}
}

// workingTimeStage gates distribution on the team's attendance windows.
// Only runs when the rule enables checkTeamWorkingTimeConversation.
func workingTimeStage(st *PipelineState) StageResult {
	if !st.Rule.CheckTeamWorkingTimeConversation {
		return StageResult{}
	}
	if !InWorkingTime(st.Team, st.Now) {
		return StageResult{Tag: domain.RuleTagNotInWorkingTime, Aborted: true}
	}
	return StageResult{Tag: domain.RuleTagNotInWorkingTime}
}

// capacityStage keeps candidates below the per-agent conversation
// limit. An empty result aborts without a tag so a capacity abort is
// distinguishable from a scheduling abort in the trace.
func capacityStage(st *PipelineState) StageResult {
	kept := st.Candidates[:0]
	for _, c := range st.Candidates {
		if c.CurrentConversations < st.Rule.MaxConversationsPerAgent {
			kept = append(kept, c)
		}
	}
	st.Candidates = kept

	if len(st.Candidates) == 0 {
		return StageResult{Aborted: true}
	}
	return StageResult{Tag: domain.RuleTagConversationLimit}
}

// selectionStage ranks survivors by workload and recency and applies
// the anti-repeat preference against the team's last assigned agent.
func selectionStage(st *PipelineState) StageResult {
	SortByWorkload(st.Candidates)

	lastAgentID := ""
	if st.LastTeamAssignment != nil {
		lastAgentID = st.LastTeamAssignment.AssignedAgentID
	}

	st.Selected = PickAgent(st.Candidates, lastAgentID)
	if st.Selected == nil {
		return StageResult{Aborted: true}
	}
	return StageResult{Tag: domain.RuleTagLoadBalancer}
}
