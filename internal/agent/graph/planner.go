package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/moyeo-ai/moyeo/pkg/llm"
)

const plannerSystemPrompt = `당신은 회의 도우미 '부덕이'의 계획 수립 모듈입니다.
사용자의 요청을 처리하기 위해 제공된 도구 중 하나를 선택하거나, 도구가
필요 없으면 직접 답변하세요. 회의 맥락과 이전 도구 결과를 참고하세요.
도구 인자는 반드시 요청에서 추출한 값만 사용하고, 추측하지 마세요.`

// plan decides the next action: short-circuit after a completed mutation,
// issue the follow-up round of a composite query, fall back to a direct
// answer when retries are exhausted, or ask the model to pick a tool.
func (g *Graph) plan(ctx context.Context, st *State, emit Emitter) {
	// A completed mutation never needs another tool round.
	if g.isMutationSuccess(st.LastResult()) {
		st.Step = StepRespond
		return
	}

	// Second round of a composite query: the first search resolved the
	// assignee, now resolve their teammates.
	if st.Subquery == "" && len(st.Results) > 0 && g.isComposite(st.Query) {
		st.Subquery = g.cfg.FollowUpQuery
		st.clearSelection()
		slog.Debug("composite query follow-up", "runID", st.RunID, "subquery", st.Subquery)
	}

	if st.Retries >= g.cfg.MaxRetries {
		// Answer directly from whatever was collected.
		slog.Warn("planner retry budget exhausted", "runID", st.RunID, "retries", st.Retries)
		st.Step = StepRespond
		return
	}

	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: plannerSystemPrompt,
		Messages:     g.plannerMessages(st),
		Tools:        g.tools.Definitions(st.Mode),
		Temperature:  0.1,
	})
	if err != nil {
		slog.Error("planner completion failed", "runID", st.RunID, "error", err)
		g.metrics.RecordProviderError(ctx, "llm", "plan")
		st.Final = g.cfg.ApologyMessage
		st.Step = StepRespond
		return
	}

	if len(resp.ToolCalls) == 0 {
		// Direct answer, no tool needed.
		st.Final = resp.Content
		st.Step = StepRespond
		return
	}

	tc := resp.ToolCalls[0]
	args := map[string]any{}
	if tc.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
			slog.Warn("planner tool arguments not valid JSON", "runID", st.RunID, "tool", tc.Name, "error", err)
			st.AddResult(fmt.Sprintf("도구 인자 해석 실패: %s", tc.Name))
			st.Retries++
			return
		}
	}

	t, ok := g.tools.Get(tc.Name)
	if !ok {
		st.AddResult(fmt.Sprintf("알 수 없는 도구: %s", tc.Name))
		st.Retries++
		return
	}

	st.SelectedTool = t.Name
	st.ToolArgs = args
	st.ToolCategory = t.Category
	st.Plan = fmt.Sprintf("%s(%s)", t.Name, tc.Arguments)
	st.Step = StepExecute
	emit(Event{Kind: EventStatus, Content: "executing"})
}

// plannerMessages assembles the model conversation: meeting context, prior
// tool results, and the active query (the sub-query once one was issued).
func (g *Graph) plannerMessages(st *State) []llm.Message {
	var msgs []llm.Message
	if st.Context != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: "회의 맥락:\n" + st.Context})
	}
	for _, r := range st.Results {
		msgs = append(msgs, llm.Message{Role: "tool", Content: r})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: g.activeQuery(st), Name: st.UserName})
	return msgs
}

// activeQuery returns the sub-query when the run is in its follow-up round.
func (g *Graph) activeQuery(st *State) string {
	if st.Subquery != "" {
		return st.Subquery
	}
	return st.Query
}

// isMutationSuccess reports whether a tool result announces a completed
// mutation.
func (g *Graph) isMutationSuccess(result string) bool {
	if result == "" {
		return false
	}
	for _, marker := range g.cfg.SuccessMarkers {
		if strings.Contains(result, marker) {
			return true
		}
	}
	return false
}

// isComposite reports whether a query asks for both an assignee and that
// assignee's teammates, needing two tool rounds. Queries that already carry
// a referential token are themselves sub-queries and never composite.
func (g *Graph) isComposite(query string) bool {
	for _, tok := range g.cfg.ReferentialTokens {
		if strings.Contains(query, tok) {
			return false
		}
	}
	var assignment, team bool
	for _, h := range g.cfg.AssignmentHints {
		if strings.Contains(query, h) {
			assignment = true
			break
		}
	}
	for _, h := range g.cfg.TeamHints {
		if strings.Contains(query, h) {
			team = true
			break
		}
	}
	return assignment && team
}
