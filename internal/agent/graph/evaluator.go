package graph

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/moyeo-ai/moyeo/internal/agent/tool"
	"github.com/moyeo-ai/moyeo/pkg/llm"
)

const evaluatorSystemPrompt = `당신은 회의 도우미의 결과 평가 모듈입니다.
도구 실행 결과가 사용자의 질문에 답하기에 충분한지 판단하세요.
반드시 JSON 하나만 출력하세요:
{"evaluation": "판단 근거 요약", "status": "success|retry|replanning", "reason": "짧은 이유"}
- success: 결과로 답변할 수 있음
- retry: 같은 접근으로 다시 시도할 가치가 있음
- replanning: 접근 자체를 바꿔야 함 (기존 결과는 버려짐)`

var errNoJSONBody = errors.New("graph: no JSON object in model output")

type evalVerdict struct {
	Evaluation string `json:"evaluation"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
}

// evaluate judges the newest tool result and routes the run: respond on
// success, replan on rejection. Deterministic checks run before the model
// is consulted.
func (g *Graph) evaluate(ctx context.Context, st *State) {
	last := st.LastResult()

	// A completed mutation is always a success.
	if g.isMutationSuccess(last) {
		g.succeed(st)
		return
	}

	// A search that returned hits answers the question; the model only
	// judges ambiguous or empty outcomes.
	if strings.Contains(last, tool.SearchResultHeader) && !strings.Contains(last, tool.NoSearchResults) {
		g.succeed(st)
		return
	}

	// Hard ceiling: answer with what we have rather than loop forever.
	if st.Iterations >= g.cfg.MaxIterations || st.Retries >= g.cfg.MaxRetries {
		slog.Warn("evaluator forcing success",
			"runID", st.RunID, "iterations", st.Iterations, "retries", st.Retries)
		g.succeed(st)
		return
	}

	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: evaluatorSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: "질문: " + g.activeQuery(st) + "\n\n도구 결과:\n" + last},
		},
		Temperature: 0,
	})
	if err != nil {
		// Degrade to answering with the collected results.
		slog.Error("evaluator completion failed", "runID", st.RunID, "error", err)
		g.metrics.RecordProviderError(ctx, "llm", "evaluate")
		g.succeed(st)
		return
	}

	v, err := parseEvalVerdict(resp.Content)
	if err != nil {
		slog.Warn("evaluator verdict unparseable", "runID", st.RunID, "error", err)
		g.succeed(st)
		return
	}

	switch v.Status {
	case EvalRetry:
		st.EvalStatus = EvalRetry
		st.Retries++
		st.clearSelection()
		st.Step = StepPlan
	case EvalReplanning:
		st.EvalStatus = EvalReplanning
		st.Retries++
		st.AddResult(ResultsReset)
		st.clearSelection()
		st.Step = StepPlan
	default:
		g.succeed(st)
	}
}

// succeed marks the round successful and either enters the composite
// follow-up round or moves on to the response.
func (g *Graph) succeed(st *State) {
	st.EvalStatus = EvalSuccess
	if st.Subquery == "" && g.isComposite(st.Query) {
		// First round of a composite query resolved; the planner issues the
		// teammate follow-up next.
		st.clearSelection()
		st.Step = StepPlan
		return
	}
	st.Step = StepRespond
}

// parseEvalVerdict extracts the verdict JSON from the model output,
// tolerating surrounding prose and code fences.
func parseEvalVerdict(content string) (*evalVerdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, errNoJSONBody
	}
	var v evalVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return nil, err
	}
	return &v, nil
}
