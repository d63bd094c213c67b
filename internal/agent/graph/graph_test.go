package graph

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/moyeo-ai/moyeo/internal/agent/tool"
	"github.com/moyeo-ai/moyeo/pkg/llm"
	llmmock "github.com/moyeo-ai/moyeo/pkg/llm/mock"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

type recorder struct {
	events []Event
}

func (r *recorder) emit(e Event) { r.events = append(r.events, e) }

func (r *recorder) byKind(k EventKind) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) text() string {
	var b strings.Builder
	for _, e := range r.byKind(EventMessage) {
		b.WriteString(e.Content)
	}
	return b.String()
}

type fakeOptions struct{}

func (fakeOptions) Options(_ context.Context, source, _ string) ([]Option, error) {
	if source != "user_teams" {
		return nil, errors.New("unknown source")
	}
	return []Option{
		{Value: "team-1", Label: "플랫폼팀"},
		{Value: "team-2", Label: "디자인팀"},
	}, nil
}

// testRegistry builds a registry with one search tool and one mutation
// tool, both counting invocations.
func testRegistry(t *testing.T, searchCalls, deleteCalls *atomic.Int32, searchResult string) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry()
	if err := r.Register(tool.Tool{
		Name:        "kg_search",
		Description: "검색",
		Category:    tool.CategoryQuery,
		Handler: func(_ context.Context, inv tool.Invocation) (string, error) {
			if inv.UserID == "" {
				t.Error("search invoked without user ID")
			}
			searchCalls.Add(1)
			return searchResult, nil
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(tool.Tool{
		Name:                "delete_team",
		Description:         "팀 삭제",
		Category:            tool.CategoryMutation,
		Modes:               []tool.Mode{tool.ModeSpotlight},
		DisplayTemplate:     "{{team_id}} 팀을 삭제합니다",
		ConfirmationMessage: "정말 삭제할까요?",
		HITLFields: []tool.HITLField{
			{Name: "team_id", Description: "삭제할 팀", Type: "uuid", Required: true,
				InputType: "select", OptionsSource: "user_teams"},
		},
		Handler: func(_ context.Context, _ tool.Invocation) (string, error) {
			deleteCalls.Add(1)
			return "팀이 삭제되었습니다.", nil
		},
	}); err != nil {
		t.Fatal(err)
	}
	return r
}

func toolCallResponse(name, args string) llm.CompletionResponse {
	return llm.CompletionResponse{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: name, Arguments: args}}}
}

func newGraph(t *testing.T, provider llm.Provider, reg *tool.Registry, cp Checkpointer, cfg Config) *Graph {
	t.Helper()
	g, err := New(provider, reg, cp, cfg, WithOptionsLoader(fakeOptions{}))
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestQueryRunSucceedsOnSearchHit(t *testing.T) {
	var searches, deletes atomic.Int32
	reg := testRegistry(t, &searches, &deletes, "검색 결과 (1건):\n1. 배포 파이프라인 결정 (담당자: 김민준)")
	provider := &llmmock.Provider{
		Responses: []llm.CompletionResponse{toolCallResponse("kg_search", `{"query":"배포"}`)},
		Chunks:    [][]llm.Chunk{{{Text: "배포는 "}, {Text: "김민준 님 담당입니다."}, {FinishReason: "stop"}}},
	}
	g := newGraph(t, provider, reg, NewMemoryCheckpointer(), Config{})

	rec := &recorder{}
	err := g.Start(context.Background(), RunInput{
		MeetingID: "m-1", UserID: "u-1", UserName: "이서연", Channel: "text",
		Query: "배포 파이프라인 누가 정했어?",
	}, rec.emit)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := searches.Load(); got != 1 {
		t.Errorf("search invocations = %d, want 1", got)
	}
	if got := rec.text(); got != "배포는 김민준 님 담당입니다." {
		t.Errorf("answer = %q", got)
	}
	if len(rec.byKind(EventDone)) != 1 {
		t.Error("missing done event")
	}
	// Planner + streamed responder; the evaluator is bypassed on a search hit.
	if got := provider.CallCount(); got != 2 {
		t.Errorf("llm calls = %d, want 2", got)
	}
}

func TestDirectAnswerSkipsTools(t *testing.T) {
	var searches, deletes atomic.Int32
	reg := testRegistry(t, &searches, &deletes, "")
	provider := &llmmock.Provider{
		Responses: []llm.CompletionResponse{{Content: "안녕하세요, 부덕이입니다."}},
	}
	g := newGraph(t, provider, reg, NewMemoryCheckpointer(), Config{})

	rec := &recorder{}
	if err := g.Start(context.Background(), RunInput{UserID: "u-1", Query: "안녕"}, rec.emit); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := rec.text(); got != "안녕하세요, 부덕이입니다." {
		t.Errorf("answer = %q", got)
	}
	if searches.Load() != 0 {
		t.Error("tool invoked for a direct answer")
	}
	if got := provider.CallCount(); got != 1 {
		t.Errorf("llm calls = %d, want 1", got)
	}
}

func TestMutationInterruptsWithPayload(t *testing.T) {
	var searches, deletes atomic.Int32
	reg := testRegistry(t, &searches, &deletes, "")
	provider := &llmmock.Provider{
		Responses: []llm.CompletionResponse{toolCallResponse("delete_team", `{"team_id":"team-1"}`)},
	}
	cp := NewMemoryCheckpointer()
	g := newGraph(t, provider, reg, cp, Config{Mode: tool.ModeSpotlight})

	rec := &recorder{}
	err := g.Start(context.Background(), RunInput{UserID: "u-1", Query: "플랫폼팀 삭제해 줘"}, rec.emit)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Start() error = %v, want ErrInterrupted", err)
	}
	if deletes.Load() != 0 {
		t.Fatal("mutation executed before confirmation")
	}

	hitls := rec.byKind(EventHITL)
	if len(hitls) != 1 {
		t.Fatalf("hitl events = %d, want 1", len(hitls))
	}
	p := hitls[0].HITL
	if p.ToolName != "delete_team" {
		t.Errorf("ToolName = %q", p.ToolName)
	}
	if p.HITLRequestID == "" {
		t.Error("missing request ID")
	}
	// The opaque team ID is substituted with its label everywhere visible.
	if got := p.ParamsDisplay["team_id"]; got != "플랫폼팀" {
		t.Errorf("ParamsDisplay[team_id] = %q, want 플랫폼팀", got)
	}
	if got := p.DisplayTemplate; got != "플랫폼팀 팀을 삭제합니다" {
		t.Errorf("DisplayTemplate = %q", got)
	}
	if len(p.RequiredFields) != 1 || len(p.RequiredFields[0].Options) != 2 {
		t.Fatalf("required fields not populated: %+v", p.RequiredFields)
	}

	// The run is checkpointed and loadable for resume.
	cp.mu.Lock()
	if len(cp.entries) != 1 {
		t.Fatalf("checkpoints = %d, want 1", len(cp.entries))
	}
	for _, e := range cp.entries {
		if e.state.HITL == nil || e.state.HITL.Status != HITLPending {
			t.Errorf("checkpointed HITL = %+v", e.state.HITL)
		}
	}
	cp.mu.Unlock()
}

func startInterrupted(t *testing.T, g *Graph, cp *MemoryCheckpointer) (runID string, rec *recorder) {
	t.Helper()
	rec = &recorder{}
	err := g.Start(context.Background(), RunInput{UserID: "u-1", Query: "플랫폼팀 삭제해 줘"}, rec.emit)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Start() error = %v, want ErrInterrupted", err)
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if len(cp.entries) != 1 {
		t.Fatalf("checkpoints = %d, want 1", len(cp.entries))
	}
	for id := range cp.entries {
		runID = id
	}
	return runID, rec
}

func TestResumeConfirmExecutesOnce(t *testing.T) {
	var searches, deletes atomic.Int32
	reg := testRegistry(t, &searches, &deletes, "")
	provider := &llmmock.Provider{
		Responses: []llm.CompletionResponse{toolCallResponse("delete_team", `{"team_id":"team-1"}`)},
	}
	cp := NewMemoryCheckpointer()
	g := newGraph(t, provider, reg, cp, Config{Mode: tool.ModeSpotlight})

	runID, _ := startInterrupted(t, g, cp)

	rec := &recorder{}
	if err := g.Resume(context.Background(), runID, ResumeValue{Action: ActionConfirm}, rec.emit); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if got := deletes.Load(); got != 1 {
		t.Errorf("mutation executions = %d, want 1", got)
	}
	// The success wording reaches the user verbatim, no model rewrite.
	if got := rec.text(); got != "팀이 삭제되었습니다." {
		t.Errorf("answer = %q", got)
	}
	if got := provider.CallCount(); got != 1 {
		t.Errorf("llm calls = %d, want 1 (planner only)", got)
	}

	// The checkpoint is gone after completion; a duplicate resume is refused
	// rather than re-executed.
	err := g.Resume(context.Background(), runID, ResumeValue{Action: ActionConfirm}, rec.emit)
	if !errors.Is(err, meet.ErrNotFound) {
		t.Errorf("duplicate Resume() error = %v, want ErrNotFound", err)
	}
	if got := deletes.Load(); got != 1 {
		t.Errorf("mutation executions after duplicate resume = %d, want 1", got)
	}
}

func TestResumeReplayDoesNotReExecute(t *testing.T) {
	var searches, deletes atomic.Int32
	reg := testRegistry(t, &searches, &deletes, "")
	provider := &llmmock.Provider{}
	cp := NewMemoryCheckpointer()
	g := newGraph(t, provider, reg, cp, Config{Mode: tool.ModeSpotlight})

	// A run whose mutation already executed but whose stream was lost before
	// completion: resuming replays the checkpointed result.
	st := &State{
		RunID: "run-replay", UserID: "u-1", Mode: tool.ModeSpotlight,
		Query: "플랫폼팀 삭제해 줘", SelectedTool: "delete_team",
		ToolCategory: tool.CategoryMutation,
		Results:      []string{"팀이 삭제되었습니다."},
		HITL:         &HITLState{Status: HITLExecuted, RequestID: "req-1", Executed: true},
		Step:         StepEvaluate,
		StartedAt:    time.Now(),
	}
	if err := cp.Save(context.Background(), st); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	if err := g.Resume(context.Background(), "run-replay", ResumeValue{Action: ActionConfirm}, rec.emit); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if deletes.Load() != 0 {
		t.Error("replayed resume re-executed the mutation")
	}
	if got := rec.text(); got != "팀이 삭제되었습니다." {
		t.Errorf("answer = %q", got)
	}
}

func TestResumeCancel(t *testing.T) {
	for _, tc := range []struct {
		name   string
		silent bool
		want   string
	}{
		{"spoken", false, "취소되었습니다."},
		{"silent", true, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var searches, deletes atomic.Int32
			reg := testRegistry(t, &searches, &deletes, "")
			provider := &llmmock.Provider{
				Responses: []llm.CompletionResponse{toolCallResponse("delete_team", `{"team_id":"team-1"}`)},
			}
			cp := NewMemoryCheckpointer()
			g := newGraph(t, provider, reg, cp, Config{Mode: tool.ModeSpotlight})

			runID, _ := startInterrupted(t, g, cp)

			rec := &recorder{}
			err := g.Resume(context.Background(), runID, ResumeValue{Action: ActionCancel, Silent: tc.silent}, rec.emit)
			if err != nil {
				t.Fatalf("Resume() error = %v", err)
			}
			if deletes.Load() != 0 {
				t.Error("cancelled mutation executed")
			}
			if got := rec.text(); got != tc.want {
				t.Errorf("answer = %q, want %q", got, tc.want)
			}
			if len(rec.byKind(EventDone)) != 1 {
				t.Error("missing done event")
			}
		})
	}
}

func TestCompositeQueryRunsFollowUpRound(t *testing.T) {
	var searches, deletes atomic.Int32
	reg := testRegistry(t, &searches, &deletes, "검색 결과 (1건):\n1. 알림 기능 구현 (담당자: 박지훈)")
	provider := &llmmock.Provider{
		Responses: []llm.CompletionResponse{
			toolCallResponse("kg_search", `{"query":"알림 기능 담당자"}`),
			toolCallResponse("kg_search", `{"query":"박지훈 팀원"}`),
		},
		Chunks: [][]llm.Chunk{{{Text: "박지훈 님과 같은 팀에는 최수아, 정다은 님이 있습니다."}, {FinishReason: "stop"}}},
	}
	g := newGraph(t, provider, reg, NewMemoryCheckpointer(), Config{})

	rec := &recorder{}
	err := g.Start(context.Background(), RunInput{
		UserID: "u-1", Query: "알림 기능 담당자가 누구고, 같은 팀 팀원들도 알려줘",
	}, rec.emit)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := searches.Load(); got != 2 {
		t.Errorf("search invocations = %d, want 2 (composite)", got)
	}
	// The second planning round asks the referential follow-up, not the
	// original utterance.
	second := provider.Requests[1]
	last := second.Messages[len(second.Messages)-1]
	if !strings.Contains(last.Content, "이전에 찾은") {
		t.Errorf("follow-up round query = %q, want referential sub-query", last.Content)
	}
	if rec.text() == "" {
		t.Error("no final answer")
	}
}

func TestReferentialQueryIsNotComposite(t *testing.T) {
	g := newGraph(t, &llmmock.Provider{}, tool.NewRegistry(), NewMemoryCheckpointer(), Config{})
	if g.isComposite("이전에 찾은 담당자와 같은 팀의 팀원들은 누구인가?") {
		t.Error("sub-query classified as composite")
	}
	if !g.isComposite("배포 담당이 누구고 같은 팀 팀원은?") {
		t.Error("composite query not detected")
	}
	if g.isComposite("내일 회의 언제야?") {
		t.Error("plain query classified as composite")
	}
}

func TestEvaluatorReplanningClearsResults(t *testing.T) {
	var searches, deletes atomic.Int32
	reg := testRegistry(t, &searches, &deletes, "관련 항목이 확실하지 않습니다")
	provider := &llmmock.Provider{
		Responses: []llm.CompletionResponse{
			toolCallResponse("kg_search", `{"query":"아무거나"}`),
			{Content: `{"evaluation":"불충분","status":"replanning","reason":"다른 접근 필요"}`},
			{Content: "죄송하지만 관련 기록을 찾지 못했습니다."},
		},
	}
	g := newGraph(t, provider, reg, NewMemoryCheckpointer(), Config{})

	rec := &recorder{}
	if err := g.Start(context.Background(), RunInput{UserID: "u-1", Query: "모호한 질문"}, rec.emit); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := rec.text(); got != "죄송하지만 관련 기록을 찾지 못했습니다." {
		t.Errorf("answer = %q", got)
	}
	// Replanning wiped the first round's result before the direct answer.
	if got := provider.CallCount(); got != 3 {
		t.Errorf("llm calls = %d, want 3", got)
	}
}

func TestPlannerFailureApologises(t *testing.T) {
	var searches, deletes atomic.Int32
	reg := testRegistry(t, &searches, &deletes, "")
	provider := &llmmock.Provider{Err: errors.New("upstream down")}
	g := newGraph(t, provider, reg, NewMemoryCheckpointer(), Config{})

	rec := &recorder{}
	if err := g.Start(context.Background(), RunInput{UserID: "u-1", Query: "뭐든"}, rec.emit); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := rec.text(); !strings.Contains(got, "죄송합니다") {
		t.Errorf("answer = %q, want apology", got)
	}
}

func TestVoiceModeHidesMutations(t *testing.T) {
	var searches, deletes atomic.Int32
	reg := testRegistry(t, &searches, &deletes, "")
	provider := &llmmock.Provider{
		Responses: []llm.CompletionResponse{{Content: "음성에서는 팀을 삭제할 수 없어요."}},
	}
	g := newGraph(t, provider, reg, NewMemoryCheckpointer(), Config{Mode: tool.ModeVoice})

	rec := &recorder{}
	if err := g.Start(context.Background(), RunInput{UserID: "u-1", Query: "팀 삭제해 줘"}, rec.emit); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(provider.Requests) != 1 {
		t.Fatalf("llm calls = %d, want 1", len(provider.Requests))
	}
	for _, d := range provider.Requests[0].Tools {
		if d.Name == "delete_team" {
			t.Error("mutation tool offered to voice agent")
		}
	}
}

func TestMemoryCheckpointerExpires(t *testing.T) {
	now := time.Now()
	cp := NewMemoryCheckpointer(WithMemoryTTL(time.Minute), WithMemoryClock(func() time.Time { return now }))

	st := &State{RunID: "run-1", Step: StepPlan}
	if err := cp.Save(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if _, err := cp.Load(context.Background(), "run-1"); err != nil {
		t.Fatalf("Load() before expiry error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := cp.Load(context.Background(), "run-1"); !errors.Is(err, meet.ErrNotFound) {
		t.Errorf("Load() after expiry error = %v, want ErrNotFound", err)
	}
}
