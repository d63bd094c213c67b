package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/moyeo-ai/moyeo/internal/agent/graph"
	"github.com/moyeo-ai/moyeo/internal/agent/tool"
	backendmock "github.com/moyeo-ai/moyeo/internal/backend/mock"
	"github.com/moyeo-ai/moyeo/internal/meetingctx"
	"github.com/moyeo-ai/moyeo/pkg/llm"
	llmmock "github.com/moyeo-ai/moyeo/pkg/llm/mock"
)

type sseEvent struct {
	Name string
	Data graph.Event
}

func parseSSE(t *testing.T, body []byte) []sseEvent {
	t.Helper()
	var out []sseEvent
	sc := bufio.NewScanner(bytes.NewReader(body))
	var name string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var ev graph.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				t.Fatalf("bad event data %q: %v", line, err)
			}
			out = append(out, sseEvent{Name: name, Data: ev})
		}
	}
	return out
}

func answerText(events []sseEvent) string {
	var b strings.Builder
	for _, e := range events {
		if e.Data.Kind == graph.EventMessage {
			b.WriteString(e.Data.Content)
		}
	}
	return b.String()
}

// newTestService builds a service whose registry carries one query and one
// mutation tool, both scripted through the shared llm mock.
func newTestService(t *testing.T, provider llm.Provider, deletes *atomic.Int32) *Service {
	t.Helper()
	reg := tool.NewRegistry()
	if err := reg.Register(tool.Tool{
		Name:        "kg_search",
		Description: "검색",
		Category:    tool.CategoryQuery,
		Handler: func(_ context.Context, _ tool.Invocation) (string, error) {
			return "검색 결과 (1건):\n1. 스프린트 계획 (담당자: 김민준)", nil
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(tool.Tool{
		Name:                "delete_team",
		Description:         "팀 삭제",
		Category:            tool.CategoryMutation,
		Modes:               []tool.Mode{tool.ModeSpotlight},
		DisplayTemplate:     "{{team_id}} 팀을 삭제합니다",
		ConfirmationMessage: "정말 삭제할까요?",
		Handler: func(_ context.Context, _ tool.Invocation) (string, error) {
			deletes.Add(1)
			return "팀이 삭제되었습니다.", nil
		},
	}); err != nil {
		t.Fatal(err)
	}

	cp := graph.NewMemoryCheckpointer()
	options := NewDirectoryOptions(&backendmock.Directory{})
	voice, err := graph.New(provider, reg, cp, graph.Config{Mode: tool.ModeVoice},
		graph.WithOptionsLoader(options))
	if err != nil {
		t.Fatal(err)
	}
	spotlight, err := graph.New(provider, reg, cp, graph.Config{Mode: tool.ModeSpotlight},
		graph.WithOptionsLoader(options))
	if err != nil {
		t.Fatal(err)
	}

	hub := NewContextHub(func(meetingID string) *meetingctx.Manager {
		return meetingctx.New(meetingID,
			meetingctx.NewDetector(provider, nil),
			meetingctx.NewSummarizer(provider),
			nil,
			meetingctx.Config{DisableQuickCheck: true, TopicCheckInterval: 1000, L1UpdateTurnThreshold: 1000})
	})
	return NewService(voice, spotlight, hub, NewRouter())
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func readAll(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRunStreamsAnswer(t *testing.T) {
	var deletes atomic.Int32
	provider := &llmmock.Provider{
		Responses: []llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "kg_search", Arguments: `{"query":"스프린트"}`}}},
		},
		Chunks: [][]llm.Chunk{{{Text: "스프린트 계획은 김민준 님 담당입니다."}, {FinishReason: "stop"}}},
	}
	srv := httptest.NewServer(newTestService(t, provider, &deletes).Handler())
	defer srv.Close()

	resp := post(t, srv, "/agent/runs",
		`{"user_id":"u-1","user_name":"이서연","query":"스프린트 계획 누가 담당해?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := parseSSE(t, readAll(t, resp))
	if got := answerText(events); got != "스프린트 계획은 김민준 님 담당입니다." {
		t.Errorf("answer = %q", got)
	}
	last := events[len(events)-1]
	if last.Data.Kind != graph.EventDone {
		t.Errorf("final event = %q, want done", last.Data.Kind)
	}
}

func TestRunRejectsMissingFields(t *testing.T) {
	var deletes atomic.Int32
	srv := httptest.NewServer(newTestService(t, &llmmock.Provider{}, &deletes).Handler())
	defer srv.Close()

	resp := post(t, srv, "/agent/runs", `{"user_id":"u-1"}`)
	readAll(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestMutationRoundTrip(t *testing.T) {
	var deletes atomic.Int32
	provider := &llmmock.Provider{
		Responses: []llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "delete_team", Arguments: `{"team_id":"team-1"}`}}},
		},
	}
	srv := httptest.NewServer(newTestService(t, provider, &deletes).Handler())
	defer srv.Close()

	// Round 1: the run interrupts with the confirmation payload.
	resp := post(t, srv, "/agent/runs", `{"user_id":"u-1","query":"팀 삭제해 줘"}`)
	events := parseSSE(t, readAll(t, resp))
	var hitl *graph.HITLPayload
	for _, e := range events {
		if e.Data.Kind == graph.EventHITL {
			hitl = e.Data.HITL
		}
	}
	if hitl == nil {
		t.Fatal("no hitl event in stream")
	}
	if hitl.RunID == "" || hitl.HITLRequestID == "" {
		t.Fatalf("incomplete payload: %+v", hitl)
	}
	if deletes.Load() != 0 {
		t.Fatal("mutation ran before confirmation")
	}

	// Round 2: confirm executes exactly once and echoes the success wording.
	resp = post(t, srv, "/agent/runs/"+hitl.RunID+"/resume", `{"action":"confirm"}`)
	events = parseSSE(t, readAll(t, resp))
	if got := deletes.Load(); got != 1 {
		t.Errorf("mutation executions = %d, want 1", got)
	}
	if got := answerText(events); got != "팀이 삭제되었습니다." {
		t.Errorf("answer = %q", got)
	}

	// Round 3: the completed run is gone.
	resp = post(t, srv, "/agent/runs/"+hitl.RunID+"/resume", `{"action":"confirm"}`)
	readAll(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("duplicate resume status = %d, want 404", resp.StatusCode)
	}
	if got := deletes.Load(); got != 1 {
		t.Errorf("mutation executions after duplicate = %d, want 1", got)
	}
}

func TestResumeRejectsBadAction(t *testing.T) {
	var deletes atomic.Int32
	srv := httptest.NewServer(newTestService(t, &llmmock.Provider{}, &deletes).Handler())
	defer srv.Close()

	resp := post(t, srv, "/agent/runs/run-1/resume", `{"action":"maybe"}`)
	readAll(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUtteranceIngestAccepted(t *testing.T) {
	var deletes atomic.Int32
	srv := httptest.NewServer(newTestService(t, &llmmock.Provider{}, &deletes).Handler())
	defer srv.Close()

	resp := post(t, srv, "/agent/meetings/m-1/utterances",
		`{"id":1,"speaker_id":"u-1","speaker_name":"이서연","text":"배포 일정 이야기해요"}`)
	readAll(t, resp)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
}

func TestDropContext(t *testing.T) {
	var deletes atomic.Int32
	svc := newTestService(t, &llmmock.Provider{}, &deletes)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	svc.hub.Acquire("m-1")
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/agent/meetings/m-1/context", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	readAll(t, resp)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if len(svc.hub.Active()) != 0 {
		t.Error("engine not dropped")
	}
}
