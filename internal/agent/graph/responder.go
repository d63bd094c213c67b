package graph

import (
	"context"
	"log/slog"
	"strings"

	"github.com/moyeo-ai/moyeo/pkg/llm"
)

const responderSystemPrompt = `당신은 회의 도우미 '부덕이'입니다. 도구 결과와
회의 맥락을 바탕으로 사용자의 질문에 한국어로 답변하세요. 결과에 없는
내용을 지어내지 마세요.`

const responderVoiceStyle = `음성으로 읽어 줄 답변입니다. 두세 문장 이내로
짧고 자연스러운 구어체로 답하세요. 목록, 마크다운, 특수 기호를 쓰지 마세요.`

const responderGuidePrompt = `당신은 회의 도우미 '부덕이'입니다. 사용자가
서비스 사용법을 물었습니다. 회의 생성, 팀 관리, 음성 호출("부덕아"),
스포트라이트 검색 기능을 기준으로 간결하게 안내하세요.`

// respond produces the final answer. Completed mutations echo the tool's
// result verbatim so the success wording reaches the user unaltered;
// cancellations and planner short-circuits use the prepared text; everything
// else streams a model-generated answer grounded in the collected results.
func (g *Graph) respond(ctx context.Context, st *State, emit Emitter) {
	// Cancelled confirmation: the prepared message, or silence.
	if st.HITL != nil && st.HITL.Status == HITLCancelled {
		if st.Final != "" {
			emit(Event{Kind: EventMessage, Content: st.Final})
		}
		return
	}

	// Completed mutation: the tool result is the answer.
	if g.isMutationSuccess(st.LastResult()) {
		st.Final = st.LastResult()
		emit(Event{Kind: EventMessage, Content: st.Final})
		return
	}

	// Planner direct answer or apology.
	if st.Final != "" {
		emit(Event{Kind: EventMessage, Content: st.Final})
		return
	}

	stream, err := g.llm.StreamCompletion(ctx, llm.CompletionRequest{
		SystemPrompt: g.responderPrompt(st),
		Messages:     g.responderMessages(st),
		Temperature:  0.4,
	})
	if err != nil {
		slog.Error("responder stream failed to start", "runID", st.RunID, "error", err)
		g.metrics.RecordProviderError(ctx, "llm", "respond")
		st.Final = g.cfg.ApologyMessage
		emit(Event{Kind: EventMessage, Content: st.Final})
		return
	}

	var b strings.Builder
	for chunk := range stream {
		if chunk.FinishReason == "error" {
			slog.Error("responder stream errored", "runID", st.RunID)
			g.metrics.RecordProviderError(ctx, "llm", "respond")
			break
		}
		if chunk.Text == "" {
			continue
		}
		b.WriteString(chunk.Text)
		emit(Event{Kind: EventMessage, Content: chunk.Text})
	}
	st.Final = b.String()

	if st.Final == "" {
		st.Final = g.cfg.ApologyMessage
		emit(Event{Kind: EventMessage, Content: st.Final})
	}
}

func (g *Graph) responderPrompt(st *State) string {
	if st.QueryClass == ClassGuide {
		return responderGuidePrompt
	}
	prompt := responderSystemPrompt
	if st.Channel == "voice" {
		prompt += "\n\n" + responderVoiceStyle
	}
	return prompt
}

func (g *Graph) responderMessages(st *State) []llm.Message {
	var msgs []llm.Message
	if st.Context != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: "회의 맥락:\n" + st.Context})
	}
	for _, r := range st.Results {
		msgs = append(msgs, llm.Message{Role: "tool", Content: r})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: st.Query, Name: st.UserName})
	return msgs
}
