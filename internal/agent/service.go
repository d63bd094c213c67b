package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/moyeo-ai/moyeo/internal/agent/graph"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// contextRecentTurns is how many raw utterances the prompt context carries
// alongside the topic summaries.
const contextRecentTurns = 10

// Service is the orchestration HTTP surface. Runs stream their events over
// SSE; an interrupted mutation ends the stream after the confirmation
// payload and is continued by the resume endpoint.
type Service struct {
	voice     *graph.Graph
	spotlight *graph.Graph
	hub       *ContextHub
	router    *Router
}

// NewService wires the two graph instances (one per agent mode) with the
// context hub and the pre-router.
func NewService(voice, spotlight *graph.Graph, hub *ContextHub, router *Router) *Service {
	return &Service{voice: voice, spotlight: spotlight, hub: hub, router: router}
}

// Handler returns the orchestration routes:
//
//	POST   /agent/runs                          — start a run, SSE response
//	POST   /agent/runs/{runID}/resume           — resume after confirmation, SSE
//	POST   /agent/meetings/{meetingID}/utterances — ingest a finalized utterance
//	POST   /agent/meetings/{meetingID}/prewarm  — restore the context engine
//	DELETE /agent/meetings/{meetingID}/context  — drop the context engine
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /agent/runs", s.handleRun)
	mux.HandleFunc("POST /agent/runs/{runID}/resume", s.handleResume)
	mux.HandleFunc("POST /agent/meetings/{meetingID}/utterances", s.handleUtterance)
	mux.HandleFunc("POST /agent/meetings/{meetingID}/prewarm", s.handlePrewarm)
	mux.HandleFunc("DELETE /agent/meetings/{meetingID}/context", s.handleDropContext)
	return mux
}

type runRequest struct {
	MeetingID string `json:"meeting_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`

	// Mode is "voice" or "spotlight" (default).
	Mode string `json:"mode"`

	// Channel is "voice" or "text"; it shapes the response register.
	Channel string `json:"channel"`

	Query string `json:"query"`
}

func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Query == "" {
		http.Error(w, "user_id and query are required", http.StatusBadRequest)
		return
	}

	g := s.spotlight
	if req.Mode == "voice" {
		g = s.voice
	}
	channel := req.Channel
	if channel == "" {
		channel = "text"
	}

	in := graph.RunInput{
		MeetingID:  req.MeetingID,
		UserID:     req.UserID,
		UserName:   req.UserName,
		Channel:    channel,
		Query:      req.Query,
		QueryClass: s.router.Classify(req.Query),
	}
	if req.MeetingID != "" {
		in.Context = s.hub.PromptContext(req.MeetingID, contextRecentTurns)
	}

	sse := newSSEWriter(w)
	err := g.Start(r.Context(), in, sse.emit)
	switch {
	case err == nil, errors.Is(err, graph.ErrInterrupted):
	case errors.Is(err, context.Canceled):
		// Client went away mid-stream.
	default:
		slog.Error("agent run failed", "userID", req.UserID, "error", err)
		sse.emit(graph.Event{Kind: graph.EventError, Content: "run failed"})
	}
}

func (s *Service) handleResume(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	var rv graph.ResumeValue
	if err := json.NewDecoder(r.Body).Decode(&rv); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if rv.Action != graph.ActionConfirm && rv.Action != graph.ActionCancel {
		http.Error(w, "action must be confirm or cancel", http.StatusBadRequest)
		return
	}

	// Interrupts only come from mutations, which only the spotlight graph
	// can raise.
	sse := newSSEWriter(w)
	err := s.spotlight.Resume(r.Context(), runID, rv, sse.emit)
	switch {
	case err == nil, errors.Is(err, graph.ErrInterrupted):
	case errors.Is(err, meet.ErrNotFound) && !sse.started:
		http.Error(w, "unknown or expired run", http.StatusNotFound)
	case errors.Is(err, context.Canceled):
	default:
		slog.Error("agent resume failed", "runID", runID, "error", err)
		sse.emit(graph.Event{Kind: graph.EventError, Content: "resume failed"})
	}
}

type utteranceRequest struct {
	ID          int64   `json:"id"`
	SpeakerID   string  `json:"speaker_id"`
	SpeakerName string  `json:"speaker_name"`
	Text        string  `json:"text"`
	StartMS     int64   `json:"start_ms"`
	EndMS       int64   `json:"end_ms"`
	Confidence  float64 `json:"confidence"`
}

func (s *Service) handleUtterance(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("meetingID")
	var req utteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	u := meet.Utterance{
		ID:          req.ID,
		SpeakerID:   req.SpeakerID,
		SpeakerName: req.SpeakerName,
		Text:        req.Text,
		StartMS:     req.StartMS,
		EndMS:       req.EndMS,
		Timestamp:   time.Now(),
		Confidence:  req.Confidence,
	}
	// Ingestion may block on summarization; the uploader never waits for it.
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 60*time.Second)
		defer cancel()
		s.hub.Ingest(ctx, meetingID, u)
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) handlePrewarm(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("meetingID")
	if err := s.hub.Prewarm(r.Context(), meetingID); err != nil {
		slog.Error("context prewarm failed", "meetingID", meetingID, "error", err)
		http.Error(w, "prewarm failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleDropContext(w http.ResponseWriter, r *http.Request) {
	s.hub.Drop(r.PathValue("meetingID"))
	w.WriteHeader(http.StatusNoContent)
}

// sseWriter streams graph events as server-sent events. Headers are written
// lazily so a pre-stream failure can still answer with a plain HTTP status.
type sseWriter struct {
	w       http.ResponseWriter
	flush   func()
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	s := &sseWriter{w: w, flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		s.flush = f.Flush
	}
	return s
}

func (s *sseWriter) emit(ev graph.Event) {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.started = true
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal run event", "kind", ev.Kind, "error", err)
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	s.flush()
}
