package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/moyeo-ai/moyeo/internal/meetingctx"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// ManagerFactory builds the context engine for one meeting.
type ManagerFactory func(meetingID string) *meetingctx.Manager

// ContextHub tracks the live context engines, one per active meeting. The
// worker feeds finalized utterances through Ingest; runs read the prompt
// context snapshot at start. Engines are created lazily and dropped when
// the meeting ends.
type ContextHub struct {
	factory     ManagerFactory
	transcripts meetingctx.TranscriptSource

	mu       sync.Mutex
	managers map[string]*meetingctx.Manager
}

// HubOption configures a ContextHub.
type HubOption func(*ContextHub)

// WithTranscriptSource enables L0 re-hydration during Prewarm.
func WithTranscriptSource(src meetingctx.TranscriptSource) HubOption {
	return func(h *ContextHub) { h.transcripts = src }
}

// NewContextHub creates an empty hub.
func NewContextHub(factory ManagerFactory, opts ...HubOption) *ContextHub {
	h := &ContextHub{
		factory:  factory,
		managers: make(map[string]*meetingctx.Manager),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Acquire returns the meeting's engine, creating it on first use.
func (h *ContextHub) Acquire(meetingID string) *meetingctx.Manager {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.managers[meetingID]
	if !ok {
		m = h.factory(meetingID)
		h.managers[meetingID] = m
	}
	return m
}

// Prewarm creates the engine ahead of the first utterance and restores its
// state from the latest snapshot, re-hydrating the raw window from the
// transcript store when one is wired.
func (h *ContextHub) Prewarm(ctx context.Context, meetingID string) error {
	m := h.Acquire(meetingID)
	if err := m.Restore(ctx, h.transcripts); err != nil {
		return fmt.Errorf("agent: prewarm %s: %w", meetingID, err)
	}
	return nil
}

// Ingest feeds one finalized utterance into the meeting's engine. The call
// may block on summarization, matching the engine's contract.
func (h *ContextHub) Ingest(ctx context.Context, meetingID string, u meet.Utterance) {
	h.Acquire(meetingID).AddUtterance(ctx, u)
}

// PromptContext renders the meeting's context for an agent prompt, or ""
// when no engine is live.
func (h *ContextHub) PromptContext(meetingID string, maxRecent int) string {
	h.mu.Lock()
	m, ok := h.managers[meetingID]
	h.mu.Unlock()
	if !ok {
		return ""
	}
	return m.PromptContext(maxRecent)
}

// Drop discards the meeting's engine. The final snapshot is the engine's
// own concern; Drop only forgets the in-memory state.
func (h *ContextHub) Drop(meetingID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.managers, meetingID)
}

// Active returns the meeting IDs with a live engine.
func (h *ContextHub) Active() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.managers))
	for id := range h.managers {
		ids = append(ids, id)
	}
	return ids
}
