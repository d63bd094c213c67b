// Package meetingctx implements the per-meeting transcript context engine: a
// bounded raw window of recent utterances (L0), an append-only list of
// topic-segmented summaries (L1), LLM-backed topic-change detection and
// recursive summarization, and periodic snapshots to the persistence store.
package meetingctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moyeo-ai/moyeo/internal/observe"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// InitialTopic is the topic every meeting starts under.
const InitialTopic = "Intro"

// Update reasons recorded in logs and carried through updateL1.
const (
	ReasonTopicChange       = "topic_change"
	ReasonManualTopicChange = "manual_topic_change"
	ReasonTurnLimit         = "turn_limit"
	ReasonTimeLimit         = "time_limit"
)

// Config tunes the context engine. Zero values take the defaults.
type Config struct {
	// L0MaxTurns is the raw window capacity. Default 50.
	L0MaxTurns int

	// L0TopicBufferMaxTurns bounds the current topic's buffer so a meeting
	// that never changes topic cannot grow without limit. Default 100.
	L0TopicBufferMaxTurns int

	// TopicWindow is how many trailing utterances the LLM topic detector
	// examines. Default 5.
	TopicWindow int

	// TopicCheckInterval runs the LLM detector every N utterances even
	// without a keyword hit. Default 5.
	TopicCheckInterval int

	// DisableQuickCheck turns off the keyword fast path.
	DisableQuickCheck bool

	// L1UpdateTurnThreshold forces an L1 refresh once this many unsummarized
	// utterances accumulate. Default 10.
	L1UpdateTurnThreshold int

	// L1UpdateInterval forces a refresh after this much time, provided at
	// least L1MinNewForTimeTrigger utterances are waiting. Default 5m / 3.
	L1UpdateInterval       time.Duration
	L1MinNewForTimeTrigger int

	// DBSyncUtteranceThreshold and DBSyncInterval set the snapshot cadence.
	// Defaults 20 utterances / 60s.
	DBSyncUtteranceThreshold int
	DBSyncInterval           time.Duration
}

func (c Config) withDefaults() Config {
	if c.L0MaxTurns <= 0 {
		c.L0MaxTurns = 50
	}
	if c.L0TopicBufferMaxTurns <= 0 {
		c.L0TopicBufferMaxTurns = 100
	}
	if c.TopicWindow <= 0 {
		c.TopicWindow = 5
	}
	if c.TopicCheckInterval <= 0 {
		c.TopicCheckInterval = 5
	}
	if c.L1UpdateTurnThreshold <= 0 {
		c.L1UpdateTurnThreshold = 10
	}
	if c.L1UpdateInterval <= 0 {
		c.L1UpdateInterval = 5 * time.Minute
	}
	if c.L1MinNewForTimeTrigger <= 0 {
		c.L1MinNewForTimeTrigger = 3
	}
	if c.DBSyncUtteranceThreshold <= 0 {
		c.DBSyncUtteranceThreshold = 20
	}
	if c.DBSyncInterval <= 0 {
		c.DBSyncInterval = 60 * time.Second
	}
	return c
}

// Manager is the context engine for one meeting. AddUtterance may suspend on
// LLM calls, but buffers stay consistent throughout: arriving utterances are
// appended under a short-lived lock, and at most one L1 update runs at a
// time per meeting.
type Manager struct {
	meetingID  string
	cfg        Config
	detector   *Detector
	summarizer *Summarizer
	store      SnapshotStore
	metrics    *observe.Metrics
	now        func() time.Time

	// mu guards the buffers and counters. Never held across an LLM call.
	mu               sync.Mutex
	l0               *utteranceRing
	l0topic          *utteranceRing
	l1               []meet.TopicSegment
	currentTopic     string
	currentSegIdx    int // index into l1 for the current topic; -1 when none
	lastSummarizedID int64
	turnsSinceL1     int
	lastL1Update     time.Time
	sinceSync        int
	lastSync         time.Time
	speakers         *speakerTracker

	// updateMu serializes L1 updates per meeting.
	updateMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics overrides the metrics instance, for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) { mgr.now = now }
}

// New creates the context engine for meetingID. store may be nil to disable
// persistence (snapshots are skipped).
func New(meetingID string, detector *Detector, summarizer *Summarizer, store SnapshotStore, cfg Config, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		meetingID:     meetingID,
		cfg:           cfg,
		detector:      detector,
		summarizer:    summarizer,
		store:         store,
		metrics:       observe.DefaultMetrics(),
		now:           time.Now,
		l0:            newUtteranceRing(cfg.L0MaxTurns),
		l0topic:       newUtteranceRing(cfg.L0TopicBufferMaxTurns),
		currentTopic:  InitialTopic,
		currentSegIdx: -1,
		speakers:      newSpeakerTracker(),
	}
	for _, o := range opts {
		o(m)
	}
	m.lastL1Update = m.now()
	m.lastSync = m.now()
	return m
}

// AddUtterance ingests one finalized utterance: stamps its topic, buffers
// it, and runs an L1 update when the triggers fire. Empty text is ignored.
// The call may block on summarization; concurrent AddUtterance calls keep
// buffering while an update runs.
func (m *Manager) AddUtterance(ctx context.Context, u meet.Utterance) {
	if strings.TrimSpace(u.Text) == "" {
		return
	}

	m.mu.Lock()
	u.Topic = m.currentTopic
	m.l0.push(u)
	m.l0topic.push(u)
	m.turnsSinceL1++
	m.sinceSync++
	m.speakers.observe(u)
	m.mu.Unlock()

	m.metrics.Utterances.Add(ctx, 1)

	update, reason, nextTopic := m.decide(ctx, u)
	if update {
		m.updateL1(ctx, reason, nextTopic)
	}
	m.maybeSnapshot(ctx)
}

// decide evaluates the L1 triggers for the just-ingested utterance. The LLM
// topic check runs outside the buffer lock.
func (m *Manager) decide(ctx context.Context, u meet.Utterance) (update bool, reason, nextTopic string) {
	m.mu.Lock()
	unsummarized := len(m.l0topic.since(m.lastSummarizedID))
	if unsummarized == 0 {
		m.mu.Unlock()
		return false, "", ""
	}

	quickHit := !m.cfg.DisableQuickCheck && m.detector.QuickScan(u.Text)
	intervalHit := m.turnsSinceL1%m.cfg.TopicCheckInterval == 0

	var (
		recent  []meet.Utterance
		topic   string
		summary string
	)
	if quickHit || intervalHit {
		recent = m.l0topic.last(m.cfg.TopicWindow)
		topic = m.currentTopic
		if m.currentSegIdx >= 0 {
			summary = m.l1[m.currentSegIdx].Summary
		}
	}
	turnHit := unsummarized >= m.cfg.L1UpdateTurnThreshold
	timeHit := m.now().Sub(m.lastL1Update) >= m.cfg.L1UpdateInterval &&
		unsummarized >= m.cfg.L1MinNewForTimeTrigger
	m.mu.Unlock()

	if recent != nil {
		if res := m.detector.Detect(ctx, recent, topic, summary); res.Changed {
			return true, ReasonTopicChange, res.Topic
		}
	}
	if turnHit {
		return true, ReasonTurnLimit, ""
	}
	if timeHit {
		return true, ReasonTimeLimit, ""
	}
	return false, "", ""
}

// updateL1 summarizes the unsummarized slice of the topic buffer into the
// current segment (recursively) or a new one, then handles the topic switch
// when reason is a topic change. A zero-length unsummarized slice is a no-op.
func (m *Manager) updateL1(ctx context.Context, reason, nextTopic string) {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	m.mu.Lock()
	utterances := m.l0topic.since(m.lastSummarizedID)
	topic := m.currentTopic
	segIdx := m.currentSegIdx
	var prevSummary string
	if segIdx >= 0 {
		prevSummary = m.l1[segIdx].Summary
	}
	m.mu.Unlock()

	if len(utterances) == 0 {
		return
	}

	start := m.now()
	var result SummaryResult
	if segIdx >= 0 {
		result = m.summarizer.RecursiveSummarize(ctx, prevSummary, utterances, topic)
	} else {
		result = m.summarizer.SummarizeTopic(ctx, utterances, topic)
	}
	m.metrics.SummarizeDuration.Record(ctx, m.now().Sub(start).Seconds())

	last := utterances[len(utterances)-1]
	speakers := speakerNames(utterances)

	m.mu.Lock()
	if segIdx >= 0 {
		seg := &m.l1[segIdx]
		seg.Summary = result.Summary
		seg.KeyPoints = result.KeyPoints
		seg.KeyDecisions = result.KeyDecisions
		seg.PendingItems = result.PendingItems
		seg.Keywords = mergeUnique(seg.Keywords, result.Keywords)
		seg.Participants = mergeUnique(seg.Participants, speakers)
		seg.EndUtteranceID = last.ID
	} else {
		m.l1 = append(m.l1, meet.TopicSegment{
			ID:               uuid.NewString(),
			Name:             topic,
			Summary:          result.Summary,
			KeyPoints:        result.KeyPoints,
			KeyDecisions:     result.KeyDecisions,
			PendingItems:     result.PendingItems,
			Participants:     speakers,
			Keywords:         result.Keywords,
			StartUtteranceID: utterances[0].ID,
			EndUtteranceID:   last.ID,
		})
		m.currentSegIdx = len(m.l1) - 1
	}
	m.lastSummarizedID = last.ID

	if reason == ReasonTopicChange || reason == ReasonManualTopicChange {
		m.l0topic.clear()
		m.lastSummarizedID = 0
		m.currentSegIdx = -1
		if nextTopic == "" {
			nextTopic = fmt.Sprintf("Topic_%d", len(m.l1)+1)
		}
		m.currentTopic = nextTopic
		m.metrics.TopicChanges.Add(ctx, 1)
		slog.Info("topic changed", "meetingID", m.meetingID, "topic", nextTopic, "reason", reason)
	}
	m.lastL1Update = m.now()
	m.turnsSinceL1 = 0
	m.mu.Unlock()

	slog.Debug("L1 updated",
		"meetingID", m.meetingID, "reason", reason, "utterances", len(utterances))
	m.snapshotNow(ctx)
}

// ForceTopicChange summarizes whatever is pending under the current topic
// and switches to name. With nothing pending it is a no-op, matching the
// automatic path.
func (m *Manager) ForceTopicChange(ctx context.Context, name string) {
	m.updateL1(ctx, ReasonManualTopicChange, name)
}

// CurrentTopic returns the active topic name.
func (m *Manager) CurrentTopic() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTopic
}

// Segments returns a copy of the L1 hierarchy, oldest first.
func (m *Manager) Segments() []meet.TopicSegment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]meet.TopicSegment, len(m.l1))
	copy(out, m.l1)
	return out
}

// Recent returns the newest n utterances of the raw window, oldest first.
func (m *Manager) Recent(n int) []meet.Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.l0.last(n)
}

// Snapshot captures the persistable context state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	segments := make([]meet.TopicSegment, len(m.l1))
	copy(segments, m.l1)
	return Snapshot{
		MeetingID:                 m.meetingID,
		CurrentTopic:              m.currentTopic,
		L1Segments:                segments,
		LastSummarizedUtteranceID: m.lastSummarizedID,
		LastL1Update:              m.lastL1Update,
		SpeakerStats:              m.speakers.snapshot(),
		TakenAt:                   m.now(),
	}
}

// PromptContext renders the hierarchy for an agent prompt: every topic
// summary followed by the newest maxRecent raw utterances.
func (m *Manager) PromptContext(maxRecent int) string {
	m.mu.Lock()
	segments := make([]meet.TopicSegment, len(m.l1))
	copy(segments, m.l1)
	topic := m.currentTopic
	recent := m.l0.last(maxRecent)
	m.mu.Unlock()

	var sb strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&sb, "## %s\n%s\n", seg.Name, seg.Summary)
		for _, d := range seg.KeyDecisions {
			fmt.Fprintf(&sb, "- decision: %s\n", d)
		}
		for _, p := range seg.PendingItems {
			fmt.Fprintf(&sb, "- pending: %s\n", p)
		}
	}
	fmt.Fprintf(&sb, "## Current topic: %s\n", topic)
	if len(recent) > 0 {
		sb.WriteString("Recent utterances:\n")
		sb.WriteString(formatTranscript(recent))
	}
	return sb.String()
}

// Restore rebuilds the L1 state from the latest snapshot and re-hydrates the
// L0 window from the transcript store. A missing snapshot leaves the manager
// in its initial state without error.
func (m *Manager) Restore(ctx context.Context, src TranscriptSource) error {
	if m.store == nil {
		return nil
	}
	snap, err := m.store.Latest(ctx, m.meetingID)
	if err != nil {
		if errors.Is(err, meet.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("meetingctx: restore: %w", err)
	}

	m.mu.Lock()
	m.l1 = snap.L1Segments
	m.currentTopic = snap.CurrentTopic
	if m.currentTopic == "" {
		m.currentTopic = InitialTopic
	}
	m.lastSummarizedID = snap.LastSummarizedUtteranceID
	m.lastL1Update = snap.LastL1Update
	m.currentSegIdx = -1
	for i := range m.l1 {
		if m.l1[i].Name == m.currentTopic {
			m.currentSegIdx = i
		}
	}
	m.speakers = newSpeakerTracker()
	m.speakers.restore(snap.SpeakerStats)
	afterID := m.lastSummarizedID
	m.mu.Unlock()

	if src == nil {
		return nil
	}
	utterances, err := src.TranscriptSince(ctx, m.meetingID, afterID)
	if err != nil {
		// L0 hydration is best-effort; the summarized hierarchy is intact.
		slog.Warn("failed to re-hydrate L0 window", "meetingID", m.meetingID, "error", err)
		return nil
	}
	m.mu.Lock()
	for _, u := range utterances {
		u.Topic = m.currentTopic
		m.l0.push(u)
		m.l0topic.push(u)
	}
	m.mu.Unlock()
	return nil
}

// maybeSnapshot persists asynchronously once the utterance or time cadence
// is reached.
func (m *Manager) maybeSnapshot(ctx context.Context) {
	if m.store == nil {
		return
	}
	m.mu.Lock()
	due := m.sinceSync >= m.cfg.DBSyncUtteranceThreshold ||
		m.now().Sub(m.lastSync) >= m.cfg.DBSyncInterval
	if due {
		m.sinceSync = 0
		m.lastSync = m.now()
	}
	m.mu.Unlock()
	if due {
		m.snapshotNow(ctx)
	}
}

// snapshotNow persists the current state on a background task. Failures are
// logged; ingestion never stalls on the store.
func (m *Manager) snapshotNow(ctx context.Context) {
	if m.store == nil {
		return
	}
	snap := m.Snapshot()
	go func() {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := m.store.Save(saveCtx, snap); err != nil {
			slog.Error("context snapshot failed", "meetingID", m.meetingID, "error", err)
		}
	}()
}

func speakerNames(utterances []meet.Utterance) []string {
	var names []string
	for _, u := range utterances {
		name := u.SpeakerName
		if name == "" {
			name = u.SpeakerID
		}
		names = mergeUnique(names, []string{name})
	}
	return names
}

// mergeUnique appends the entries of add not already present in base,
// preserving order.
func mergeUnique(base, add []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[s] = struct{}{}
	}
	for _, s := range add {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		base = append(base, s)
	}
	return base
}
