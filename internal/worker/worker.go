package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/moyeo-ai/moyeo/internal/agent/graph"
	"github.com/moyeo-ai/moyeo/internal/backend"
	"github.com/moyeo-ai/moyeo/internal/observe"
	"github.com/moyeo-ai/moyeo/internal/transcript"
	"github.com/moyeo-ai/moyeo/internal/transcript/phonetic"
	"github.com/moyeo-ai/moyeo/pkg/audio"
	"github.com/moyeo-ai/moyeo/pkg/meet"
	"github.com/moyeo-ai/moyeo/pkg/rtc"
	"github.com/moyeo-ai/moyeo/pkg/stt"
	"github.com/moyeo-ai/moyeo/pkg/tts"
)

// defaultCompletionGrace is how long the worker lingers after the last
// human participant leaves, so a momentary disconnect does not kill the
// meeting.
const defaultCompletionGrace = 5 * time.Second

// sttSampleRate is the PCM format fed to recognition sessions.
const sttSampleRate = 16000

// Worker is one meeting's realtime pipeline.
type Worker struct {
	params    Params
	transport rtc.Transport
	sttP      stt.Provider
	ttsP      tts.Provider
	store     backend.Store
	agent     *AgentClient

	wake        *WakeDetector
	corrector   *transcript.Corrector
	grace       time.Duration
	speakerOpts []SpeakerOption
	metrics     *observe.Metrics

	dialSignal func(ctx context.Context) (*SignalClient, error)

	speaker *Speaker
	sig     *SignalClient

	// runMu guards the cancel handle of the in-flight agent run. A
	// barge-in cancels the old run before the new one takes the floor.
	runMu     sync.Mutex
	cancelRun context.CancelFunc

	// pendingMu guards wake words heard on interims: the next final from
	// the same participant is the query even if the wake word dropped out
	// of the corrected final text.
	pendingMu sync.Mutex
	pending   map[string]time.Time

	mu       sync.Mutex
	sessions map[string]stt.SessionHandle
	names    map[string]string
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithCompletionGrace overrides the empty-room linger duration.
func WithCompletionGrace(d time.Duration) WorkerOption {
	return func(w *Worker) { w.grace = d }
}

// WithSpeakerOptions forwards options to the speaker created at join time.
func WithSpeakerOptions(opts ...SpeakerOption) WorkerOption {
	return func(w *Worker) { w.speakerOpts = opts }
}

// WithWakeDetector overrides the wake-word detector.
func WithWakeDetector(d *WakeDetector) WorkerOption {
	return func(w *Worker) { w.wake = d }
}

// WithSignalDialer overrides how the signaling connection is established,
// for tests.
func WithSignalDialer(dial func(ctx context.Context) (*SignalClient, error)) WorkerOption {
	return func(w *Worker) { w.dialSignal = dial }
}

// New assembles a worker from its providers. The agent client may be nil
// when no orchestration service is configured; wake-word queries are then
// ignored and only transcription runs.
func New(params Params, transport rtc.Transport, sttP stt.Provider, ttsP tts.Provider, store backend.Store, agent *AgentClient, opts ...WorkerOption) (*Worker, error) {
	if transport == nil || sttP == nil || store == nil {
		return nil, fmt.Errorf("worker: transport, stt, and store are required")
	}
	w := &Worker{
		params:    params,
		transport: transport,
		sttP:      sttP,
		ttsP:      ttsP,
		store:     store,
		agent:     agent,
		wake:      NewWakeDetector(params.WakeWord),
		corrector: transcript.NewCorrector(phonetic.New()),
		grace:     defaultCompletionGrace,
		metrics:   observe.DefaultMetrics(),
		pending:   make(map[string]time.Time),
		sessions:  make(map[string]stt.SessionHandle),
		names:     make(map[string]string),
	}
	w.dialSignal = func(ctx context.Context) (*SignalClient, error) {
		return DialSignal(ctx, params.SignalURL, params.MeetingID, params.AuthToken)
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Run joins the meeting and processes media until the room empties or ctx
// is cancelled, then drains and completes the meeting.
func (w *Worker) Run(ctx context.Context) error {
	if w.agent != nil {
		if err := w.agent.Prewarm(ctx, w.params.MeetingID); err != nil {
			// Best effort: the engine is created lazily on first utterance.
			slog.Warn("context prewarm failed", "meetingID", w.params.MeetingID, "error", err)
		}
	}

	room, err := w.transport.Join(ctx, w.params.MeetingID, w.params.AuthToken)
	if err != nil {
		return fmt.Errorf("worker: join room: %w", err)
	}

	if w.ttsP != nil {
		opts := append([]SpeakerOption{WithVoice(w.params.TTSVoice)}, w.speakerOpts...)
		w.speaker = NewSpeaker(w.ttsP, room, opts...)
	}

	sc, err := w.dialSignal(ctx)
	if err != nil {
		_ = room.Leave()
		return fmt.Errorf("worker: %w", err)
	}
	w.sig = sc

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, runCtx := errgroup.WithContext(runCtx)

	if w.speaker != nil {
		eg.Go(func() error {
			if err := w.speaker.Run(runCtx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	eg.Go(func() error {
		w.watchPresence(runCtx, sc, cancel)
		return nil
	})

	room.OnTrack(func(event rtc.TrackEvent, participantID string, track rtc.RemoteTrack) {
		switch event {
		case rtc.TrackAdded:
			go w.handleTrack(runCtx, track)
		case rtc.TrackRemoved:
			w.closeSession(participantID)
		case rtc.SpeechEnded:
			w.endOfSpeech(participantID)
		}
	})

	slog.Info("worker joined meeting", "meetingID", w.params.MeetingID)
	err = eg.Wait()

	w.shutdown(room, sc)
	return err
}

// watchPresence ends the run once the room stays empty for the grace
// period. A rejoin within the grace window cancels the shutdown.
func (w *Worker) watchPresence(ctx context.Context, sc *SignalClient, cancel context.CancelFunc) {
	var graceTimer *time.Timer
	stopGrace := func() {
		if graceTimer != nil {
			graceTimer.Stop()
			graceTimer = nil
		}
	}
	defer stopGrace()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sc.Events():
			if !ok {
				// Lost the hub connection; the meeting is over for us.
				cancel()
				return
			}
			if ev.Humans == 0 {
				if graceTimer == nil {
					slog.Info("room empty, starting completion grace",
						"meetingID", w.params.MeetingID, "grace", w.grace)
					graceTimer = time.AfterFunc(w.grace, cancel)
				}
			} else {
				stopGrace()
			}
		}
	}
}

// handleTrack runs one participant's recognition session for the lifetime
// of their audio track.
func (w *Worker) handleTrack(ctx context.Context, track rtc.RemoteTrack) {
	pid, name := track.ParticipantID(), track.ParticipantName()

	session, err := w.sttP.StartStream(ctx, stt.StreamConfig{
		SampleRate: sttSampleRate,
		Channels:   1,
		Language:   w.params.Language,
		Keywords:   append([]string{w.params.WakeWord}, w.participantNames()...),
	})
	if err != nil {
		slog.Error("failed to start recognition session",
			"meetingID", w.params.MeetingID, "participantID", pid, "error", err)
		return
	}
	w.registerSession(pid, name, session)
	defer w.closeSession(pid)

	dec, err := audio.NewOpusDecoder()
	if err != nil {
		slog.Error("failed to create decoder", "participantID", pid, "error", err)
		return
	}

	// A wake word on an interim barges in: the previous pipeline is
	// silenced immediately, and the participant's next final is treated as
	// the query even if the wake word never reaches a final transcript.
	go func() {
		for t := range session.Interims() {
			if _, ok := w.wake.Detect(t.Text); ok {
				w.markWakePending(pid)
				w.interruptRun()
			}
		}
	}()
	go func() {
		for t := range session.Finals() {
			w.handleFinal(ctx, pid, name, t)
		}
	}()

	for {
		pkt, err := track.ReadPacket(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Debug("track ended", "participantID", pid, "error", err)
			}
			return
		}
		frame, err := dec.Decode(pkt)
		if err != nil {
			slog.Debug("dropping undecodable packet", "participantID", pid, "error", err)
			continue
		}
		if err := session.SendAudio(audio.ToMono16k(frame)); err != nil {
			slog.Warn("recognition session rejected audio", "participantID", pid, "error", err)
			return
		}
	}
}

// handleFinal processes one authoritative transcript: vocabulary
// correction, wake-word extraction, upload, context ingest, and — when the
// assistant was addressed — an agent run.
func (w *Worker) handleFinal(ctx context.Context, pid, name string, t stt.Transcript) {
	text, corrections := w.corrector.Correct(t.Text, w.participantNames())
	if len(corrections) > 0 {
		slog.Debug("transcript corrected",
			"participantID", pid, "corrections", len(corrections))
	}

	query, isWake := w.wake.Detect(text)
	wakeAt, wasPending := w.takeWakePending(pid)
	if isWake && !wasPending {
		wakeAt = time.Now()
	}
	if !isWake && wasPending {
		// The wake word was only heard on an interim; this final carries
		// the query.
		query, isWake = text, true
	}

	seg := backend.TranscriptSegment{
		UserID:     pid,
		StartMS:    t.Start.Milliseconds(),
		EndMS:      (t.Start + t.Duration).Milliseconds(),
		Text:       text,
		Confidence: t.Confidence,
		AgentCall:  isWake,
	}
	if isWake {
		seg.AgentCallKeyword = w.params.WakeWord
		seg.AgentCallConfidence = t.Confidence
	}
	id, err := w.store.UploadTranscriptSegment(ctx, w.params.MeetingID, seg)
	if err != nil {
		slog.Error("transcript upload failed",
			"meetingID", w.params.MeetingID, "participantID", pid, "error", err)
	}

	if w.agent != nil {
		u := meet.Utterance{
			ID:          id,
			SpeakerID:   pid,
			SpeakerName: name,
			Text:        text,
			StartMS:     seg.StartMS,
			EndMS:       seg.EndMS,
			Timestamp:   time.Now(),
			Confidence:  t.Confidence,
		}
		if err := w.agent.PostUtterance(ctx, w.params.MeetingID, u); err != nil {
			slog.Warn("context ingest failed", "meetingID", w.params.MeetingID, "error", err)
		}
		if isWake && query != "" {
			go w.runAgent(ctx, pid, name, query, wakeAt)
		}
	}
}

// runAgent streams one voice answer: sentences are spoken as they
// complete, progress events surface as an ephemeral status indicator, and
// the full answer is posted to the meeting chat once the run finishes.
func (w *Worker) runAgent(ctx context.Context, pid, name, query string, wakeAt time.Time) {
	runCtx, cancel := w.beginRun(ctx)
	defer cancel()

	events, err := w.agent.StartRun(runCtx, RunRequest{
		MeetingID: w.params.MeetingID,
		UserID:    pid,
		UserName:  name,
		Mode:      "voice",
		Channel:   "voice",
		Query:     query,
	})
	if err != nil {
		slog.Error("agent run failed to start", "meetingID", w.params.MeetingID, "error", err)
		return
	}

	var split Splitter
	var answer strings.Builder
	for ev := range events {
		switch ev.Kind {
		case graph.EventStatus:
			w.sendStatus(runCtx, ev.Content)
		case graph.EventMessage:
			if answer.Len() == 0 && !wakeAt.IsZero() {
				w.metrics.WakeWordLatency.Record(runCtx, time.Since(wakeAt).Seconds())
			}
			answer.WriteString(ev.Content)
			for _, sentence := range split.Feed(ev.Content) {
				w.say(runCtx, sentence)
			}
		case graph.EventError:
			slog.Error("agent run errored", "meetingID", w.params.MeetingID, "detail", ev.Content)
			return
		case graph.EventDone:
			if rest := split.Flush(); rest != "" {
				w.say(runCtx, rest)
			}
			w.sendChat(runCtx, answer.String())
			return
		}
	}
}

// beginRun makes the caller the active pipeline: any previous run is
// cancelled and the speaker's barge-in flag is cleared for the new owner.
func (w *Worker) beginRun(ctx context.Context) (context.Context, context.CancelFunc) {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.cancelRun != nil {
		w.cancelRun()
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancelRun = cancel
	if w.speaker != nil {
		w.speaker.Reset()
	}
	return runCtx, cancel
}

// interruptRun silences the active pipeline on barge-in. The run is
// cancelled before the speaker flushes, so a stale sentence cannot re-enter
// the queue behind the interrupt.
func (w *Worker) interruptRun() {
	w.runMu.Lock()
	cancel := w.cancelRun
	w.runMu.Unlock()
	if cancel != nil {
		cancel()
	}
	if w.speaker != nil {
		w.speaker.Interrupt()
	}
}

func (w *Worker) markWakePending(pid string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if _, ok := w.pending[pid]; !ok {
		w.pending[pid] = time.Now()
	}
}

func (w *Worker) takeWakePending(pid string) (time.Time, bool) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	at, ok := w.pending[pid]
	delete(w.pending, pid)
	return at, ok
}

// say voices one sentence unless the pipeline was cancelled by a barge-in.
func (w *Worker) say(ctx context.Context, sentence string) {
	if ctx.Err() != nil || w.speaker == nil {
		return
	}
	w.speaker.Say(sentence)
}

func (w *Worker) sendChat(ctx context.Context, content string) {
	if ctx.Err() != nil || w.sig == nil || content == "" {
		return
	}
	if err := w.sig.SendChat(ctx, content); err != nil {
		slog.Warn("failed to post answer to chat", "meetingID", w.params.MeetingID, "error", err)
	}
}

func (w *Worker) sendStatus(ctx context.Context, status string) {
	if ctx.Err() != nil || w.sig == nil || status == "" {
		return
	}
	if err := w.sig.SendStatus(ctx, status); err != nil {
		slog.Debug("failed to send status", "meetingID", w.params.MeetingID, "error", err)
	}
}

func (w *Worker) registerSession(pid, name string, s stt.SessionHandle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessions[pid] = s
	if name != "" {
		w.names[pid] = name
	}
}

func (w *Worker) closeSession(pid string) {
	w.mu.Lock()
	s, ok := w.sessions[pid]
	delete(w.sessions, pid)
	w.mu.Unlock()
	if ok {
		if err := s.Close(); err != nil {
			slog.Debug("session close failed", "participantID", pid, "error", err)
		}
	}
}

func (w *Worker) endOfSpeech(pid string) {
	w.mu.Lock()
	s, ok := w.sessions[pid]
	w.mu.Unlock()
	if ok {
		if err := s.SignalEndOfSpeech(); err != nil {
			slog.Debug("end-of-speech signal failed", "participantID", pid, "error", err)
		}
	}
}

// participantNames returns the display names of everyone with a live
// session, used as recognition hints and correction vocabulary.
func (w *Worker) participantNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.names))
	for _, n := range w.names {
		names = append(names, n)
	}
	return names
}

// shutdown drains and completes the meeting with a fresh timeout context;
// the run context is already cancelled by the time it is called.
func (w *Worker) shutdown(room rtc.Room, sc *SignalClient) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	w.mu.Lock()
	sessions := make([]stt.SessionHandle, 0, len(w.sessions))
	for _, s := range w.sessions {
		sessions = append(sessions, s)
	}
	w.sessions = make(map[string]stt.SessionHandle)
	w.mu.Unlock()
	for _, s := range sessions {
		_ = s.Close()
	}

	if err := w.store.CompleteMeeting(ctx, w.params.MeetingID); err != nil {
		slog.Error("failed to complete meeting", "meetingID", w.params.MeetingID, "error", err)
	}
	if w.agent != nil {
		if err := w.agent.DropContext(ctx, w.params.MeetingID); err != nil {
			slog.Warn("failed to drop meeting context", "meetingID", w.params.MeetingID, "error", err)
		}
	}
	if err := sc.Close(); err != nil {
		slog.Debug("signaling close failed", "error", err)
	}
	if err := room.Leave(); err != nil {
		slog.Debug("room leave failed", "error", err)
	}
	slog.Info("worker drained", "meetingID", w.params.MeetingID)
}
