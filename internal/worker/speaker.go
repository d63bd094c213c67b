package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/moyeo-ai/moyeo/internal/observe"
	"github.com/moyeo-ai/moyeo/pkg/tts"
)

// defaultTTSFailureThreshold disables speech output for the rest of the
// meeting after this many consecutive synthesis failures.
const defaultTTSFailureThreshold = 3

// Publisher sends synthesized PCM into the meeting room. rtc.Room
// satisfies it.
type Publisher interface {
	PublishAudio(ctx context.Context, pcm []byte) error
}

// Speaker voices queued sentences into the room, one at a time in order. A
// barge-in (wake word while speaking) interrupts it: the pending queue is
// dropped and the in-flight sentence stops before its next publish.
type Speaker struct {
	tts     tts.Provider
	out     Publisher
	voice   string
	speed   float64
	metrics *observe.Metrics

	failureThreshold int
	failures         int

	queue       chan string
	interrupted atomic.Bool
	disabled    atomic.Bool
}

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithVoice selects the synthesis voice.
func WithVoice(voice string) SpeakerOption {
	return func(s *Speaker) { s.voice = voice }
}

// WithSpeed sets the playback rate multiplier.
func WithSpeed(speed float64) SpeakerOption {
	return func(s *Speaker) { s.speed = speed }
}

// WithFailureThreshold overrides the consecutive-failure cutoff.
func WithFailureThreshold(n int) SpeakerOption {
	return func(s *Speaker) { s.failureThreshold = n }
}

// WithSpeakerMetrics overrides the metrics instance, for tests.
func WithSpeakerMetrics(m *observe.Metrics) SpeakerOption {
	return func(s *Speaker) { s.metrics = m }
}

// NewSpeaker creates a speaker publishing through out.
func NewSpeaker(provider tts.Provider, out Publisher, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		tts:              provider,
		out:              out,
		metrics:          observe.DefaultMetrics(),
		failureThreshold: defaultTTSFailureThreshold,
		queue:            make(chan string, 32),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Say queues one sentence. Dropped silently after a barge-in, when speech
// output is disabled, or when the queue is full; the meeting must never
// stall on synthesis. An interrupt holds until the next pipeline takes the
// floor with [Speaker.Reset], so a stale pipeline cannot talk past it.
func (s *Speaker) Say(text string) {
	if text == "" || s.disabled.Load() || s.interrupted.Load() {
		return
	}
	select {
	case s.queue <- text:
	default:
		slog.Warn("synthesis queue full, dropping sentence")
	}
}

// Interrupt drops everything queued and stops the in-flight sentence at its
// next publish boundary. Called on wake-word barge-in.
func (s *Speaker) Interrupt() {
	s.interrupted.Store(true)
	for {
		select {
		case <-s.queue:
		default:
			return
		}
	}
}

// Reset clears a barge-in. Only the pipeline that takes the floor calls
// this, at its start.
func (s *Speaker) Reset() {
	s.interrupted.Store(false)
}

// Disabled reports whether speech output was cut off by repeated failures.
func (s *Speaker) Disabled() bool { return s.disabled.Load() }

// Run synthesizes and publishes queued sentences until ctx is cancelled.
func (s *Speaker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case text := <-s.queue:
			s.speak(ctx, text)
		}
	}
}

func (s *Speaker) speak(ctx context.Context, text string) {
	if s.interrupted.Load() || s.disabled.Load() {
		return
	}

	start := time.Now()
	audio, err := s.tts.Synthesize(ctx, tts.SynthesisRequest{
		Text:  text,
		Voice: s.voice,
		Speed: s.speed,
	})
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "tts", "synthesize")
		s.failures++
		slog.Error("synthesis failed", "failures", s.failures, "error", err)
		if s.failures >= s.failureThreshold {
			s.disabled.Store(true)
			slog.Error("speech output disabled for the rest of the meeting",
				"threshold", s.failureThreshold)
		}
		return
	}
	s.failures = 0

	if s.interrupted.Load() {
		return
	}
	if err := s.out.PublishAudio(ctx, audio.PCM); err != nil {
		slog.Error("failed to publish synthesized audio", "error", err)
	}
}
