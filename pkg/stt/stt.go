// Package stt defines the Provider interface for streaming speech-to-text
// backends. Each meeting participant gets an independent session: once
// opened, a session accepts raw PCM audio frames and emits two streams of
// Transcript values — low-latency interims for wake-word spotting and
// authoritative finals for the transcript store.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// StreamConfig describes the audio format and recognition hints for a new
// STT session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (e.g. 16000, 48000).
	SampleRate int

	// Channels is the number of audio channels; 1 is required by most
	// providers. Implementations may downmix internally.
	Channels int

	// Language is the BCP-47 language tag (e.g. "ko-KR"). Empty lets the
	// provider auto-detect when supported.
	Language string

	// Keywords lists vocabulary hints (wake word, participant names).
	Keywords []string
}

// Transcript is a speech-to-text result. Both interim and final results use
// this type.
type Transcript struct {
	Text string

	// IsFinal distinguishes authoritative finals from interim guesses.
	IsFinal bool

	// Confidence is in [0, 1]; zero when the provider does not report it.
	Confidence float64

	// Start and Duration are relative to the session start.
	Start    time.Duration
	Duration time.Duration
}

// SessionHandle is an open streaming session. Callers must Close when done;
// all methods are safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM matching the StreamConfig.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// SignalEndOfSpeech tells the provider the speaker paused, promoting
	// pending interim results to a final. Driven by VAD callbacks.
	SignalEndOfSpeech() error

	// Interims returns the channel of low-latency interim transcripts.
	// Closed when the session ends.
	Interims() <-chan Transcript

	// Finals returns the channel of authoritative transcripts.
	// Closed when the session ends.
	Finals() <-chan Transcript

	// Close flushes pending audio and releases all resources. Safe to call
	// more than once.
	Close() error
}

// Provider is the abstraction over any streaming STT backend. Multiple
// sessions may be open simultaneously, one per speaker.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
