// Package tts defines the Provider interface for text-to-speech backends
// used to voice the assistant's answers back into the meeting room.
package tts

import "context"

// SynthesisRequest describes one utterance to synthesize.
type SynthesisRequest struct {
	// Text is the sentence to speak. Callers split long answers at sentence
	// boundaries and issue one request per sentence.
	Text string

	// Voice selects a provider-specific voice; empty uses the default.
	Voice string

	// Speed is a playback rate multiplier; zero means 1.0.
	Speed float64
}

// Audio is synthesized speech ready for playback.
type Audio struct {
	// PCM is 16-bit little-endian mono audio.
	PCM []byte

	SampleRate int
	Channels   int
}

// Provider synthesizes speech from text. Implementations must be safe for
// concurrent use.
type Provider interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*Audio, error)
}
