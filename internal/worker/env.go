// Package worker implements the per-meeting realtime pipeline: it joins the
// meeting room as a media peer, runs one STT session per speaking
// participant, spots the wake word on interim transcripts for barge-in,
// uploads finalized utterances, and voices the assistant's streamed answers
// back into the room sentence by sentence.
package worker

import (
	"fmt"
	"os"
	"strconv"

	"github.com/moyeo-ai/moyeo/internal/workerman"
)

// Worker-side environment variables beyond the launcher contract.
const (
	EnvAgentURL = "MOYEO_AGENT_URL"
	EnvWakeWord = "MOYEO_WAKE_WORD"
	EnvLanguage = "MOYEO_STT_LANGUAGE"
	EnvTTSURL   = "MOYEO_TTS_URL"
	EnvTTSVoice = "MOYEO_TTS_VOICE"
	EnvLogLevel = "MOYEO_LOG_LEVEL"

	// Optional fallback backends, used behind per-backend circuit breakers
	// when the primary degrades.
	EnvSTTFallbackSecret = "MOYEO_STT_FALLBACK_SECRET"
	EnvTTSFallbackURL    = "MOYEO_TTS_FALLBACK_URL"

	EnvCompletionGrace     = "MOYEO_COMPLETION_GRACE_SECONDS"
	EnvTTSFailureThreshold = "MOYEO_TTS_FAILURE_THRESHOLD"
)

// Defaults for optional parameters.
const (
	DefaultWakeWord = "부덕아"
	DefaultLanguage = "ko-KR"
)

// Params is the worker's startup contract, materialized from the
// environment the launcher set.
type Params struct {
	MeetingID  string
	STTSecret  string
	SignalURL  string
	AuthToken  string
	BackendURL string
	AgentURL   string

	WakeWord   string
	Language   string
	TTSBaseURL string
	TTSVoice   string

	STTFallbackSecret string
	TTSFallbackURL    string

	// CompletionGraceSeconds and TTSFailureThreshold are worker tuning
	// knobs; zero keeps the built-in defaults.
	CompletionGraceSeconds int
	TTSFailureThreshold    int
}

// ParamsFromEnv reads the worker contract. Missing required variables are
// reported together so a misconfigured launch fails with one clear error.
func ParamsFromEnv() (Params, error) {
	p := Params{
		MeetingID:  os.Getenv(workerman.EnvMeetingID),
		STTSecret:  os.Getenv(workerman.EnvSTTSecret),
		SignalURL:  os.Getenv(workerman.EnvSignalURL),
		AuthToken:  os.Getenv(workerman.EnvAuthToken),
		BackendURL: os.Getenv(workerman.EnvBackendURL),
		AgentURL:   os.Getenv(EnvAgentURL),
		WakeWord:   os.Getenv(EnvWakeWord),
		Language:   os.Getenv(EnvLanguage),
		TTSBaseURL: os.Getenv(EnvTTSURL),
		TTSVoice:   os.Getenv(EnvTTSVoice),

		STTFallbackSecret: os.Getenv(EnvSTTFallbackSecret),
		TTSFallbackURL:    os.Getenv(EnvTTSFallbackURL),
	}
	p.CompletionGraceSeconds = intFromEnv(EnvCompletionGrace)
	p.TTSFailureThreshold = intFromEnv(EnvTTSFailureThreshold)

	if p.WakeWord == "" {
		p.WakeWord = DefaultWakeWord
	}
	if p.Language == "" {
		p.Language = DefaultLanguage
	}

	var missing []string
	for _, req := range []struct{ name, val string }{
		{workerman.EnvMeetingID, p.MeetingID},
		{workerman.EnvSignalURL, p.SignalURL},
		{workerman.EnvBackendURL, p.BackendURL},
	} {
		if req.val == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return Params{}, fmt.Errorf("worker: missing required environment: %v", missing)
	}
	return p, nil
}

// intFromEnv parses a non-negative integer variable; unset or malformed
// values yield zero so the built-in default applies.
func intFromEnv(name string) int {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
