package worker

import (
	"strings"
	"testing"

	"github.com/moyeo-ai/moyeo/internal/workerman"
)

func TestParamsFromEnv(t *testing.T) {
	t.Setenv(workerman.EnvMeetingID, "m-42")
	t.Setenv(workerman.EnvSTTSecret, "stt-secret")
	t.Setenv(workerman.EnvSignalURL, "ws://hub:8080")
	t.Setenv(workerman.EnvAuthToken, "token-1")
	t.Setenv(workerman.EnvBackendURL, "http://backend:9000")
	t.Setenv(EnvAgentURL, "http://agent:7000")
	t.Setenv(EnvWakeWord, "")
	t.Setenv(EnvLanguage, "")
	t.Setenv(EnvTTSVoice, "nara")
	t.Setenv(EnvTTSURL, "http://tts:5000")
	t.Setenv(EnvCompletionGrace, "10")
	t.Setenv(EnvTTSFailureThreshold, "not-a-number")
	t.Setenv(EnvSTTFallbackSecret, "stt-secret-2")
	t.Setenv(EnvTTSFallbackURL, "http://tts-b:5000")

	p, err := ParamsFromEnv()
	if err != nil {
		t.Fatalf("ParamsFromEnv: %v", err)
	}
	if p.MeetingID != "m-42" || p.SignalURL != "ws://hub:8080" || p.BackendURL != "http://backend:9000" {
		t.Fatalf("required params mismatched: %+v", p)
	}
	if p.WakeWord != DefaultWakeWord {
		t.Fatalf("WakeWord = %q, want default %q", p.WakeWord, DefaultWakeWord)
	}
	if p.Language != DefaultLanguage {
		t.Fatalf("Language = %q, want default %q", p.Language, DefaultLanguage)
	}
	if p.TTSVoice != "nara" || p.TTSBaseURL != "http://tts:5000" || p.AgentURL != "http://agent:7000" {
		t.Fatalf("optional params mismatched: %+v", p)
	}
	if p.CompletionGraceSeconds != 10 {
		t.Fatalf("CompletionGraceSeconds = %d, want 10", p.CompletionGraceSeconds)
	}
	if p.TTSFailureThreshold != 0 {
		t.Fatalf("TTSFailureThreshold = %d, want 0 for malformed value", p.TTSFailureThreshold)
	}
	if p.STTFallbackSecret != "stt-secret-2" || p.TTSFallbackURL != "http://tts-b:5000" {
		t.Fatalf("fallback params mismatched: %+v", p)
	}
}

func TestParamsFromEnvReportsAllMissing(t *testing.T) {
	t.Setenv(workerman.EnvMeetingID, "")
	t.Setenv(workerman.EnvSignalURL, "")
	t.Setenv(workerman.EnvBackendURL, "")

	_, err := ParamsFromEnv()
	if err == nil {
		t.Fatal("expected an error for missing environment")
	}
	for _, name := range []string{workerman.EnvMeetingID, workerman.EnvSignalURL, workerman.EnvBackendURL} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}
}
