// Command moyeo-worker is the per-meeting realtime worker. The controller
// launches one per started meeting with its contract in the environment; the
// worker joins the room, streams speech through STT, answers wake-word
// queries through the agent service, and exits when the room empties.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/moyeo-ai/moyeo/internal/backend"
	"github.com/moyeo-ai/moyeo/internal/resilience"
	"github.com/moyeo-ai/moyeo/internal/worker"
	"github.com/moyeo-ai/moyeo/pkg/stt"
	"github.com/moyeo-ai/moyeo/pkg/stt/clova"
	"github.com/moyeo-ai/moyeo/pkg/tts"
	ttsserver "github.com/moyeo-ai/moyeo/pkg/tts/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()
	setupLogging(os.Getenv(worker.EnvLogLevel))

	params, err := worker.ParamsFromEnv()
	if err != nil {
		slog.Error("invalid worker environment", "error", err)
		return 1
	}
	slog.Info("worker starting", "meetingID", params.MeetingID, "wakeWord", params.WakeWord)

	if params.STTSecret == "" {
		slog.Error("no STT credential in environment")
		return 1
	}
	primarySTT, err := clova.New(params.STTSecret, clova.WithLanguage(params.Language))
	if err != nil {
		slog.Error("failed to create STT provider", "error", err)
		return 1
	}
	// Recognition always runs behind a circuit breaker; a second credential
	// becomes the failover backend.
	sttFB := resilience.NewSTTFallback(primarySTT, "clova", resilience.FallbackConfig{})
	if params.STTFallbackSecret != "" {
		fb, err := clova.New(params.STTFallbackSecret, clova.WithLanguage(params.Language))
		if err != nil {
			slog.Error("failed to create fallback STT provider", "error", err)
			return 1
		}
		sttFB.AddFallback("clova-fallback", fb)
	}
	var sttP stt.Provider = sttFB

	// Speech output is optional; without a TTS endpoint the assistant
	// answers in chat only.
	var ttsP tts.Provider
	if params.TTSBaseURL != "" {
		primaryTTS, err := ttsserver.New(params.TTSBaseURL)
		if err != nil {
			slog.Error("failed to create TTS provider", "error", err)
			return 1
		}
		ttsFB := resilience.NewTTSFallback(primaryTTS, "tts-server", resilience.FallbackConfig{})
		if params.TTSFallbackURL != "" {
			fb, err := ttsserver.New(params.TTSFallbackURL)
			if err != nil {
				slog.Error("failed to create fallback TTS provider", "error", err)
				return 1
			}
			ttsFB.AddFallback("tts-server-fallback", fb)
		}
		ttsP = ttsFB
	}

	store, err := backend.New(params.BackendURL, params.AuthToken)
	if err != nil {
		slog.Error("failed to create backend client", "error", err)
		return 1
	}

	var agent *worker.AgentClient
	if params.AgentURL != "" {
		agent = worker.NewAgentClient(params.AgentURL, params.AuthToken)
	}

	transport, err := newTransport(params)
	if err != nil {
		slog.Error("failed to create media transport", "error", err)
		return 1
	}

	var wopts []worker.WorkerOption
	if params.CompletionGraceSeconds > 0 {
		wopts = append(wopts, worker.WithCompletionGrace(time.Duration(params.CompletionGraceSeconds)*time.Second))
	}
	if params.TTSFailureThreshold > 0 {
		wopts = append(wopts, worker.WithSpeakerOptions(
			worker.WithFailureThreshold(params.TTSFailureThreshold)))
	}

	w, err := worker.New(params, transport, sttP, ttsP, store, agent, wopts...)
	if err != nil {
		slog.Error("failed to create worker", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker failed", "meetingID", params.MeetingID, "error", err)
		return 1
	}
	slog.Info("worker drained", "meetingID", params.MeetingID)
	return 0
}

func setupLogging(level string) {
	l := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
