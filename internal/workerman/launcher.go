package workerman

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/moyeo-ai/moyeo/internal/credential"
	"github.com/moyeo-ai/moyeo/internal/observe"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// Launcher ties the credential pool to a worker Manager: it allocates a
// pooled STT credential, starts the worker with it, and guarantees the
// credential is released when the worker stops or fails to launch.
type Launcher struct {
	manager Manager
	pool    credential.Pool
	metrics *observe.Metrics

	signalURL  string
	backendURL string
	extraEnv   map[string]string
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithLauncherMetrics overrides the metrics instance, for tests.
func WithLauncherMetrics(m *observe.Metrics) LauncherOption {
	return func(l *Launcher) { l.metrics = m }
}

// WithWorkerEnv sets extra environment passed to every launched worker
// (agent URL, TTS endpoint, wake word overrides).
func WithWorkerEnv(env map[string]string) LauncherOption {
	return func(l *Launcher) { l.extraEnv = env }
}

// NewLauncher creates a Launcher.
func NewLauncher(manager Manager, pool credential.Pool, signalURL, backendURL string, opts ...LauncherOption) (*Launcher, error) {
	if manager == nil {
		return nil, fmt.Errorf("workerman: manager must not be nil")
	}
	if pool == nil {
		return nil, fmt.Errorf("workerman: credential pool must not be nil")
	}
	l := &Launcher{
		manager:    manager,
		pool:       pool,
		metrics:    observe.DefaultMetrics(),
		signalURL:  signalURL,
		backendURL: backendURL,
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Launch starts a worker for the meeting, allocating a credential first.
// A launch failure releases the credential so the slot is not leaked.
func (l *Launcher) Launch(ctx context.Context, meetingID, authToken string) (*meet.WorkerInfo, error) {
	start := time.Now()

	lease, err := l.pool.Allocate(ctx, meetingID)
	if err != nil {
		l.metrics.RecordCredentialAllocation(ctx, "exhausted")
		return nil, fmt.Errorf("workerman: allocate credential: %w", err)
	}
	l.metrics.RecordCredentialAllocation(ctx, "ok")
	l.metrics.CredentialsInUse.Add(ctx, 1)

	info, err := l.manager.Start(ctx, StartParams{
		MeetingID:  meetingID,
		STTSecret:  lease.Key,
		SignalURL:  l.signalURL,
		AuthToken:  authToken,
		BackendURL: l.backendURL,
		Extra:      l.extraEnv,
	})
	if err != nil {
		if relErr := l.pool.Release(ctx, meetingID); relErr != nil {
			slog.Error("failed to release credential after launch failure",
				"meetingID", meetingID, "error", relErr)
		} else {
			l.metrics.CredentialsInUse.Add(ctx, -1)
		}
		return nil, err
	}

	l.metrics.WorkerStartDuration.Record(ctx, time.Since(start).Seconds())
	l.metrics.ActiveMeetings.Add(ctx, 1)
	return info, nil
}

// Terminate stops the meeting's worker and releases its credential. The
// credential is released even when the stop itself fails, so a wedged
// container cannot pin a pool slot.
func (l *Launcher) Terminate(ctx context.Context, meetingID string) error {
	stopErr := l.manager.Stop(ctx, meetingID)

	if err := l.pool.Release(ctx, meetingID); err != nil {
		slog.Error("failed to release credential", "meetingID", meetingID, "error", err)
	} else {
		l.metrics.CredentialsInUse.Add(ctx, -1)
	}

	if stopErr != nil {
		return stopErr
	}
	l.metrics.ActiveMeetings.Add(ctx, -1)
	return nil
}

// Status reports the worker state for a meeting.
func (l *Launcher) Status(ctx context.Context, meetingID string) (*meet.WorkerInfo, error) {
	return l.manager.Status(ctx, meetingID)
}

// List reports known workers, optionally restricted to one meeting.
func (l *Launcher) List(ctx context.Context, meetingID string) ([]meet.WorkerInfo, error) {
	return l.manager.List(ctx, meetingID)
}
