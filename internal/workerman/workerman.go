// Package workerman manages the lifecycle of per-meeting workers: one
// container per live meeting, launched when the meeting starts and torn
// down when it ends. A worker receives its meeting identity and pooled STT
// credential through environment variables.
//
// Two backends are provided: [DockerManager] launches local containers via
// the docker CLI, and [JobManager] submits jobs to an HTTP jobs API.
package workerman

import (
	"context"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// Environment variable names of the worker contract. The launcher sets
// these; cmd/moyeo-worker reads them.
const (
	EnvMeetingID   = "MOYEO_MEETING_ID"
	EnvSTTSecret   = "MOYEO_STT_SECRET"
	EnvSignalURL   = "MOYEO_SIGNAL_URL"
	EnvAuthToken   = "MOYEO_AUTH_TOKEN"
	EnvBackendURL  = "MOYEO_BACKEND_URL"
	EnvConfigExtra = "MOYEO_CONFIG"
)

// StartParams carries everything a worker needs to join its meeting.
type StartParams struct {
	MeetingID string

	// STTSecret is the pooled credential allocated for this meeting.
	STTSecret string

	// SignalURL is the signaling hub address the worker connects to.
	SignalURL string

	// AuthToken authenticates the worker against the hub and backend.
	AuthToken string

	// BackendURL is the product backend base URL.
	BackendURL string

	// Extra holds additional environment overrides.
	Extra map[string]string
}

// Manager launches and reaps meeting workers.
//
// Start is idempotent per meeting: starting a meeting whose worker is
// already pending or running returns the existing worker info rather than
// launching a second one. Stop on an unknown meeting returns an error
// wrapping [meet.ErrNotFound].
type Manager interface {
	Start(ctx context.Context, params StartParams) (*meet.WorkerInfo, error)
	Stop(ctx context.Context, meetingID string) error
	Status(ctx context.Context, meetingID string) (*meet.WorkerInfo, error)

	// List reports every worker this manager knows about; a non-empty
	// meetingID restricts the result to that meeting.
	List(ctx context.Context, meetingID string) ([]meet.WorkerInfo, error)
}

// envFor materializes the worker environment from params.
func envFor(params StartParams) map[string]string {
	env := map[string]string{
		EnvMeetingID:  params.MeetingID,
		EnvSTTSecret:  params.STTSecret,
		EnvSignalURL:  params.SignalURL,
		EnvAuthToken:  params.AuthToken,
		EnvBackendURL: params.BackendURL,
	}
	for k, v := range params.Extra {
		env[k] = v
	}
	return env
}
