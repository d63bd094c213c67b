package workerman

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// runner abstracts command execution so tests can fake the docker CLI.
type runner interface {
	run(ctx context.Context, name string, args ...string) (stdout string, err error)
}

type execRunner struct{}

func (execRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("%s: %s", err, strings.TrimSpace(string(ee.Stderr)))
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// DockerManager launches workers as local Docker containers, one per
// meeting. Container names embed the meeting ID so status checks and stops
// need no local state beyond the name.
type DockerManager struct {
	image string
	run   runner

	mu sync.Mutex
	// containers maps meetingID -> container ID for workers this manager
	// started.
	containers map[string]string
}

var _ Manager = (*DockerManager)(nil)

// DockerOption configures a DockerManager.
type DockerOption func(*DockerManager)

// withRunner replaces command execution, for tests.
func withRunner(r runner) DockerOption {
	return func(m *DockerManager) { m.run = r }
}

// NewDockerManager creates a manager launching the given worker image.
func NewDockerManager(image string, opts ...DockerOption) (*DockerManager, error) {
	if image == "" {
		return nil, fmt.Errorf("workerman: image must not be empty")
	}
	m := &DockerManager{
		image:      image,
		run:        execRunner{},
		containers: make(map[string]string),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

func containerName(meetingID string) string {
	return "moyeo-worker-" + meetingID
}

// Start implements Manager.
func (m *DockerManager) Start(ctx context.Context, params StartParams) (*meet.WorkerInfo, error) {
	if params.MeetingID == "" {
		return nil, fmt.Errorf("workerman: %w: meetingID must not be empty", meet.ErrInvalidInput)
	}

	// Idempotency: a live container for this meeting wins over a relaunch.
	if info, err := m.Status(ctx, params.MeetingID); err == nil &&
		(info.Status == meet.WorkerRunning || info.Status == meet.WorkerPending) {
		slog.Info("worker already running, reusing", "meetingID", params.MeetingID)
		return info, nil
	}

	args := []string{"run", "--detach", "--rm", "--name", containerName(params.MeetingID)}

	env := envFor(params)
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--env", k+"="+env[k])
	}
	args = append(args, m.image)

	id, err := m.run.run(ctx, "docker", args...)
	if err != nil {
		return nil, fmt.Errorf("workerman: %w: docker run: %v", meet.ErrExternal, err)
	}

	m.mu.Lock()
	m.containers[params.MeetingID] = id
	m.mu.Unlock()

	slog.Info("worker started", "meetingID", params.MeetingID, "container", id)
	return &meet.WorkerInfo{
		MeetingID: params.MeetingID,
		WorkerID:  id,
		Status:    meet.WorkerRunning,
		StartedAt: time.Now(),
	}, nil
}

// Stop implements Manager.
func (m *DockerManager) Stop(ctx context.Context, meetingID string) error {
	info, err := m.Status(ctx, meetingID)
	if err != nil {
		return err
	}
	if info.Status == meet.WorkerNotFound {
		return fmt.Errorf("workerman: %w: no worker for meeting %q", meet.ErrNotFound, meetingID)
	}

	if _, err := m.run.run(ctx, "docker", "stop", containerName(meetingID)); err != nil {
		return fmt.Errorf("workerman: %w: docker stop: %v", meet.ErrExternal, err)
	}

	m.mu.Lock()
	delete(m.containers, meetingID)
	m.mu.Unlock()

	slog.Info("worker stopped", "meetingID", meetingID)
	return nil
}

// List implements Manager over the containers this manager started.
func (m *DockerManager) List(ctx context.Context, meetingID string) ([]meet.WorkerInfo, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.containers))
	for id := range m.containers {
		if meetingID == "" || id == meetingID {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	sort.Strings(ids)

	out := make([]meet.WorkerInfo, 0, len(ids))
	for _, id := range ids {
		info, err := m.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, nil
}

// Status implements Manager by inspecting the container state. Exited
// containers surface their exit code; a nonzero exit is a failed worker
// carrying the container's last log line.
func (m *DockerManager) Status(ctx context.Context, meetingID string) (*meet.WorkerInfo, error) {
	out, err := m.run.run(ctx, "docker", "inspect", "--format",
		"{{.State.Status}} {{.State.ExitCode}}", containerName(meetingID))
	if err != nil {
		// docker inspect fails for unknown containers.
		return &meet.WorkerInfo{MeetingID: meetingID, Status: meet.WorkerNotFound}, nil
	}
	state, exitCode := parseInspect(out)

	m.mu.Lock()
	id := m.containers[meetingID]
	m.mu.Unlock()

	info := &meet.WorkerInfo{MeetingID: meetingID, WorkerID: id}
	switch state {
	case "running":
		info.Status = meet.WorkerRunning
	case "created", "restarting":
		info.Status = meet.WorkerPending
	case "exited", "dead", "removing":
		info.Status = meet.WorkerStopped
		info.ExitCode = &exitCode
		if exitCode != 0 {
			info.Status = meet.WorkerFailed
			info.ErrorMessage = m.lastLogLine(ctx, meetingID)
		}
	default:
		info.Status = meet.WorkerFailed
	}
	return info, nil
}

// parseInspect splits the "{{.State.Status}} {{.State.ExitCode}}" output.
// Older templates without an exit code still parse as state only.
func parseInspect(out string) (state string, exitCode int) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", 0
	}
	state = fields[0]
	if len(fields) > 1 {
		exitCode, _ = strconv.Atoi(fields[1])
	}
	return state, exitCode
}

// lastLogLine fetches the container's final log line, best effort.
func (m *DockerManager) lastLogLine(ctx context.Context, meetingID string) string {
	out, err := m.run.run(ctx, "docker", "logs", "--tail", "1", containerName(meetingID))
	if err != nil {
		slog.Debug("failed to read worker logs", "meetingID", meetingID, "error", err)
		return ""
	}
	return strings.TrimSpace(out)
}
