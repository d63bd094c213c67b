package workerman

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// fakeRunner scripts docker CLI invocations. Responses are keyed by the
// subcommand (run, stop, inspect).
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string

	outputs map[string]string
	errs    map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs: map[string]string{},
		errs:    map[string]error{},
	}
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	sub := args[0]
	if err, ok := f.errs[sub]; ok {
		return "", err
	}
	return f.outputs[sub], nil
}

func (f *fakeRunner) callsFor(sub string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if len(c) > 1 && c[1] == sub {
			out = append(out, c)
		}
	}
	return out
}

func TestDockerManager_Start(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("launches container with env contract", func(t *testing.T) {
		t.Parallel()
		fr := newFakeRunner()
		fr.outputs["run"] = "abc123"
		fr.errs["inspect"] = errors.New("no such container")

		m, err := NewDockerManager("moyeo/worker:latest", withRunner(fr))
		if err != nil {
			t.Fatalf("NewDockerManager: %v", err)
		}

		info, err := m.Start(ctx, StartParams{
			MeetingID: "meet-1",
			STTSecret: "sekrit",
			SignalURL: "wss://hub/signal",
		})
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if info.WorkerID != "abc123" {
			t.Errorf("WorkerID = %q, want abc123", info.WorkerID)
		}
		if info.Status != meet.WorkerRunning {
			t.Errorf("Status = %q, want running", info.Status)
		}

		runs := fr.callsFor("run")
		if len(runs) != 1 {
			t.Fatalf("got %d docker run calls, want 1", len(runs))
		}
		joined := strings.Join(runs[0], " ")
		for _, want := range []string{
			"--name moyeo-worker-meet-1",
			EnvMeetingID + "=meet-1",
			EnvSTTSecret + "=sekrit",
			EnvSignalURL + "=wss://hub/signal",
			"moyeo/worker:latest",
		} {
			if !strings.Contains(joined, want) {
				t.Errorf("docker run args missing %q: %s", want, joined)
			}
		}
	})

	t.Run("idempotent when container already running", func(t *testing.T) {
		t.Parallel()
		fr := newFakeRunner()
		fr.outputs["inspect"] = "running"

		m, _ := NewDockerManager("img", withRunner(fr))
		if _, err := m.Start(ctx, StartParams{MeetingID: "meet-1"}); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if runs := fr.callsFor("run"); len(runs) != 0 {
			t.Errorf("expected no docker run for already-running worker, got %d", len(runs))
		}
	})

	t.Run("run failure surfaces as external error", func(t *testing.T) {
		t.Parallel()
		fr := newFakeRunner()
		fr.errs["inspect"] = errors.New("no such container")
		fr.errs["run"] = errors.New("image not found")

		m, _ := NewDockerManager("img", withRunner(fr))
		_, err := m.Start(ctx, StartParams{MeetingID: "meet-1"})
		if !errors.Is(err, meet.ErrExternal) {
			t.Errorf("expected ErrExternal, got %v", err)
		}
	})

	t.Run("empty meeting ID rejected", func(t *testing.T) {
		t.Parallel()
		m, _ := NewDockerManager("img", withRunner(newFakeRunner()))
		_, err := m.Start(ctx, StartParams{})
		if !errors.Is(err, meet.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestDockerManager_Stop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stops running container", func(t *testing.T) {
		t.Parallel()
		fr := newFakeRunner()
		fr.outputs["inspect"] = "running"

		m, _ := NewDockerManager("img", withRunner(fr))
		if err := m.Stop(ctx, "meet-1"); err != nil {
			t.Fatalf("Stop: %v", err)
		}
		if stops := fr.callsFor("stop"); len(stops) != 1 {
			t.Errorf("got %d docker stop calls, want 1", len(stops))
		}
	})

	t.Run("unknown meeting returns not found", func(t *testing.T) {
		t.Parallel()
		fr := newFakeRunner()
		fr.errs["inspect"] = errors.New("no such container")

		m, _ := NewDockerManager("img", withRunner(fr))
		err := m.Stop(ctx, "ghost")
		if !errors.Is(err, meet.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDockerManager_Status(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := []struct {
		state string
		want  meet.WorkerStatus
	}{
		{"running 0", meet.WorkerRunning},
		{"created 0", meet.WorkerPending},
		{"exited 0", meet.WorkerStopped},
		{"paused 0", meet.WorkerFailed},
	}
	for _, tc := range cases {
		t.Run(tc.state, func(t *testing.T) {
			t.Parallel()
			fr := newFakeRunner()
			fr.outputs["inspect"] = tc.state

			m, _ := NewDockerManager("img", withRunner(fr))
			info, err := m.Status(ctx, "meet-1")
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if info.Status != tc.want {
				t.Errorf("Status = %q, want %q", info.Status, tc.want)
			}
		})
	}

	t.Run("clean exit reports the code", func(t *testing.T) {
		t.Parallel()
		fr := newFakeRunner()
		fr.outputs["inspect"] = "exited 0"

		m, _ := NewDockerManager("img", withRunner(fr))
		info, err := m.Status(ctx, "meet-1")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if info.ExitCode == nil || *info.ExitCode != 0 {
			t.Errorf("ExitCode = %v, want 0", info.ExitCode)
		}
		if logs := fr.callsFor("logs"); len(logs) != 0 {
			t.Errorf("clean exit fetched logs: %v", logs)
		}
	})

	t.Run("nonzero exit is failed with last log line", func(t *testing.T) {
		t.Parallel()
		fr := newFakeRunner()
		fr.outputs["inspect"] = "exited 137"
		fr.outputs["logs"] = "worker: join room: signaling hub unreachable"

		m, _ := NewDockerManager("img", withRunner(fr))
		info, err := m.Status(ctx, "meet-1")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if info.Status != meet.WorkerFailed {
			t.Errorf("Status = %q, want failed", info.Status)
		}
		if info.ExitCode == nil || *info.ExitCode != 137 {
			t.Errorf("ExitCode = %v, want 137", info.ExitCode)
		}
		if info.ErrorMessage != "worker: join room: signaling hub unreachable" {
			t.Errorf("ErrorMessage = %q", info.ErrorMessage)
		}
	})
}

func TestDockerManager_List(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fr := newFakeRunner()
	fr.outputs["run"] = "abc123"
	// Fail the pre-start idempotency probe so both launches proceed, then
	// report running for List.
	fr.errs["inspect"] = errors.New("no such container")

	m, _ := NewDockerManager("img", withRunner(fr))
	if _, err := m.Start(ctx, StartParams{MeetingID: "meet-1"}); err != nil {
		t.Fatalf("Start meet-1: %v", err)
	}
	if _, err := m.Start(ctx, StartParams{MeetingID: "meet-2"}); err != nil {
		t.Fatalf("Start meet-2: %v", err)
	}
	delete(fr.errs, "inspect")
	fr.outputs["inspect"] = "running"

	all, err := m.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].MeetingID != "meet-1" || all[1].MeetingID != "meet-2" {
		t.Fatalf("List = %+v", all)
	}

	one, err := m.List(ctx, "meet-2")
	if err != nil {
		t.Fatalf("List meet-2: %v", err)
	}
	if len(one) != 1 || one[0].MeetingID != "meet-2" || one[0].Status != meet.WorkerRunning {
		t.Fatalf("List meet-2 = %+v", one)
	}
}
