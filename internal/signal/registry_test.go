package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// fakeSender records every message it receives.
type fakeSender struct {
	mu       sync.Mutex
	messages []any
	closed   bool
	sendErr  error
}

func (f *fakeSender) Send(_ context.Context, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeSender) Close(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// kinds extracts the type field of every received message.
func (f *fakeSender) kinds(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.messages))
	for _, m := range f.messages {
		data, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("marshal recorded message: %v", err)
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal recorded message: %v", err)
		}
		out = append(out, env.Type)
	}
	return out
}

func countKind(kinds []string, kind string) int {
	n := 0
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func connect(r *Registry, meetingID, userID string, role meet.Role) *fakeSender {
	s := &fakeSender{}
	r.Connect(context.Background(), meetingID, meet.Participant{
		UserID:   userID,
		UserName: "name-" + userID,
		Role:     role,
	}, s)
	return s
}

func TestRegistry_Connect(t *testing.T) {
	t.Parallel()

	t.Run("second connection displaces the first", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		other := connect(r, "m1", "other", meet.RoleParticipant)
		first := connect(r, "m1", "alice", meet.RoleParticipant)
		second := connect(r, "m1", "alice", meet.RoleParticipant)
		_ = second

		if !first.isClosed() {
			t.Error("first connection should be closed on displacement")
		}
		if got := r.ConnectionCount("m1"); got != 2 {
			t.Errorf("ConnectionCount = %d, want 2", got)
		}
		// The rest of the room sees exactly one participant-left for the
		// displaced session.
		if n := countKind(other.kinds(t), KindParticipantLeft); n != 1 {
			t.Errorf("other got %d participant-left, want 1", n)
		}
	})

	t.Run("participants listed", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		connect(r, "m1", "a", meet.RoleHost)
		connect(r, "m1", "b", meet.RoleParticipant)

		ps := r.Participants("m1")
		if len(ps) != 2 {
			t.Errorf("got %d participants, want 2", len(ps))
		}
	})
}

func TestRegistry_Disconnect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := NewRegistry()
	a := connect(r, "m1", "a", meet.RoleHost)
	b := connect(r, "m1", "b", meet.RoleParticipant)

	r.Disconnect(ctx, "m1", "a")

	if !a.isClosed() {
		t.Error("disconnected sender should be closed")
	}
	if n := countKind(b.kinds(t), KindParticipantLeft); n != 1 {
		t.Errorf("b got %d participant-left, want 1", n)
	}
	if got := r.ConnectionCount("m1"); got != 1 {
		t.Errorf("ConnectionCount = %d, want 1", got)
	}

	// Disconnecting an absent user is a no-op.
	r.Disconnect(ctx, "m1", "ghost")
}

func TestRegistry_Broadcast(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("excludes named user", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		a := connect(r, "m1", "a", meet.RoleHost)
		b := connect(r, "m1", "b", meet.RoleParticipant)

		r.Broadcast(ctx, "m1", participantMutedMsg{Type: KindParticipantMuted, UserID: "a", Muted: true}, "a")

		if len(a.kinds(t)) != 0 {
			t.Error("excluded sender should receive nothing")
		}
		if n := countKind(b.kinds(t), KindParticipantMuted); n != 1 {
			t.Errorf("b got %d participant-muted, want 1", n)
		}
	})

	t.Run("per recipient failure is isolated", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		bad := connect(r, "m1", "bad", meet.RoleParticipant)
		bad.sendErr = errors.New("broken pipe")
		good := connect(r, "m1", "good", meet.RoleParticipant)

		r.Broadcast(ctx, "m1", screenShareMsg{Type: KindScreenShareStarted, UserID: "x"}, "")

		if n := countKind(good.kinds(t), KindScreenShareStarted); n != 1 {
			t.Errorf("good recipient got %d messages, want 1", n)
		}
	})

	t.Run("meetings are isolated", func(t *testing.T) {
		t.Parallel()
		r := NewRegistry()
		a := connect(r, "m1", "a", meet.RoleParticipant)
		b := connect(r, "m2", "b", meet.RoleParticipant)

		r.Broadcast(ctx, "m1", screenShareMsg{Type: KindScreenShareStarted, UserID: "a"}, "")

		if len(a.kinds(t)) != 1 {
			t.Errorf("m1 recipient got %d messages, want 1", len(a.kinds(t)))
		}
		if len(b.kinds(t)) != 0 {
			t.Errorf("m2 recipient got %d messages, want 0", len(b.kinds(t)))
		}
	})
}

func TestRegistry_SendToUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := NewRegistry()
	a := connect(r, "m1", "a", meet.RoleParticipant)

	r.SendToUser(ctx, "m1", "a", connectedMsg{Type: KindConnected})
	if len(a.kinds(t)) != 1 {
		t.Errorf("got %d messages, want 1", len(a.kinds(t)))
	}

	// Absent recipients are dropped silently.
	r.SendToUser(ctx, "m1", "ghost", connectedMsg{Type: KindConnected})
}

func TestRegistry_UpdateMute(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	connect(r, "m1", "a", meet.RoleParticipant)

	if !r.UpdateMute("m1", "a", true) {
		t.Fatal("UpdateMute returned false for present user")
	}
	p, ok := r.Participant("m1", "a")
	if !ok || !p.AudioMuted {
		t.Errorf("participant mute state = %+v, want muted", p)
	}
	if r.UpdateMute("m1", "ghost", true) {
		t.Error("UpdateMute should return false for absent user")
	}
}
