package signal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// Sender is one participant's outbound half of the duplex channel. The
// registry owns senders; participant records only carry identity.
type Sender interface {
	// Send marshals msg to JSON and writes one frame. Must be safe for
	// concurrent use.
	Send(ctx context.Context, msg any) error

	// Close terminates the connection with a reason shown to the client.
	Close(reason string) error
}

// room is the per-meeting connection state. Meetings are independent, so
// each room carries its own lock.
type room struct {
	mu           sync.Mutex
	participants map[string]*meet.Participant
	senders      map[string]Sender
}

// Registry tracks live signaling sessions across all meetings.
//
// The one-connection-per-(meeting, user) invariant is enforced in Connect:
// a second connection for the same user displaces the first, closing it and
// emitting a participant-left broadcast before the new join is announced.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

func (r *Registry) room(meetingID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[meetingID]
	if !ok {
		rm = &room{
			participants: make(map[string]*meet.Participant),
			senders:      make(map[string]Sender),
		}
		r.rooms[meetingID] = rm
	}
	return rm
}

// Connect registers a participant's connection. An existing connection for
// the same (meetingID, userID) is displaced: closed, then announced as left
// to the rest of the room.
func (r *Registry) Connect(ctx context.Context, meetingID string, p meet.Participant, s Sender) {
	rm := r.room(meetingID)

	rm.mu.Lock()
	old, displaced := rm.senders[p.UserID]
	rm.participants[p.UserID] = &p
	rm.senders[p.UserID] = s
	recipients := rm.othersLocked(p.UserID)
	rm.mu.Unlock()

	if displaced {
		if err := old.Close("connection displaced by newer session"); err != nil {
			slog.Debug("failed to close displaced connection", "meetingID", meetingID, "userID", p.UserID, "error", err)
		}
		sendAll(ctx, recipients, participantLeftMsg{Type: KindParticipantLeft, UserID: p.UserID})
		slog.Info("displaced prior connection", "meetingID", meetingID, "userID", p.UserID)
	}
}

// Disconnect removes the participant and closes their connection. The rest
// of the room receives a participant-left broadcast. Unknown users are a
// no-op.
func (r *Registry) Disconnect(ctx context.Context, meetingID, userID string) {
	rm := r.room(meetingID)

	rm.mu.Lock()
	s, ok := rm.senders[userID]
	delete(rm.senders, userID)
	delete(rm.participants, userID)
	recipients := rm.othersLocked(userID)
	empty := len(rm.senders) == 0
	rm.mu.Unlock()

	if !ok {
		return
	}
	_ = s.Close("disconnected")
	sendAll(ctx, recipients, participantLeftMsg{Type: KindParticipantLeft, UserID: userID})

	if empty {
		r.mu.Lock()
		// Re-check under the registry lock; a concurrent Connect may have
		// repopulated the room.
		if rm2, ok := r.rooms[meetingID]; ok {
			rm2.mu.Lock()
			if len(rm2.senders) == 0 {
				delete(r.rooms, meetingID)
			}
			rm2.mu.Unlock()
		}
		r.mu.Unlock()
	}
}

// SendToUser delivers msg point-to-point. Missing recipients are dropped
// silently per protocol.
func (r *Registry) SendToUser(ctx context.Context, meetingID, userID string, msg any) {
	rm := r.room(meetingID)

	rm.mu.Lock()
	s, ok := rm.senders[userID]
	rm.mu.Unlock()
	if !ok {
		return
	}
	if err := s.Send(ctx, msg); err != nil {
		slog.Debug("point-to-point send failed", "meetingID", meetingID, "userID", userID, "error", err)
	}
}

// Broadcast fans msg out to every connection in the meeting except
// excludeUserID (empty means nobody is excluded). Per-recipient failures
// are isolated.
func (r *Registry) Broadcast(ctx context.Context, meetingID string, msg any, excludeUserID string) {
	rm := r.room(meetingID)

	rm.mu.Lock()
	recipients := rm.othersLocked(excludeUserID)
	rm.mu.Unlock()

	sendAll(ctx, recipients, msg)
}

// UpdateMute sets the participant's local mute state. Returns false when
// the user is not in the meeting.
func (r *Registry) UpdateMute(meetingID, userID string, muted bool) bool {
	rm := r.room(meetingID)

	rm.mu.Lock()
	defer rm.mu.Unlock()
	p, ok := rm.participants[userID]
	if !ok {
		return false
	}
	p.AudioMuted = muted
	return true
}

// Participant returns a copy of the participant record.
func (r *Registry) Participant(meetingID, userID string) (meet.Participant, bool) {
	rm := r.room(meetingID)

	rm.mu.Lock()
	defer rm.mu.Unlock()
	p, ok := rm.participants[userID]
	if !ok {
		return meet.Participant{}, false
	}
	return *p, true
}

// Participants returns the meeting's current participant list.
func (r *Registry) Participants(meetingID string) []meet.Participant {
	rm := r.room(meetingID)

	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]meet.Participant, 0, len(rm.participants))
	for _, p := range rm.participants {
		out = append(out, *p)
	}
	return out
}

// ConnectionCount reports live connections for the meeting.
func (r *Registry) ConnectionCount(meetingID string) int {
	rm := r.room(meetingID)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.senders)
}

// othersLocked snapshots every sender except the named user. Caller holds
// rm.mu; the returned slice is used after release so sends never run under
// the room lock.
func (rm *room) othersLocked(excludeUserID string) []Sender {
	out := make([]Sender, 0, len(rm.senders))
	for id, s := range rm.senders {
		if id == excludeUserID {
			continue
		}
		out = append(out, s)
	}
	return out
}

func sendAll(ctx context.Context, recipients []Sender, msg any) {
	for _, s := range recipients {
		if err := s.Send(ctx, msg); err != nil {
			slog.Debug("broadcast send failed", "error", err)
		}
	}
}
