// Package mock provides in-memory rtc doubles for tests.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/moyeo-ai/moyeo/pkg/rtc"
)

// Transport is a mock rtc.Transport that hands out a single scripted Room.
type Transport struct {
	mu     sync.Mutex
	Room   *Room
	Err    error
	Joined []string // meeting IDs in join order
}

var _ rtc.Transport = (*Transport)(nil)

// Join returns the configured room.
func (t *Transport) Join(_ context.Context, meetingID, _ string) (rtc.Room, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return nil, t.Err
	}
	t.Joined = append(t.Joined, meetingID)
	if t.Room == nil {
		t.Room = NewRoom()
	}
	return t.Room, nil
}

// Room is a mock rtc.Room. Tests drive it with Emit and inspect published
// audio via Published.
type Room struct {
	mu        sync.Mutex
	handler   rtc.TrackHandler
	Published [][]byte
	left      bool
}

var _ rtc.Room = (*Room)(nil)

// NewRoom creates an empty mock room.
func NewRoom() *Room { return &Room{} }

func (r *Room) OnTrack(h rtc.TrackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

func (r *Room) PublishAudio(_ context.Context, pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	r.Published = append(r.Published, cp)
	return nil
}

func (r *Room) Leave() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = true
	return nil
}

// HasHandler reports whether OnTrack has been called. Tests wait on it
// before emitting events.
func (r *Room) HasHandler() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler != nil
}

// Left reports whether Leave has been called.
func (r *Room) Left() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.left
}

// Emit invokes the registered track handler, if any.
func (r *Room) Emit(event rtc.TrackEvent, participantID string, track rtc.RemoteTrack) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h(event, participantID, track)
	}
}

// Track is a mock rtc.RemoteTrack fed from a packet queue.
type Track struct {
	ID   string
	Name string

	mu      sync.Mutex
	packets [][]byte
	closed  bool
	notify  chan struct{}
}

var _ rtc.RemoteTrack = (*Track)(nil)

// NewTrack creates a mock track for the given participant.
func NewTrack(id, name string) *Track {
	return &Track{ID: id, Name: name, notify: make(chan struct{}, 1)}
}

func (t *Track) ParticipantID() string   { return t.ID }
func (t *Track) ParticipantName() string { return t.Name }

// Push queues an encoded packet for ReadPacket to return.
func (t *Track) Push(pkt []byte) {
	t.mu.Lock()
	cp := make([]byte, len(pkt))
	copy(cp, pkt)
	t.packets = append(t.packets, cp)
	t.mu.Unlock()
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// End marks the track as finished; ReadPacket returns io.EOF once the
// queue drains.
func (t *Track) End() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *Track) ReadPacket(ctx context.Context) ([]byte, error) {
	for {
		t.mu.Lock()
		if len(t.packets) > 0 {
			pkt := t.packets[0]
			t.packets = t.packets[1:]
			t.mu.Unlock()
			return pkt, nil
		}
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return nil, io.EOF
		}
		select {
		case <-t.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
