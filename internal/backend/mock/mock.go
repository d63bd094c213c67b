// Package mock provides an in-memory backend.Store for tests.
package mock

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/moyeo-ai/moyeo/internal/backend"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// Store is a scriptable in-memory backend.Store. Zero value is usable.
type Store struct {
	mu sync.Mutex

	Meetings map[string]*backend.Meeting
	Err      error

	// Segments records uploads per meeting; IDs are assigned sequentially
	// starting at 1.
	Segments map[string][]backend.TranscriptSegment
	nextID   map[string]int64

	Chats     []string
	Completed []string
}

var _ backend.Store = (*Store)(nil)

// NewStore creates an empty mock store.
func NewStore() *Store {
	return &Store{
		Meetings: make(map[string]*backend.Meeting),
		Segments: make(map[string][]backend.TranscriptSegment),
		nextID:   make(map[string]int64),
	}
}

func (s *Store) Meeting(_ context.Context, meetingID string) (*backend.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	m, ok := s.Meetings[meetingID]
	if !ok {
		return nil, fmt.Errorf("mock: %w: meeting %q", meet.ErrNotFound, meetingID)
	}
	cp := *m
	return &cp, nil
}

func (s *Store) SetMeetingStatus(_ context.Context, meetingID string, status meet.MeetingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	m, ok := s.Meetings[meetingID]
	if !ok {
		return fmt.Errorf("mock: %w: meeting %q", meet.ErrNotFound, meetingID)
	}
	m.Status = status
	return nil
}

func (s *Store) UploadTranscriptSegment(_ context.Context, meetingID string, seg backend.TranscriptSegment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	s.nextID[meetingID]++
	s.Segments[meetingID] = append(s.Segments[meetingID], seg)
	return s.nextID[meetingID], nil
}

func (s *Store) TranscriptSince(_ context.Context, meetingID string, afterID int64) ([]meet.Utterance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []meet.Utterance
	for i, seg := range s.Segments[meetingID] {
		id := int64(i + 1)
		if id > afterID {
			out = append(out, meet.Utterance{
				ID:        id,
				SpeakerID: seg.UserID,
				Text:      seg.Text,
				StartMS:   seg.StartMS,
				EndMS:     seg.EndMS,
			})
		}
	}
	return out, nil
}

func (s *Store) PersistChat(_ context.Context, _, _, content string) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", time.Time{}, s.Err
	}
	s.Chats = append(s.Chats, content)
	return fmt.Sprintf("chat-%d", len(s.Chats)), time.Now(), nil
}

func (s *Store) CompleteMeeting(_ context.Context, meetingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Completed = append(s.Completed, meetingID)
	return nil
}

func (s *Store) UploadRecording(_ context.Context, _, _ string, r io.Reader, size int64) error {
	if size > backend.MaxUploadBytes {
		return fmt.Errorf("mock: %w: too large", meet.ErrInvalidInput)
	}
	_, err := io.Copy(io.Discard, r)
	return err
}

// SegmentsFor returns a copy of the segments uploaded for a meeting.
func (s *Store) SegmentsFor(meetingID string) []backend.TranscriptSegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.TranscriptSegment, len(s.Segments[meetingID]))
	copy(out, s.Segments[meetingID])
	return out
}

// CompletedCount returns how many meetings were completed.
func (s *Store) CompletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Completed)
}
