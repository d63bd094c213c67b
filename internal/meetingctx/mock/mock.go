// Package mock provides in-memory test doubles for the meetingctx
// persistence interfaces.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/moyeo-ai/moyeo/internal/meetingctx"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// SnapshotStore is an in-memory meetingctx.SnapshotStore.
type SnapshotStore struct {
	mu sync.Mutex

	// Saves records every snapshot saved, in order.
	Saves []meetingctx.Snapshot

	// Err, when set, is returned by every method.
	Err error
}

var _ meetingctx.SnapshotStore = (*SnapshotStore)(nil)

// Save implements meetingctx.SnapshotStore.
func (s *SnapshotStore) Save(_ context.Context, snap meetingctx.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Saves = append(s.Saves, snap)
	return nil
}

// Latest implements meetingctx.SnapshotStore. It returns the last snapshot
// saved for meetingID.
func (s *SnapshotStore) Latest(_ context.Context, meetingID string) (*meetingctx.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for i := len(s.Saves) - 1; i >= 0; i-- {
		if s.Saves[i].MeetingID == meetingID {
			snap := s.Saves[i]
			return &snap, nil
		}
	}
	return nil, fmt.Errorf("mock: %w: no snapshot for %s", meet.ErrNotFound, meetingID)
}

// SaveCount returns how many snapshots have been saved.
func (s *SnapshotStore) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Saves)
}

// TranscriptSource is a scripted meetingctx.TranscriptSource.
type TranscriptSource struct {
	mu         sync.Mutex
	Utterances []meet.Utterance
	Err        error
}

var _ meetingctx.TranscriptSource = (*TranscriptSource)(nil)

// TranscriptSince returns the scripted utterances with ID > afterID.
func (t *TranscriptSource) TranscriptSince(_ context.Context, _ string, afterID int64) ([]meet.Utterance, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return nil, t.Err
	}
	var out []meet.Utterance
	for _, u := range t.Utterances {
		if u.ID > afterID {
			out = append(out, u)
		}
	}
	return out, nil
}
