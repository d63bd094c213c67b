package meetingctx

import (
	"context"
	"time"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// Snapshot is the periodically persisted context state for one meeting. The
// raw L0 window is deliberately excluded; it is re-hydrated from the
// transcript store on restore.
type Snapshot struct {
	MeetingID                 string              `json:"meeting_id"`
	CurrentTopic              string              `json:"current_topic"`
	L1Segments                []meet.TopicSegment `json:"l1_segments"`
	LastSummarizedUtteranceID int64               `json:"last_summarized_utterance_id"`
	LastL1Update              time.Time           `json:"last_l1_update"`
	SpeakerStats              []SpeakerStat       `json:"speakers_stats,omitempty"`
	TakenAt                   time.Time           `json:"taken_at"`
}

// SnapshotStore persists and retrieves context snapshots. The latest row per
// meeting wins; older snapshots may be garbage-collected by the store.
type SnapshotStore interface {
	// Save persists snap. Called from a background task; failures are logged
	// by the caller and never stall ingestion.
	Save(ctx context.Context, snap Snapshot) error

	// Latest returns the most recent snapshot for the meeting, or an error
	// wrapping [meet.ErrNotFound] when none exists.
	Latest(ctx context.Context, meetingID string) (*Snapshot, error)
}

// TranscriptSource re-hydrates the L0 window after a restore. Implemented by
// the backend client.
type TranscriptSource interface {
	TranscriptSince(ctx context.Context, meetingID string, afterID int64) ([]meet.Utterance, error)
}
