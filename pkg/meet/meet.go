// Package meet defines the shared domain types of the Moyeo meeting
// intelligence core: utterances, topic segments, participants, worker
// records, and the error taxonomy used across subsystems.
package meet

import "time"

// Role is a participant's role within a meeting.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleHost || r == RoleParticipant
}

// Utterance is a single finalized speech segment from one speaker.
// Utterances are created by the realtime worker on STT finalization and
// never mutated afterwards. IDs are assigned by the transcript store and
// are strictly increasing within a meeting.
type Utterance struct {
	ID          int64
	SpeakerID   string
	SpeakerName string
	Text        string

	// StartMS and EndMS are meeting-relative milliseconds.
	StartMS int64
	EndMS   int64

	// Timestamp is the absolute wall-clock time of the utterance start.
	Timestamp time.Time

	// Confidence is the STT confidence in [0, 1].
	Confidence float64

	// Topic is assigned by the context manager at ingest time.
	Topic string
}

// TopicSegment is one entry of the summarized (L1) hierarchy: a digest of a
// contiguous utterance range under a single topic. Segments are created on
// the first L1 update for a topic and mutated only by recursive
// summarization, which extends EndUtteranceID and merges new content.
type TopicSegment struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Summary string   `json:"summary"`

	KeyPoints    []string `json:"key_points"`
	KeyDecisions []string `json:"key_decisions"`
	PendingItems []string `json:"pending_items"`
	Participants []string `json:"participants"`
	Keywords     []string `json:"keywords"`

	StartUtteranceID int64 `json:"start_utterance_id"`
	EndUtteranceID   int64 `json:"end_utterance_id"`
}

// Participant is the signaling hub's view of a meeting member. The duplex
// connection itself is owned by the connection registry; Participant only
// records identity and mute state.
type Participant struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	Role       Role   `json:"role"`
	AudioMuted bool   `json:"audioMuted"`
}

// WorkerStatus is the lifecycle state of a per-meeting realtime worker.
type WorkerStatus string

const (
	WorkerPending  WorkerStatus = "pending"
	WorkerRunning  WorkerStatus = "running"
	WorkerStopped  WorkerStatus = "stopped"
	WorkerFailed   WorkerStatus = "failed"
	WorkerNotFound WorkerStatus = "not_found"
)

// WorkerInfo describes a worker known to the worker manager.
type WorkerInfo struct {
	WorkerID        string
	MeetingID       string
	CredentialIndex int
	Status          WorkerStatus

	// StartedAt is when the launcher submitted the worker.
	StartedAt time.Time

	// ExitCode is set when the worker has terminated. Nil while running.
	ExitCode *int

	// ErrorMessage carries the last container/job message for failed workers.
	ErrorMessage string
}

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "SCHEDULED"
	MeetingOngoing   MeetingStatus = "ONGOING"
	MeetingCompleted MeetingStatus = "COMPLETED"
)
