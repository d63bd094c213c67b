// Package kg is the read surface of the team knowledge graph: latest-status
// decisions (ground truth), semantic search over them, and team membership
// lookups. The core only reads; decision promotion and graph maintenance
// live in a separate service.
package kg

import (
	"context"
	"time"
)

// Decision is one knowledge-graph decision node.
type Decision struct {
	ID      string `json:"id"`
	TeamID  string `json:"teamId"`
	Title   string `json:"title"`
	Content string `json:"content"`

	// Status is the decision lifecycle state; "latest" rows form the team's
	// ground truth.
	Status string `json:"status"`

	AssigneeID   string `json:"assigneeId,omitempty"`
	AssigneeName string `json:"assigneeName,omitempty"`

	SourceMeetingID string    `json:"sourceMeetingId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// SearchResult pairs a decision with its semantic similarity score in
// [0, 1], higher is closer.
type SearchResult struct {
	Decision
	Score float64 `json:"score"`
}

// Member is one user's membership in a team.
type Member struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName"`
	Role     string `json:"role"`
}

// Repository is the knowledge-graph read contract used by the agent tools
// and the summarizer. All sessions are independent; implementations must be
// safe for concurrent use.
type Repository interface {
	// SearchDecisions finds the topK decisions semantically closest to
	// query within the team. An empty teamID searches across all teams the
	// repository can see.
	SearchDecisions(ctx context.Context, teamID, query string, topK int) ([]SearchResult, error)

	// DecisionByID fetches one decision, or an error wrapping
	// meet.ErrNotFound.
	DecisionByID(ctx context.Context, id string) (*Decision, error)

	// TeamGroundTruth returns the team's latest-status decisions, newest
	// first, capped at limit.
	TeamGroundTruth(ctx context.Context, teamID string, limit int) ([]Decision, error)

	// TeammatesOf lists every member sharing a team with userID, excluding
	// the user themselves.
	TeammatesOf(ctx context.Context, userID string) ([]Member, error)
}
