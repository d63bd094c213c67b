// Package mock provides an in-memory kg.Repository for tests.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/moyeo-ai/moyeo/internal/kg"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// Repository is an in-memory kg.Repository backed by fixture slices.
type Repository struct {
	mu sync.Mutex

	Decisions []kg.Decision
	Members   []kg.Member

	// Err, when set, is returned by every method.
	Err error

	// SearchQueries records every search query received, in order.
	SearchQueries []string
}

var _ kg.Repository = (*Repository)(nil)

// SearchDecisions matches decisions whose title or content contains query,
// case-insensitive.
func (r *Repository) SearchDecisions(_ context.Context, teamID, query string, topK int) ([]kg.SearchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SearchQueries = append(r.SearchQueries, query)
	if r.Err != nil {
		return nil, r.Err
	}
	if topK <= 0 {
		topK = 5
	}

	lower := strings.ToLower(query)
	var out []kg.SearchResult
	for _, d := range r.Decisions {
		if teamID != "" && d.TeamID != teamID {
			continue
		}
		if lower != "" && !strings.Contains(strings.ToLower(d.Title), lower) &&
			!strings.Contains(strings.ToLower(d.Content), lower) {
			continue
		}
		out = append(out, kg.SearchResult{Decision: d, Score: 0.9})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// DecisionByID returns the fixture decision with the given ID.
func (r *Repository) DecisionByID(_ context.Context, id string) (*kg.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, d := range r.Decisions {
		if d.ID == id {
			dd := d
			return &dd, nil
		}
	}
	return nil, fmt.Errorf("mock: %w: decision %s", meet.ErrNotFound, id)
}

// TeamGroundTruth returns fixture decisions with status "latest" for the team.
func (r *Repository) TeamGroundTruth(_ context.Context, teamID string, limit int) ([]kg.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if limit <= 0 {
		limit = 20
	}
	var out []kg.Decision
	for _, d := range r.Decisions {
		if d.TeamID == teamID && d.Status == "latest" {
			out = append(out, d)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// TeammatesOf returns every fixture member sharing a team with userID.
func (r *Repository) TeammatesOf(_ context.Context, userID string) ([]kg.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	teams := make(map[string]bool)
	for _, m := range r.Members {
		if m.UserID == userID {
			teams[m.TeamID] = true
		}
	}
	var out []kg.Member
	for _, m := range r.Members {
		if teams[m.TeamID] && m.UserID != userID {
			out = append(out, m)
		}
	}
	return out, nil
}
