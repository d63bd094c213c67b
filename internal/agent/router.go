// Package agent is the orchestration service: it owns the per-meeting
// context engines, classifies incoming queries, and exposes the streaming
// HTTP surface that runs the orchestration graph and resumes interrupted
// mutations.
package agent

import (
	"strings"

	"github.com/moyeo-ai/moyeo/internal/agent/graph"
)

// defaultGuideMarkers are substrings of utterances asking how to use the
// product rather than about meeting content.
var defaultGuideMarkers = []string{
	"사용법",
	"사용 방법",
	"어떻게 사용",
	"어떻게 써",
	"어떻게 만들",
	"도움말",
	"뭘 할 수 있",
	"무엇을 할 수 있",
	"기능이 뭐",
	"기능 알려",
}

// Router is the fast lexical pre-router. It classifies a query as a product
// usage question ("guide") or a content question ("general") before the
// graph runs, so the response generator can pick the right prompt without
// an extra model round trip.
type Router struct {
	guideMarkers []string
}

// NewRouter creates a router. Extra markers extend the built-in guide list.
func NewRouter(extra ...string) *Router {
	return &Router{guideMarkers: append(append([]string{}, defaultGuideMarkers...), extra...)}
}

// Classify returns the query class for a raw utterance.
func (r *Router) Classify(query string) string {
	q := strings.TrimSpace(query)
	for _, m := range r.guideMarkers {
		if strings.Contains(q, m) {
			return graph.ClassGuide
		}
	}
	return graph.ClassGeneral
}
