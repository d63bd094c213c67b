package meetingctx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/moyeo-ai/moyeo/pkg/llm"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// detectPrompt asks the model whether the conversation has moved to a new
// topic, given the recent window and the previous topic's summary.
const detectPrompt = `You watch a live meeting transcript for topic changes.
Given the current topic, its summary so far, and the most recent utterances,
decide whether the conversation has moved on to a different topic.
Respond with a JSON object: {"topic_changed": bool, "current_topic": string}
where current_topic is a short name for the new topic when topic_changed is
true. Respond with JSON only.`

// defaultTransitionHints are lexical markers that often open a new topic.
// The list is a configuration point, not a contract; Korean-first because the
// product's meetings are.
var defaultTransitionHints = []string{
	"다음 주제",
	"다음 안건",
	"넘어가",
	"다른 얘기",
	"그건 그렇고",
	"본론으로",
	"마지막으로",
	"next topic",
	"moving on",
	"switching gears",
}

// DetectResult is the outcome of one topic check.
type DetectResult struct {
	Changed bool   `json:"topic_changed"`
	Topic   string `json:"current_topic"`
}

// Detector decides when the meeting has moved to a new topic: a cheap
// keyword scan gates the LLM call, which examines the recent window plus the
// previous topic summary.
type Detector struct {
	llm   llm.Provider
	hints []string
}

// NewDetector creates a Detector. A nil provider disables the LLM path; only
// QuickScan remains meaningful. Empty hints fall back to the default list.
func NewDetector(provider llm.Provider, hints []string) *Detector {
	if len(hints) == 0 {
		hints = defaultTransitionHints
	}
	return &Detector{llm: provider, hints: hints}
}

// QuickScan reports whether text carries a lexical hint of a topic
// transition. Case-insensitive substring match.
func (d *Detector) QuickScan(text string) bool {
	lower := strings.ToLower(text)
	for _, h := range d.hints {
		if strings.Contains(lower, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

// Detect runs the LLM topic check over the recent utterances. Any failure is
// reported as "no change" so ingestion never stalls on the detector.
func (d *Detector) Detect(ctx context.Context, recent []meet.Utterance, currentTopic, currentSummary string) DetectResult {
	if d.llm == nil || len(recent) == 0 {
		return DetectResult{}
	}

	resp, err := d.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: detectPrompt,
		Messages: []llm.Message{{
			Role: "user",
			Content: fmt.Sprintf("Current topic: %s\nSummary so far: %s\n\nRecent utterances:\n%s",
				currentTopic, currentSummary, formatTranscript(recent)),
		}},
		Temperature: 0,
	})
	if err != nil {
		slog.Debug("topic detection failed", "topic", currentTopic, "error", err)
		return DetectResult{}
	}

	var result DetectResult
	if err := parseJSONBody(resp.Content, &result); err != nil {
		slog.Debug("topic detection returned malformed JSON", "topic", currentTopic, "error", err)
		return DetectResult{}
	}
	return result
}
