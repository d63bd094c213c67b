package meetingctx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/moyeo-ai/moyeo/pkg/llm"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// summarizePrompt asks the model for a JSON-shaped digest of one topic's
// utterances.
const summarizePrompt = `You summarize a segment of a business meeting transcript.
All utterances below belong to a single topic. Respond with a JSON object:
{"topic_name": string, "summary": string, "key_points": [string],
 "key_decisions": [string], "pending_items": [string], "keywords": [string]}
The summary is one natural-language paragraph. Lists hold short phrases.
Respond with JSON only.`

// recursivePrompt extends an existing topic summary with new utterances
// instead of re-reading the whole segment.
const recursivePrompt = `You maintain a running summary of one meeting topic.
Given the previous summary and the utterances spoken since, produce an updated
digest that merges the new content. Respond with a JSON object:
{"summary": string, "key_points": [string], "key_decisions": [string],
 "pending_items": [string], "keywords": [string]}
Respond with JSON only.`

// SummaryResult is the parsed output of one summarization call.
type SummaryResult struct {
	TopicName    string   `json:"topic_name"`
	Summary      string   `json:"summary"`
	KeyPoints    []string `json:"key_points"`
	KeyDecisions []string `json:"key_decisions"`
	PendingItems []string `json:"pending_items"`
	Keywords     []string `json:"keywords"`
}

// Summarizer produces topic digests with an LLM, falling back to a
// deterministic summary when the model is unavailable or returns garbage.
// Utterances are never dropped on failure; the fallback always succeeds.
type Summarizer struct {
	llm llm.Provider
}

// NewSummarizer creates a Summarizer backed by provider. A nil provider is
// allowed and always takes the deterministic fallback path.
func NewSummarizer(provider llm.Provider) *Summarizer {
	return &Summarizer{llm: provider}
}

// SummarizeTopic digests a fresh topic segment.
func (s *Summarizer) SummarizeTopic(ctx context.Context, utterances []meet.Utterance, topic string) SummaryResult {
	if s.llm == nil {
		return fallbackSummary(utterances, topic)
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarizePrompt,
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Topic: %s\n\n%s", topic, formatTranscript(utterances)),
		}},
		Temperature: 0.3,
	})
	if err != nil {
		return fallbackSummary(utterances, topic)
	}

	var result SummaryResult
	if err := parseJSONBody(resp.Content, &result); err != nil || result.Summary == "" {
		return fallbackSummary(utterances, topic)
	}
	if result.TopicName == "" {
		result.TopicName = topic
	}
	return result
}

// RecursiveSummarize merges new utterances into an existing summary.
func (s *Summarizer) RecursiveSummarize(ctx context.Context, previous string, utterances []meet.Utterance, topic string) SummaryResult {
	if s.llm == nil {
		return fallbackSummary(utterances, topic)
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: recursivePrompt,
		Messages: []llm.Message{{
			Role: "user",
			Content: fmt.Sprintf("Topic: %s\n\nPrevious summary:\n%s\n\nNew utterances:\n%s",
				topic, previous, formatTranscript(utterances)),
		}},
		Temperature: 0.3,
	})
	if err != nil {
		return fallbackSummary(utterances, topic)
	}

	var result SummaryResult
	if err := parseJSONBody(resp.Content, &result); err != nil || result.Summary == "" {
		return fallbackSummary(utterances, topic)
	}
	result.TopicName = topic
	return result
}

// fallbackSummary is the deterministic digest used when the LLM path fails:
// topic name, utterance count, and the first and last text snippets. The
// structured lists stay empty.
func fallbackSummary(utterances []meet.Utterance, topic string) SummaryResult {
	if len(utterances) == 0 {
		return SummaryResult{TopicName: topic, Summary: topic}
	}
	first := snippet(utterances[0].Text)
	last := snippet(utterances[len(utterances)-1].Text)
	summary := fmt.Sprintf("%s (%d utterances): %q ... %q", topic, len(utterances), first, last)
	if len(utterances) == 1 {
		summary = fmt.Sprintf("%s (1 utterance): %q", topic, first)
	}
	return SummaryResult{TopicName: topic, Summary: summary}
}

const snippetLen = 80

func snippet(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= snippetLen {
		return string(runes)
	}
	return string(runes[:snippetLen]) + "…"
}

// formatTranscript renders utterances as "[speaker]: text" lines.
func formatTranscript(utterances []meet.Utterance) string {
	var sb strings.Builder
	for _, u := range utterances {
		name := u.SpeakerName
		if name == "" {
			name = u.SpeakerID
		}
		fmt.Fprintf(&sb, "[%s]: %s\n", name, u.Text)
	}
	return sb.String()
}

// parseJSONBody unmarshals the model's response into v, tolerating prose
// around the JSON by extracting the first '{' through the last '}'.
func parseJSONBody(content string, v any) error {
	if err := json.Unmarshal([]byte(content), v); err == nil {
		return nil
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("meetingctx: no JSON object in response")
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), v); err != nil {
		return fmt.Errorf("meetingctx: parse response: %w", err)
	}
	return nil
}
