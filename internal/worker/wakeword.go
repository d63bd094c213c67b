package worker

import (
	"strings"

	"github.com/moyeo-ai/moyeo/internal/transcript/phonetic"
)

// wakeTrimSet is punctuation stripped from tokens before wake comparison.
const wakeTrimSet = ",.!?~…、。！？\"'“”‘’"

// WakeDetector spots the assistant's trigger phrase in a transcript and
// extracts the query that follows it. Matching is tolerant of STT noise:
// exact and variant hits are checked first, then a fuzzy pass through the
// phonetic matcher catches near-misses.
type WakeDetector struct {
	wake     string
	variants []string
	matcher  *phonetic.Matcher
}

// NewWakeDetector creates a detector for the given trigger. Variants list
// alternative spellings the STT provider commonly produces.
func NewWakeDetector(wake string, variants ...string) *WakeDetector {
	return &WakeDetector{
		wake:     wake,
		variants: variants,
		matcher:  phonetic.New(phonetic.WithFuzzyThreshold(0.8)),
	}
}

// Detect reports whether text addresses the assistant. When it does, query
// is the text following the trigger, with leading punctuation stripped.
// Words before the trigger are discarded; the query may be empty when the
// speaker paused right after calling the assistant.
func (d *WakeDetector) Detect(text string) (query string, ok bool) {
	tokens := strings.Fields(text)
	for i, tok := range tokens {
		if !d.isWake(strings.Trim(tok, wakeTrimSet)) {
			continue
		}
		rest := strings.Join(tokens[i+1:], " ")
		return strings.TrimLeft(rest, " ,.!?~"), true
	}
	return "", false
}

func (d *WakeDetector) isWake(token string) bool {
	if token == "" {
		return false
	}
	if token == d.wake {
		return true
	}
	for _, v := range d.variants {
		if token == v {
			return true
		}
	}
	_, _, matched := d.matcher.Match(token, []string{d.wake})
	return matched
}
