// Package transcript fixes STT errors in meeting-specific vocabulary.
//
// Raw speech-to-text output frequently mangles proper nouns: participant
// names, team names, and product terms are misheard into similar-sounding
// words. The [Corrector] aligns each transcript token (and n-gram windows,
// for multi-word names) against the meeting's known vocabulary using a
// [PhoneticMatcher], and substitutes the best match.
//
// Each [Correction] records the substitution and its confidence so callers
// can audit or display the changes.
package transcript

import "strings"

// Correction captures a single substitution made on a transcript.
type Correction struct {
	// Original is the text as produced by the STT provider.
	Original string

	// Corrected is the replacement vocabulary entry.
	Corrected string

	// Confidence is the matcher's confidence in this substitution (0.0–1.0).
	Confidence float64
}

// PhoneticMatcher aligns a word (or space-separated n-gram) against a
// vocabulary list. When matched is false, corrected equals word unchanged
// and confidence is 0. Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	Match(word string, entities []string) (corrected string, confidence float64, matched bool)
}

// Corrector applies phonetic vocabulary alignment to transcript text. Safe
// for concurrent use when the underlying matcher is.
type Corrector struct {
	matcher PhoneticMatcher
}

// NewCorrector creates a corrector over the given matcher.
func NewCorrector(m PhoneticMatcher) *Corrector {
	return &Corrector{matcher: m}
}

// Correct aligns text against vocabulary and returns the corrected text with
// the list of substitutions. At each token position the longest matching
// n-gram wins, so multi-word names take precedence over partial matches.
// Empty vocabulary returns the text unchanged.
func (c *Corrector) Correct(text string, vocabulary []string) (string, []Correction) {
	if c.matcher == nil || len(vocabulary) == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	maxWords := 1
	for _, v := range vocabulary {
		if n := len(strings.Fields(v)); n > maxWords {
			maxWords = n
		}
	}

	var (
		out         []string
		corrections []Correction
	)
	i := 0
	for i < len(tokens) {
		maxN := maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			entity, conf, ok := c.matcher.Match(window, vocabulary)
			if !ok || entity == window {
				continue
			}
			out = append(out, strings.Fields(entity)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  entity,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}

	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}
