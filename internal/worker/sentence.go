package worker

import "strings"

// sentence terminators; a '.' followed by a digit is a decimal point, not a
// boundary.
var terminators = map[rune]struct{}{
	'.': {}, '!': {}, '?': {},
	'。': {}, '！': {}, '？': {},
	'\n': {},
}

// closers are trailing runes kept with the sentence they close.
var closers = map[rune]struct{}{
	')': {}, ']': {}, '"': {}, '\'': {},
	'”': {}, '’': {}, '」': {}, '』': {},
}

// Splitter turns a stream of answer chunks into complete sentences for the
// synthesis queue. Feed returns every sentence completed by the new chunk;
// Flush drains the unterminated remainder when the stream ends.
// Not safe for concurrent use.
type Splitter struct {
	buf []rune
}

// Feed appends chunk and returns the sentences it completed.
func (s *Splitter) Feed(chunk string) []string {
	s.buf = append(s.buf, []rune(chunk)...)

	var out []string
	start := 0
	for i := 0; i < len(s.buf); i++ {
		if _, ok := terminators[s.buf[i]]; !ok {
			continue
		}
		// A terminator at the buffer edge may be mid-number or mid-ellipsis;
		// wait for the next chunk.
		if i == len(s.buf)-1 {
			break
		}
		if s.buf[i] == '.' && isDigit(s.buf[i+1]) {
			continue
		}
		end := i + 1
		for end < len(s.buf) {
			if _, ok := closers[s.buf[end]]; !ok {
				break
			}
			end++
		}
		if sent := strings.TrimSpace(string(s.buf[start:end])); sent != "" {
			out = append(out, sent)
		}
		start = end
		i = end - 1
	}
	s.buf = s.buf[start:]
	return out
}

// Flush returns the buffered remainder, trimmed, and resets the splitter.
func (s *Splitter) Flush() string {
	rest := strings.TrimSpace(string(s.buf))
	s.buf = s.buf[:0]
	return rest
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
