package meetingctx

import "github.com/moyeo-ai/moyeo/pkg/meet"

// utteranceRing is a fixed-capacity window of utterances. Appending past
// capacity evicts the oldest entry.
type utteranceRing struct {
	buf  []meet.Utterance
	head int // index of the oldest entry
	size int
}

func newUtteranceRing(capacity int) *utteranceRing {
	if capacity < 1 {
		capacity = 1
	}
	return &utteranceRing{buf: make([]meet.Utterance, capacity)}
}

// push appends u, evicting the oldest utterance when full.
func (r *utteranceRing) push(u meet.Utterance) {
	tail := (r.head + r.size) % len(r.buf)
	r.buf[tail] = u
	if r.size < len(r.buf) {
		r.size++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

// items returns the window contents, oldest first.
func (r *utteranceRing) items() []meet.Utterance {
	out := make([]meet.Utterance, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

// since returns the utterances with ID greater than afterID, oldest first.
func (r *utteranceRing) since(afterID int64) []meet.Utterance {
	var out []meet.Utterance
	for i := 0; i < r.size; i++ {
		u := r.buf[(r.head+i)%len(r.buf)]
		if u.ID > afterID {
			out = append(out, u)
		}
	}
	return out
}

// last returns the newest n utterances, oldest first.
func (r *utteranceRing) last(n int) []meet.Utterance {
	if n > r.size {
		n = r.size
	}
	out := make([]meet.Utterance, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

// clear empties the ring.
func (r *utteranceRing) clear() {
	r.head = 0
	r.size = 0
}

func (r *utteranceRing) len() int { return r.size }
