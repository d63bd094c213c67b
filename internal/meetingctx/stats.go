package meetingctx

import (
	"sort"
	"time"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// SpeakerStat aggregates one participant's share of the conversation.
type SpeakerStat struct {
	SpeakerID   string        `json:"speaker_id"`
	SpeakerName string        `json:"speaker_name"`
	Utterances  int           `json:"utterances"`
	TalkTime    time.Duration `json:"talk_time_ms"`
	LastSpokeAt time.Time     `json:"last_spoke_at"`
}

// speakerTracker accumulates per-speaker stats as utterances arrive. Not
// safe for concurrent use; the owning Manager serializes access.
type speakerTracker struct {
	stats map[string]*SpeakerStat
}

func newSpeakerTracker() *speakerTracker {
	return &speakerTracker{stats: make(map[string]*SpeakerStat)}
}

func (t *speakerTracker) observe(u meet.Utterance) {
	s, ok := t.stats[u.SpeakerID]
	if !ok {
		s = &SpeakerStat{SpeakerID: u.SpeakerID, SpeakerName: u.SpeakerName}
		t.stats[u.SpeakerID] = s
	}
	s.Utterances++
	if u.EndMS > u.StartMS {
		s.TalkTime += time.Duration(u.EndMS-u.StartMS) * time.Millisecond
	}
	if u.SpeakerName != "" {
		s.SpeakerName = u.SpeakerName
	}
	s.LastSpokeAt = u.Timestamp
}

// snapshot returns the stats ordered by talk time, most talkative first.
func (t *speakerTracker) snapshot() []SpeakerStat {
	out := make([]SpeakerStat, 0, len(t.stats))
	for _, s := range t.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TalkTime != out[j].TalkTime {
			return out[i].TalkTime > out[j].TalkTime
		}
		return out[i].SpeakerID < out[j].SpeakerID
	})
	return out
}

func (t *speakerTracker) restore(stats []SpeakerStat) {
	for i := range stats {
		s := stats[i]
		t.stats[s.SpeakerID] = &s
	}
}
