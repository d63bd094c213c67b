package meetingctx

import (
	"testing"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

func u(id int64, text string) meet.Utterance {
	return meet.Utterance{ID: id, SpeakerID: "s1", SpeakerName: "Kim", Text: text}
}

func TestUtteranceRing_EvictsOldest(t *testing.T) {
	t.Parallel()
	r := newUtteranceRing(3)
	for i := int64(1); i <= 5; i++ {
		r.push(u(i, "x"))
	}

	items := r.items()
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	if items[0].ID != 3 || items[2].ID != 5 {
		t.Errorf("window = [%d..%d], want [3..5]", items[0].ID, items[2].ID)
	}
}

func TestUtteranceRing_Since(t *testing.T) {
	t.Parallel()
	r := newUtteranceRing(10)
	for i := int64(1); i <= 6; i++ {
		r.push(u(i, "x"))
	}

	got := r.since(4)
	if len(got) != 2 || got[0].ID != 5 || got[1].ID != 6 {
		t.Errorf("since(4) = %v, want IDs [5 6]", got)
	}
	if all := r.since(0); len(all) != 6 {
		t.Errorf("since(0) len = %d, want 6", len(all))
	}
	if none := r.since(6); len(none) != 0 {
		t.Errorf("since(6) len = %d, want 0", len(none))
	}
}

func TestUtteranceRing_Last(t *testing.T) {
	t.Parallel()
	r := newUtteranceRing(5)
	for i := int64(1); i <= 4; i++ {
		r.push(u(i, "x"))
	}

	got := r.last(2)
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 4 {
		t.Errorf("last(2) = %v, want IDs [3 4]", got)
	}
	if got := r.last(10); len(got) != 4 {
		t.Errorf("last(10) len = %d, want 4", len(got))
	}
}

func TestUtteranceRing_Clear(t *testing.T) {
	t.Parallel()
	r := newUtteranceRing(4)
	r.push(u(1, "x"))
	r.clear()
	if r.len() != 0 || len(r.items()) != 0 {
		t.Error("clear did not empty the ring")
	}
	r.push(u(2, "y"))
	if items := r.items(); len(items) != 1 || items[0].ID != 2 {
		t.Errorf("push after clear = %v", items)
	}
}
