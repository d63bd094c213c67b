package worker

import "testing"

func TestDetectExtractsQuery(t *testing.T) {
	d := NewWakeDetector("부덕아")

	tests := []struct {
		name  string
		text  string
		query string
		ok    bool
	}{
		{"trigger with query", "부덕아 다음 회의 언제야", "다음 회의 언제야", true},
		{"trigger with punctuation", "부덕아, 회의실 예약해줘", "회의실 예약해줘", true},
		{"trigger alone", "부덕아", "", true},
		{"words before trigger are dropped", "그래서 말인데 부덕아 플랫폼팀 담당자 찾아줘", "플랫폼팀 담당자 찾아줘", true},
		{"no trigger", "오늘 회의는 여기까지 하겠습니다", "", false},
		{"empty text", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, ok := d.Detect(tt.text)
			if ok != tt.ok || query != tt.query {
				t.Fatalf("Detect(%q) = (%q, %v), want (%q, %v)", tt.text, query, ok, tt.query, tt.ok)
			}
		})
	}
}

func TestDetectVariants(t *testing.T) {
	d := NewWakeDetector("부덕아", "부덕이")

	if _, ok := d.Detect("부덕이 안건 정리해줘"); !ok {
		t.Fatal("configured variant not detected")
	}
}

func TestDetectFuzzyNearMiss(t *testing.T) {
	d := NewWakeDetector("부덕아")

	// A common recognizer slip on the final syllable still triggers.
	query, ok := d.Detect("부덕어 회의록 보여줘")
	if !ok {
		t.Fatal("near-miss trigger not detected")
	}
	if query != "회의록 보여줘" {
		t.Fatalf("query = %q", query)
	}
}
