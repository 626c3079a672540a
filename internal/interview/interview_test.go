package interview

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30 min", 30 * time.Minute},
		{"45 minutes", 45 * time.Minute},
		{"1 hour", time.Hour},
		{"90 seconds", 90 * time.Second},
		{"20", 20 * time.Minute},
		{"15m", 15 * time.Minute},
		{"", DefaultDuration},
		{"soon", DefaultDuration},
		{"-5 min", DefaultDuration},
	}
	for _, tc := range cases {
		if got := ParseDuration(tc.in); got != tc.want {
			t.Fatalf("ParseDuration(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestQuestionTracker_OrderAndExhaustion(t *testing.T) {
	tr := NewQuestionTracker([]Question{
		{ID: "q1", Text: "Tell me about a hard bug."},
		{ID: "q2", Text: "Explain a hash map."},
		{ID: "q3", Text: "Design a rate limiter."},
	})
	for i, want := range []string{"q1", "q2", "q3"} {
		q := tr.Next()
		if q == nil || q.ID != want {
			t.Fatalf("call %d: got %+v, want ID %s", i, q, want)
		}
	}
	if q := tr.Next(); q != nil {
		t.Fatalf("expected nil after exhaustion, got %+v", q)
	}
	if tr.Remaining() != 0 || tr.Asked() != 3 {
		t.Fatalf("remaining=%d asked=%d", tr.Remaining(), tr.Asked())
	}
}

func TestQuestionTracker_NeverRepeatsByID(t *testing.T) {
	// Overlapping texts must not confuse tracking; IDs are authoritative.
	tr := NewQuestionTracker([]Question{
		{ID: "a", Text: "Explain concurrency."},
		{ID: "b", Text: "Explain concurrency in Go specifically."},
	})
	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		if q := tr.Next(); q != nil {
			seen[q.ID]++
		}
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("question %s handed out %d times", id, n)
		}
	}
	if len(seen) != 2 {
		t.Fatalf("expected both questions handed out, got %v", seen)
	}
}

func TestBuildSummary(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		{Role: RoleAssistant, Content: "Welcome, let's begin.", Timestamp: base},
		{Role: RoleUser, Content: "Thanks, ready.", Timestamp: base.Add(5 * time.Second)},
		{Role: RoleAssistant, Content: "First question.", Timestamp: base.Add(10 * time.Second)},
		{Role: RoleUser, Content: "Here is my long answer.", Timestamp: base.Add(30 * time.Second)},
	}
	s := BuildSummary(Config{CandidateName: "Ada"}, msgs, 42*time.Second)
	if s.TotalMessages != 4 {
		t.Fatalf("total=%d", s.TotalMessages)
	}
	if s.CandidateResponses != 2 || s.InterviewerQuestions != 2 {
		t.Fatalf("responses=%d questions=%d", s.CandidateResponses, s.InterviewerQuestions)
	}
	wantAvg := (len("Thanks, ready.") + len("Here is my long answer.")) / 2
	if s.AverageResponseLength != wantAvg {
		t.Fatalf("avg=%d want %d", s.AverageResponseLength, wantAvg)
	}
	if s.DurationSeconds != 42 {
		t.Fatalf("duration=%d", s.DurationSeconds)
	}
	if s.Transcript[1].Speaker != "Ada" || s.Transcript[0].Speaker != "Interviewer" {
		t.Fatalf("speaker labels wrong: %+v", s.Transcript[:2])
	}
}

func TestBuildSummary_Empty(t *testing.T) {
	s := BuildSummary(Config{}, nil, 0)
	if s.TotalMessages != 0 || s.AverageResponseLength != 0 || len(s.Transcript) != 0 {
		t.Fatalf("unexpected summary for empty log: %+v", s)
	}
}
