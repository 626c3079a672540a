package interview

import (
	"strings"
	"time"
)

// TranscriptEntry is one speaker-labelled line of the final transcript.
type TranscriptEntry struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the terminal output of a session. It is computed once when the
// interview ends and never mutated afterwards.
type Summary struct {
	Transcript            []TranscriptEntry `json:"transcript"`
	TotalMessages         int               `json:"totalMessages"`
	CandidateResponses    int               `json:"candidateResponseCount"`
	InterviewerQuestions  int               `json:"interviewerQuestionCount"`
	AverageResponseLength int               `json:"averageResponseLength"`
	DurationSeconds       int               `json:"durationSeconds"`
}

// BuildSummary derives a Summary from the conversation log. Speaker labels
// come from the config so the transcript reads with the candidate's name.
func BuildSummary(cfg Config, messages []Message, duration time.Duration) Summary {
	candidate := strings.TrimSpace(cfg.CandidateName)
	if candidate == "" {
		candidate = "Candidate"
	}

	s := Summary{
		Transcript:      make([]TranscriptEntry, 0, len(messages)),
		TotalMessages:   len(messages),
		DurationSeconds: int(duration.Seconds()),
	}

	var responseChars int
	for _, m := range messages {
		speaker := "Interviewer"
		if m.Role == RoleUser {
			speaker = candidate
			s.CandidateResponses++
			responseChars += len(m.Content)
		} else {
			s.InterviewerQuestions++
		}
		s.Transcript = append(s.Transcript, TranscriptEntry{
			Speaker:   speaker,
			Text:      m.Content,
			Timestamp: m.Timestamp,
		})
	}
	if s.CandidateResponses > 0 {
		s.AverageResponseLength = responseChars / s.CandidateResponses
	}
	return s
}
