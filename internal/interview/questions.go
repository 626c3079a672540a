package interview

import "sync"

// QuestionTracker hands out the prepared questions in document order and
// remembers which ones were already asked by ID, so a question is never
// re-asked even when its text overlaps another assistant utterance.
type QuestionTracker struct {
	mu        sync.Mutex
	questions []Question
	asked     map[string]bool
}

// NewQuestionTracker copies the question list so later Config mutation by the
// caller cannot affect tracking.
func NewQuestionTracker(questions []Question) *QuestionTracker {
	qs := make([]Question, len(questions))
	copy(qs, questions)
	return &QuestionTracker{questions: qs, asked: make(map[string]bool)}
}

// Next returns the first unasked question and marks it asked. It returns nil
// once every question has been handed out.
func (t *QuestionTracker) Next() *Question {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.questions {
		q := t.questions[i]
		if t.asked[q.ID] {
			continue
		}
		t.asked[q.ID] = true
		cp := q
		return &cp
	}
	return nil
}

// Remaining reports how many questions have not been asked yet.
func (t *QuestionTracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, q := range t.questions {
		if !t.asked[q.ID] {
			n++
		}
	}
	return n
}

// Asked reports how many questions have been handed out.
func (t *QuestionTracker) Asked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.asked)
}
