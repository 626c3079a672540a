package interview

import (
	"strconv"
	"strings"
	"time"
)

// DefaultDuration is used when the configured duration string cannot be parsed.
const DefaultDuration = 30 * time.Minute

// Question is a single prepared interview question.
type Question struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
}

// Config describes one interview session. It is supplied once before the
// session starts and is read-only thereafter.
type Config struct {
	Position      string     `json:"position"`
	Company       string     `json:"company"`
	Type          string     `json:"type"`
	Duration      string     `json:"duration"`
	Difficulty    string     `json:"difficulty"`
	Questions     []Question `json:"questions"`
	CandidateName string     `json:"candidateName"`
}

// Role identifies the speaker of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the append-only conversation log.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is the single current state of a session.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusListening    Status = "listening"
	StatusProcessing   Status = "processing"
	StatusSpeaking     Status = "speaking"
	StatusEnding       Status = "ending"
	StatusEnded        Status = "ended"
	StatusError        Status = "error"
)

// Running reports whether the session has been started and not yet ended.
func (s Status) Running() bool {
	switch s {
	case StatusListening, StatusProcessing, StatusSpeaking, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool { return s == StatusEnded }

// ParseDuration converts a human duration string like "30 min", "45 minutes"
// or "1 hour" into a time.Duration. Bare numbers are taken as minutes.
// Unparseable input yields DefaultDuration.
func ParseDuration(s string) time.Duration {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) == 0 {
		return DefaultDuration
	}
	n, err := strconv.Atoi(strings.TrimSuffix(fields[0], "m"))
	if err != nil || n <= 0 {
		return DefaultDuration
	}
	unit := "min"
	if len(fields) > 1 {
		unit = fields[1]
	}
	switch {
	case strings.HasPrefix(unit, "h"):
		return time.Duration(n) * time.Hour
	case strings.HasPrefix(unit, "s"):
		return time.Duration(n) * time.Second
	default:
		return time.Duration(n) * time.Minute
	}
}
