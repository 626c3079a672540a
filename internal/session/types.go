package session

import (
	"context"
	"errors"
	"time"

	"github.com/chadiek/interview-agent/internal/asr"
	"github.com/chadiek/interview-agent/internal/interview"
	"github.com/chadiek/interview-agent/internal/tts"
)

// ErrConfiguration indicates missing or invalid external-service credentials.
// It is the only error that aborts session construction.
var ErrConfiguration = errors.New("missing required credentials")

// Credentials are the external-service secrets a session cannot run without.
type Credentials struct {
	ASRKey string
	LLMKey string
}

func (c Credentials) validate() error {
	if c.ASRKey == "" {
		return errors.Join(ErrConfiguration, errors.New("speech service key not set"))
	}
	if c.LLMKey == "" {
		return errors.Join(ErrConfiguration, errors.New("generation service key not set"))
	}
	return nil
}

// Transport is the duplex speech-recognition connection: audio in,
// transcript events out. Open must be idempotent; SendAudio must drop
// rather than buffer when the connection is not ready.
type Transport interface {
	Open(h asr.Handlers) error
	SendAudio(chunk []byte) error
	Pause()
	Resume()
	Close() error
}

// Speaker plays one synthesized utterance at a time.
type Speaker interface {
	Speak(ctx context.Context, text string) bool
	Interrupt() bool
	Speaking() bool
}

// Interviewer produces interviewer utterances. Implementations must degrade
// to deterministic fallback text instead of returning errors.
type Interviewer interface {
	Greeting(ctx context.Context, cfg interview.Config) string
	NextUtterance(ctx context.Context, cfg interview.Config, history []interview.Message, userText string, next *interview.Question) string
}

// VoiceDetector is the local energy backstop used to confirm barge-in while
// the agent is speaking.
type VoiceDetector interface {
	Feed(pcm []byte)
	Active(window time.Duration) bool
}

// Store persists the terminal summary of a session.
type Store interface {
	SaveSummary(id string, s interview.Summary) error
}

// Events are the constructor-injected notifications a session emits. Nil
// fields are skipped. Message values are copies; receivers may keep them.
type Events struct {
	OnConversation func(msg interview.Message)
	OnStatus       func(status interview.Status)
	OnError        func(err error)
}

// Deps bundles the session's collaborators. NewSpeaker exists so the session
// can route playback notifications into its own event queue while the
// concrete player still receives its callbacks at construction time.
type Deps struct {
	Transport   Transport
	Interviewer Interviewer
	NewSpeaker  func(ev tts.PlayerEvents) Speaker
	Store       Store
	// Voice is optional; when nil, barge-in relies on recognizer events only.
	Voice VoiceDetector
}
