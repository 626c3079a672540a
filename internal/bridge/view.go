// Package bridge adapts a live interview session for presentation clients.
// A View mirrors the conversation log and status, and fans updates out to
// subscribers; a Monitor tracks the latest error with auto-clearing.
package bridge

import (
	"log"
	"sync"
	"time"

	"github.com/chadiek/interview-agent/internal/interview"
	"github.com/chadiek/interview-agent/internal/session"
)

// deliveryDedupWindow suppresses a conversation update whose content, role
// and near-identical timestamp match one already delivered. The session's
// own suppression works at the recognizer-final boundary; this one guards
// the delivery boundary.
const deliveryDedupWindow = 900 * time.Millisecond

// dedupScan bounds how far back the log is compared for duplicates.
const dedupScan = 4

// Controller is the slice of the session the view drives.
type Controller interface {
	Start() bool
	End() interview.Summary
	Status() interview.Status
	Stats() interview.Summary
}

// UpdateKind tags a fan-out update.
type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
	UpdateStatus  UpdateKind = "status"
	UpdateError   UpdateKind = "error"
)

// Update is one presentation event delivered to subscribers.
type Update struct {
	Kind    UpdateKind         `json:"kind"`
	Message *interview.Message `json:"message,omitempty"`
	Status  interview.Status   `json:"status,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// View mirrors one session's observable state. Construct it first, wire its
// Events into session.New, then Attach the session for control calls.
type View struct {
	mu       sync.RWMutex
	ctrl     Controller
	status   interview.Status
	messages []interview.Message
	lastErr  error

	subMu  sync.Mutex
	subs   map[int]chan Update
	nextID int
}

func NewView() *View {
	return &View{
		status: interview.StatusIdle,
		subs:   make(map[int]chan Update),
	}
}

// Events returns the typed callbacks to hand to session.New. They only copy
// state and fan out; they never block.
func (v *View) Events() session.Events {
	return session.Events{
		OnConversation: v.onConversation,
		OnStatus:       v.onStatus,
		OnError:        v.onError,
	}
}

// Attach binds the controller once the session exists.
func (v *View) Attach(c Controller) {
	v.mu.Lock()
	v.ctrl = c
	v.mu.Unlock()
}

func (v *View) onConversation(msg interview.Message) {
	v.mu.Lock()
	if v.alreadyDelivered(msg) {
		v.mu.Unlock()
		return
	}
	v.messages = append(v.messages, msg)
	v.mu.Unlock()
	m := msg
	v.publish(Update{Kind: UpdateMessage, Message: &m})
}

// alreadyDelivered matches on content, role and sub-second timestamp
// proximity against the tail of the mirrored log. Caller holds v.mu.
func (v *View) alreadyDelivered(msg interview.Message) bool {
	start := len(v.messages) - dedupScan
	if start < 0 {
		start = 0
	}
	for _, held := range v.messages[start:] {
		if held.Role != msg.Role || held.Content != msg.Content {
			continue
		}
		delta := msg.Timestamp.Sub(held.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta <= deliveryDedupWindow {
			return true
		}
	}
	return false
}

func (v *View) onStatus(st interview.Status) {
	v.mu.Lock()
	v.status = st
	v.mu.Unlock()
	v.publish(Update{Kind: UpdateStatus, Status: st})
}

func (v *View) onError(err error) {
	v.mu.Lock()
	v.lastErr = err
	v.mu.Unlock()
	v.publish(Update{Kind: UpdateError, Error: err.Error()})
}

// Watch subscribes to fan-out updates. The returned cancel func must be
// called when the subscriber goes away. Slow subscribers lose updates
// rather than stalling the session.
func (v *View) Watch(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Update, buffer)
	v.subMu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = ch
	v.subMu.Unlock()

	cancel := func() {
		v.subMu.Lock()
		if _, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(ch)
		}
		v.subMu.Unlock()
	}
	return ch, cancel
}

func (v *View) publish(u Update) {
	v.subMu.Lock()
	defer v.subMu.Unlock()
	for id, ch := range v.subs {
		select {
		case ch <- u:
		default:
			log.Printf("bridge: subscriber %d lagging, update dropped", id)
		}
	}
}

// Status returns the mirrored session status.
func (v *View) Status() interview.Status {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.status
}

// Connected reports whether the session is live in any running state.
func (v *View) Connected() bool { return v.Status().Running() }

func (v *View) Listening() bool { return v.Status() == interview.StatusListening }

func (v *View) Speaking() bool { return v.Status() == interview.StatusSpeaking }

// Conversation returns a copy of the delivered conversation log.
func (v *View) Conversation() []interview.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]interview.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// LastError returns the most recent surfaced error, or nil.
func (v *View) LastError() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastErr
}

// ClearError dismisses the surfaced error.
func (v *View) ClearError() {
	v.mu.Lock()
	v.lastErr = nil
	v.mu.Unlock()
}

// StartInterview begins the attached session.
func (v *View) StartInterview() bool {
	v.mu.RLock()
	c := v.ctrl
	v.mu.RUnlock()
	if c == nil {
		return false
	}
	return c.Start()
}

// EndInterview tears the attached session down and returns its summary.
func (v *View) EndInterview() interview.Summary {
	v.mu.RLock()
	c := v.ctrl
	v.mu.RUnlock()
	if c == nil {
		return interview.Summary{}
	}
	return c.End()
}

// Transcript returns the speaker-labelled transcript so far.
func (v *View) Transcript() []interview.TranscriptEntry {
	return v.InterviewStats().Transcript
}

// InterviewStats returns live statistics for the attached session.
func (v *View) InterviewStats() interview.Summary {
	v.mu.RLock()
	c := v.ctrl
	v.mu.RUnlock()
	if c == nil {
		return interview.Summary{}
	}
	return c.Stats()
}
