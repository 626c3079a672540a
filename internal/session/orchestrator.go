package session

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/chadiek/interview-agent/internal/asr"
	"github.com/chadiek/interview-agent/internal/interview"
	"github.com/chadiek/interview-agent/internal/tts"
)

// finalDedupWindow drops a repeated recognizer final with identical text
// arriving within this window of the previous one.
const finalDedupWindow = time.Second

// greetingListenDelay is the fixed short delay between greeting playback
// starting and the recognizer being opened for the first time.
const greetingListenDelay = 1200 * time.Millisecond

// bargeVoiceWindow is how fresh local voice energy must be to count as the
// user talking over the agent.
const bargeVoiceWindow = 120 * time.Millisecond

// minInterimLen: an utterance-end only promotes the pending interim to a
// user turn when the interim is longer than this.
const minInterimLen = 2

type eventKind int

const (
	evStart eventKind = iota
	evInterim
	evFinal
	evUtteranceEnd
	evSpeechStarted
	evOpenListening
	evGenerated
	evPlaybackStarted
	evPlaybackAlmostDone
	evPlaybackDone
	evPlaybackInterrupted
	evPlaybackError
	evTransportError
	evEndRequested
)

type event struct {
	kind eventKind
	text string
	err  error
}

// allowedTransitions validates every status change. A transition not listed
// here is a bug in the caller and is rejected.
var allowedTransitions = map[interview.Status][]interview.Status{
	interview.StatusIdle:         {interview.StatusInitializing},
	interview.StatusInitializing: {interview.StatusActive, interview.StatusError},
	interview.StatusActive:       {interview.StatusSpeaking, interview.StatusListening, interview.StatusEnding, interview.StatusError},
	interview.StatusListening:    {interview.StatusProcessing, interview.StatusSpeaking, interview.StatusEnding, interview.StatusError},
	interview.StatusProcessing:   {interview.StatusSpeaking, interview.StatusListening, interview.StatusEnding, interview.StatusError},
	interview.StatusSpeaking:     {interview.StatusListening, interview.StatusProcessing, interview.StatusEnding, interview.StatusError},
	interview.StatusError:        {interview.StatusListening, interview.StatusEnding},
	interview.StatusEnding:       {interview.StatusEnded},
	interview.StatusEnded:        {},
}

// Session orchestrates recognizer -> interviewer -> speech playback for one
// interview. All state transitions happen on a single run-loop goroutine fed
// by an internal event queue; external callbacks only enqueue.
type Session struct {
	id     string
	cfg    interview.Config
	events Events

	transport   Transport
	interviewer Interviewer
	speaker     Speaker
	store       Store
	voice       VoiceDetector

	ctx    context.Context
	cancel context.CancelFunc

	queue   chan event
	endedCh chan struct{}
	endOnce sync.Once

	mu       sync.RWMutex
	status   interview.Status
	messages []interview.Message
	summary  *interview.Summary

	// run-loop-owned state
	listenDelay   time.Duration
	tracker       *interview.QuestionTracker
	startedAt     time.Time
	timer         *time.Timer
	processing    bool
	started       bool
	listenOpened  bool
	openScheduled bool
	lastInterim   string
	lastUserText  string
	lastUserAt    time.Time
}

// New validates credentials and constructs a session in the quiescent
// active state, awaiting Start. A missing credential fails synchronously
// with ErrConfiguration.
func New(id string, cfg interview.Config, creds Credentials, deps Deps, events Events) (*Session, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          id,
		cfg:         cfg,
		events:      events,
		transport:   deps.Transport,
		interviewer: deps.Interviewer,
		store:       deps.Store,
		voice:       deps.Voice,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan event, 64),
		endedCh:     make(chan struct{}),
		status:      interview.StatusIdle,
		listenDelay: greetingListenDelay,
		tracker:     interview.NewQuestionTracker(cfg.Questions),
	}
	s.setStatus(interview.StatusInitializing)
	s.speaker = deps.NewSpeaker(tts.PlayerEvents{
		OnStarted:     func() { s.enqueue(event{kind: evPlaybackStarted}) },
		OnAlmostDone:  func() { s.enqueue(event{kind: evPlaybackAlmostDone}) },
		OnDone:        func() { s.enqueue(event{kind: evPlaybackDone}) },
		OnInterrupted: func() { s.enqueue(event{kind: evPlaybackInterrupted}) },
		OnError:       func(err error) { s.enqueue(event{kind: evPlaybackError, err: err}) },
	})
	s.setStatus(interview.StatusActive)

	go s.run()
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Config() interview.Config { return s.cfg }

// Status returns the current session status.
func (s *Session) Status() interview.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Messages returns a copy of the conversation log.
func (s *Session) Messages() []interview.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]interview.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Stats derives live statistics from the conversation so far. After the
// session ends it returns the terminal summary.
func (s *Session) Stats() interview.Summary {
	s.mu.RLock()
	if s.summary != nil {
		out := *s.summary
		s.mu.RUnlock()
		return out
	}
	msgs := make([]interview.Message, len(s.messages))
	copy(msgs, s.messages)
	startedAt := s.startedAt
	s.mu.RUnlock()

	var elapsed time.Duration
	if !startedAt.IsZero() {
		elapsed = time.Since(startedAt)
	}
	return interview.BuildSummary(s.cfg, msgs, elapsed)
}

// Start begins the interview: greeting, then listening. It reports whether
// the session accepted the start; it never returns an error.
func (s *Session) Start() bool {
	s.mu.RLock()
	ok := s.status == interview.StatusActive
	s.mu.RUnlock()
	if !ok {
		return false
	}
	s.enqueue(event{kind: evStart})
	return true
}

// End tears the session down and returns the terminal summary. It is
// idempotent and safe to call from any goroutine, including teardown paths;
// every call returns the same summary.
func (s *Session) End() interview.Summary {
	s.endOnce.Do(func() {
		select {
		case s.queue <- event{kind: evEndRequested}:
		case <-s.endedCh:
		}
	})
	<-s.endedCh
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.summary
}

// FeedAudio forwards captured microphone audio to the recognizer and the
// local voice detector. While the agent is speaking, sustained local voice
// energy is treated as the user starting to talk.
func (s *Session) FeedAudio(pcm []byte) {
	_ = s.transport.SendAudio(pcm)
	if s.voice == nil {
		return
	}
	s.voice.Feed(pcm)
	if s.speaker.Speaking() && s.voice.Active(bargeVoiceWindow) {
		s.enqueue(event{kind: evSpeechStarted})
	}
}

func (s *Session) enqueue(ev event) {
	select {
	case <-s.endedCh:
	case s.queue <- ev:
	default:
		log.Printf("[%s] event queue full, dropping event kind=%d", s.id, ev.kind)
	}
}

// run is the single transition loop. Nothing else mutates session state.
func (s *Session) run() {
	for ev := range s.queue {
		if s.handle(ev) {
			return
		}
	}
}

// handle applies one event; it reports true when the session is finished.
func (s *Session) handle(ev event) bool {
	switch ev.kind {
	case evStart:
		s.handleStart()
	case evInterim:
		s.lastInterim = ev.text
	case evFinal:
		s.handleFinal(ev.text)
	case evUtteranceEnd:
		s.handleUtteranceEnd()
	case evSpeechStarted:
		s.handleSpeechStarted()
	case evOpenListening:
		s.openListening()
	case evGenerated:
		s.handleGenerated(ev.text)
	case evPlaybackStarted:
		s.handlePlaybackStarted()
	case evPlaybackAlmostDone:
		// Reopen the ear slightly before the mouth closes, so a fast
		// candidate is heard without lag.
		s.openListeningTransportOnly()
	case evPlaybackDone, evPlaybackInterrupted:
		s.handlePlaybackDone()
	case evPlaybackError:
		s.emitError(ev.err)
		s.setStatus(interview.StatusListening)
	case evTransportError:
		s.emitError(ev.err)
		s.setStatus(interview.StatusError)
	case evEndRequested:
		s.teardown()
		return true
	}
	return false
}

func (s *Session) handleStart() {
	if s.started {
		return
	}
	s.started = true

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	budget := interview.ParseDuration(s.cfg.Duration)
	s.timer = time.AfterFunc(budget, func() { go s.End() })

	go func() {
		text := s.interviewer.Greeting(s.ctx, s.cfg)
		s.enqueue(event{kind: evGenerated, text: text})
	}()
}

func (s *Session) handleFinal(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	// barge-in: user speech always preempts agent speech
	s.bargeIn()
	if !s.appendUser(text) {
		return
	}
	if s.processing {
		// one processing cycle at a time; the appended turn rides along in
		// the history of the next generation
		return
	}
	s.beginProcessing(text)
}

func (s *Session) handleUtteranceEnd() {
	pending := strings.TrimSpace(s.lastInterim)
	if s.processing || len(pending) <= minInterimLen {
		return
	}
	s.lastInterim = ""
	s.handleFinal(pending)
}

func (s *Session) handleSpeechStarted() {
	s.bargeIn()
}

// bargeIn cuts agent playback when the user starts talking over it. The
// check-and-clear inside Interrupt guarantees at most one cut per utterance.
func (s *Session) bargeIn() {
	if !s.speaker.Speaking() {
		return
	}
	if s.speaker.Interrupt() && s.Status() == interview.StatusSpeaking {
		s.setStatus(interview.StatusListening)
	}
}

func (s *Session) beginProcessing(userText string) {
	s.processing = true
	s.lastInterim = ""
	s.setStatus(interview.StatusProcessing)

	history := s.Messages()
	if n := len(history); n > 0 {
		// the latest user turn is passed separately
		history = history[:n-1]
	}
	next := s.tracker.Next()
	go func() {
		reply := s.interviewer.NextUtterance(s.ctx, s.cfg, history, userText, next)
		s.enqueue(event{kind: evGenerated, text: reply})
	}()
}

func (s *Session) handleGenerated(text string) {
	s.processing = false
	if text == "" {
		s.setStatus(interview.StatusListening)
		return
	}
	s.appendAssistant(text)
	if !s.setStatus(interview.StatusSpeaking) {
		// the session left the conversational loop while generation was in
		// flight; keep the reply in the log but do not voice it
		return
	}
	if !s.speaker.Speak(s.ctx, text) {
		log.Printf("[%s] speaker busy, dropping utterance", s.id)
		s.setStatus(interview.StatusListening)
	}
}

func (s *Session) handlePlaybackStarted() {
	if s.listenOpened || s.openScheduled {
		return
	}
	s.openScheduled = true
	time.AfterFunc(s.listenDelay, func() { s.enqueue(event{kind: evOpenListening}) })
}

func (s *Session) handlePlaybackDone() {
	if s.Status() == interview.StatusSpeaking {
		s.setStatus(interview.StatusListening)
	}
}

// openListening opens the recognizer (idempotent at the transport level) and
// moves to listening.
func (s *Session) openListening() {
	s.openListeningTransportOnly()
	st := s.Status()
	if st == interview.StatusSpeaking || st == interview.StatusActive {
		s.setStatus(interview.StatusListening)
	}
}

func (s *Session) openListeningTransportOnly() {
	if err := s.transport.Open(s.transportHandlers()); err != nil {
		s.emitError(err)
		s.setStatus(interview.StatusError)
		return
	}
	s.transport.Resume()
	s.listenOpened = true
}

func (s *Session) transportHandlers() asr.Handlers {
	return asr.Handlers{
		OnInterim:       func(text string) { s.enqueue(event{kind: evInterim, text: text}) },
		OnFinal:         func(text string, _ float64) { s.enqueue(event{kind: evFinal, text: text}) },
		OnSpeechStarted: func() { s.enqueue(event{kind: evSpeechStarted}) },
		OnUtteranceEnd:  func() { s.enqueue(event{kind: evUtteranceEnd}) },
		OnError:         func(err error) { s.enqueue(event{kind: evTransportError, err: err}) },
	}
}

func (s *Session) teardown() {
	s.setStatus(interview.StatusEnding)
	if s.timer != nil {
		s.timer.Stop()
	}
	if err := s.transport.Close(); err != nil {
		log.Printf("[%s] transport close: %v", s.id, err)
	}
	s.speaker.Interrupt()

	var elapsed time.Duration
	s.mu.Lock()
	if !s.startedAt.IsZero() {
		elapsed = time.Since(s.startedAt)
	}
	msgs := make([]interview.Message, len(s.messages))
	copy(msgs, s.messages)
	s.mu.Unlock()

	summary := interview.BuildSummary(s.cfg, msgs, elapsed)
	s.mu.Lock()
	s.summary = &summary
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveSummary(s.id, summary); err != nil {
			log.Printf("[%s] persist summary: %v", s.id, err)
		}
	}

	s.setStatus(interview.StatusEnded)
	s.cancel()
	close(s.endedCh)
}

// appendUser appends a candidate turn, dropping an identical final that
// arrives within the dedup window. It reports whether the turn was appended.
func (s *Session) appendUser(text string) bool {
	now := time.Now()
	if text == s.lastUserText && now.Sub(s.lastUserAt) <= finalDedupWindow {
		return false
	}
	s.lastUserText = text
	s.lastUserAt = now
	s.append(interview.Message{Role: interview.RoleUser, Content: text, Timestamp: now})
	return true
}

func (s *Session) appendAssistant(text string) {
	s.append(interview.Message{Role: interview.RoleAssistant, Content: text, Timestamp: time.Now()})
}

func (s *Session) append(msg interview.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	if s.events.OnConversation != nil {
		s.events.OnConversation(msg)
	}
}

// setStatus applies a validated status transition and notifies the owner.
// Invalid transitions are rejected and logged.
func (s *Session) setStatus(next interview.Status) bool {
	s.mu.Lock()
	cur := s.status
	if cur == next {
		s.mu.Unlock()
		return true
	}
	ok := false
	for _, allowed := range allowedTransitions[cur] {
		if allowed == next {
			ok = true
			break
		}
	}
	if !ok {
		s.mu.Unlock()
		log.Printf("[%s] rejected status transition %s -> %s", s.id, cur, next)
		return false
	}
	s.status = next
	s.mu.Unlock()
	if s.events.OnStatus != nil {
		s.events.OnStatus(next)
	}
	return true
}

func (s *Session) emitError(err error) {
	if err == nil {
		return
	}
	log.Printf("[%s] session error: %v", s.id, err)
	if s.events.OnError != nil {
		s.events.OnError(err)
	}
}
