package asr

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RECONNECT_BACKOFF is the fixed wait before the single automatic reconnect
// attempt after an unclean socket close.
const RECONNECT_BACKOFF = 750 * time.Millisecond

// KEEPALIVE_INTERVAL keeps the Deepgram socket open across quiet stretches.
const KEEPALIVE_INTERVAL = 5 * time.Second

// WRITE_TIMEOUT bounds every outbound frame so a stalled socket cannot wedge
// the write loop.
const WRITE_TIMEOUT = 5 * time.Second

// Options tune the live transcription connection.
type Options struct {
	Model          string
	Language       string
	SampleRate     int
	EndpointingMs  string
	UtteranceEndMs string
}

func (o *Options) fill() {
	if o.Model == "" {
		o.Model = "nova-2"
	}
	if o.Language == "" {
		o.Language = "en-US"
	}
	if o.SampleRate == 0 {
		o.SampleRate = 48000
	}
	if o.EndpointingMs == "" {
		o.EndpointingMs = "300"
	}
	if o.UtteranceEndMs == "" {
		o.UtteranceEndMs = "1000"
	}
}

// Handlers receive transport events. Nil fields are skipped.
type Handlers struct {
	OnInterim       func(text string)
	OnFinal         func(text string, confidence float64)
	OnSpeechStarted func()
	OnUtteranceEnd  func()
	OnError         func(err error)
}

// DeepgramLive is a duplex streaming connection to Deepgram's live
// transcription API: audio in over binary frames, tagged JSON events out.
// The transport buffers nothing itself: audio sent while the connection is
// not ready is dropped.
type DeepgramLive struct {
	apiKey   string
	opts     Options
	handlers Handlers

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	paused    bool
	retried   bool

	audioData  chan []byte
	stopCh     chan struct{}
	closeOnce  sync.Once
	writerDone chan struct{}

	// test knobs; production values come from the package constants
	dialOverride   string
	keepAliveEvery time.Duration
	writeTimeout   time.Duration
}

// Deepgram live message envelopes.
type resultsMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type speechStartedMessage struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

type utteranceEndMessage struct {
	Type        string  `json:"type"`
	LastWordEnd float64 `json:"last_word_end"`
}

type errorMessage struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// NewDeepgramLive creates a new live transcription transport.
func NewDeepgramLive(apiKey string, opts Options) *DeepgramLive {
	opts.fill()
	return &DeepgramLive{
		apiKey:         apiKey,
		opts:           opts,
		audioData:      make(chan []byte, 1000),
		stopCh:         make(chan struct{}),
		keepAliveEvery: KEEPALIVE_INTERVAL,
		writeTimeout:   WRITE_TIMEOUT,
	}
}

// Open establishes the websocket connection and registers the event
// handlers. Calling Open while already open is a no-op on the existing
// connection; the orchestrator does not track whether a physical connection
// exists.
func (d *DeepgramLive) Open(h Handlers) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("deepgram live: transport closed")
	}
	if d.connected {
		return nil
	}
	if d.apiKey == "" {
		return fmt.Errorf("deepgram live: API key is empty")
	}
	d.handlers = h

	conn, err := d.dial()
	if err != nil {
		return err
	}
	d.conn = conn
	d.connected = true

	done := make(chan struct{})
	d.writerDone = done

	go d.handleMessages(conn)
	go d.writeLoop(done)

	log.Println("connected to Deepgram live transcription")
	return nil
}

func (d *DeepgramLive) dial() (*websocket.Conn, error) {
	params := url.Values{}
	params.Set("model", d.opts.Model)
	params.Set("language", d.opts.Language)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", fmt.Sprintf("%d", d.opts.SampleRate))
	params.Set("channels", "1")
	params.Set("punctuate", "true")
	params.Set("interim_results", "true")
	params.Set("vad_events", "true")
	params.Set("endpointing", d.opts.EndpointingMs)
	params.Set("utterance_end_ms", d.opts.UtteranceEndMs)

	base := "wss://api.deepgram.com/v1/listen"
	if d.dialOverride != "" {
		base = d.dialOverride
	}
	wsURL := fmt.Sprintf("%s?%s", base, params.Encode())
	headers := map[string][]string{"Authorization": {"Token " + d.apiKey}}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("Deepgram connection failed with status: %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to connect to Deepgram: %w", err)
	}
	return conn, nil
}

// SendAudio queues a PCM16 chunk for delivery. Chunks arriving while the
// connection is not ready, paused, or the queue is full are dropped.
func (d *DeepgramLive) SendAudio(chunk []byte) error {
	d.mu.RLock()
	ready := d.connected && !d.paused
	d.mu.RUnlock()
	if !ready {
		return nil
	}
	select {
	case d.audioData <- chunk:
	default:
		log.Println("Deepgram audio buffer full, dropping packet")
	}
	return nil
}

// Pause stops forwarding audio without tearing down the socket.
func (d *DeepgramLive) Pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

// Resume re-enables audio forwarding.
func (d *DeepgramLive) Resume() {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
}

// Close shuts the transport down. Safe to call more than once.
func (d *DeepgramLive) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	conn := d.conn
	d.conn = nil
	d.connected = false
	done := d.writerDone
	d.mu.Unlock()

	d.closeOnce.Do(func() { close(d.stopCh) })
	// Wait for the write loop to exit: the connection allows a single
	// concurrent writer, and the closing frame below must not race it.
	if done != nil {
		<-done
	}
	if conn != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(d.writeTimeout))
		_ = conn.WriteJSON(map[string]string{"type": "CloseStream"})
		_ = conn.Close()
	}
	log.Println("Deepgram live connection closed")
	return nil
}

// handleMessages processes incoming websocket messages until the connection
// dies or the transport is closed. An unclean close triggers exactly one
// automatic reconnect after a fixed backoff.
func (d *DeepgramLive) handleMessages(conn *websocket.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in handleMessages: %v", r)
		}
	}()
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			d.onReadError(conn, err)
			return
		}
		d.processMessage(message)
	}
}

func (d *DeepgramLive) onReadError(conn *websocket.Conn, err error) {
	d.mu.Lock()
	// Ignore errors from a connection we already replaced or closed.
	if d.closed || d.conn != conn {
		d.mu.Unlock()
		return
	}
	d.connected = false
	d.conn = nil
	alreadyRetried := d.retried
	d.retried = true
	d.mu.Unlock()

	if alreadyRetried {
		log.Printf("Deepgram read error after reconnect: %v", err)
		d.emitError(fmt.Errorf("deepgram live: connection lost: %w", err))
		return
	}

	log.Printf("Deepgram read error, reconnecting once: %v", err)
	time.Sleep(RECONNECT_BACKOFF)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	next, dialErr := d.dial()
	if dialErr != nil {
		d.mu.Unlock()
		d.emitError(fmt.Errorf("deepgram live: reconnect failed: %w", dialErr))
		return
	}
	d.conn = next
	d.connected = true
	d.mu.Unlock()

	log.Println("Deepgram live reconnected")
	go d.handleMessages(next)
}

func (d *DeepgramLive) emitError(err error) {
	d.mu.RLock()
	onError := d.handlers.OnError
	d.mu.RUnlock()
	if onError != nil {
		onError(err)
	}
}

// processMessage dispatches one tagged event from Deepgram.
func (d *DeepgramLive) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}
	d.mu.RLock()
	h := d.handlers
	d.mu.RUnlock()

	switch base.Type {
	case "Results":
		var msg resultsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Results message: %v", err)
			return
		}
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return
		}
		if msg.IsFinal {
			if h.OnFinal != nil {
				h.OnFinal(alt.Transcript, alt.Confidence)
			}
		} else if h.OnInterim != nil {
			h.OnInterim(alt.Transcript)
		}
	case "SpeechStarted":
		var msg speechStartedMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling SpeechStarted message: %v", err)
			return
		}
		if h.OnSpeechStarted != nil {
			h.OnSpeechStarted()
		}
	case "UtteranceEnd":
		var msg utteranceEndMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling UtteranceEnd message: %v", err)
			return
		}
		if h.OnUtteranceEnd != nil {
			h.OnUtteranceEnd()
		}
	case "Metadata":
		// connection bookkeeping from Deepgram, nothing to forward
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Error message: %v", err)
			return
		}
		log.Printf("Deepgram error: %s", msg.Description)
		d.emitError(fmt.Errorf("deepgram live: %s", msg.Description))
	default:
		log.Printf("Unknown message type: %s", base.Type)
	}
}

// writeLoop is the sole writer on the connection: queued audio chunks and
// periodic keepalives both leave through it, and the closing frame is sent
// by Close only after this loop has exited. The websocket permits one
// concurrent writer.
func (d *DeepgramLive) writeLoop(done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in writeLoop: %v", r)
		}
	}()
	ticker := time.NewTicker(d.keepAliveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case chunk := <-d.audioData:
			conn := d.currentConn()
			if conn == nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(d.writeTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				log.Printf("Error sending audio data: %v", err)
			}
		case <-ticker.C:
			// keeps Deepgram from timing the session out between utterances
			if conn := d.currentConn(); conn != nil {
				_ = conn.SetWriteDeadline(time.Now().Add(d.writeTimeout))
				_ = conn.WriteJSON(map[string]string{"type": "KeepAlive"})
			}
		}
	}
}

func (d *DeepgramLive) currentConn() *websocket.Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.conn
}
