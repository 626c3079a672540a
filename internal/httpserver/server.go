// Package httpserver exposes interview sessions over HTTP and WebSocket.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chadiek/interview-agent/internal/bridge"
	"github.com/chadiek/interview-agent/internal/interview"
	"github.com/chadiek/interview-agent/internal/session"
	"github.com/chadiek/interview-agent/internal/tts"
)

const wsWriteTimeout = 5 * time.Second

// Runner is the slice of a session the server drives.
type Runner interface {
	Start() bool
	End() interview.Summary
	Status() interview.Status
	Stats() interview.Summary
	FeedAudio([]byte)
}

// NewSessionFunc builds a session for one interview. The sink receives the
// agent's synthesized audio; the events feed the attached view.
type NewSessionFunc func(id string, cfg interview.Config, events session.Events, sink tts.PCMSink) (Runner, error)

// Server routes interview lifecycle and streaming endpoints.
type Server struct {
	echo       *echo.Echo
	password   string
	newSession NewSessionFunc

	mu       sync.Mutex
	sessions map[string]*liveInterview
}

type liveInterview struct {
	runner Runner
	view   *bridge.View
	sink   *AttachableSink
}

func NewServer(password string, newSession NewSessionFunc) *Server {
	s := &Server{
		echo:       newRouter(),
		password:   password,
		newSession: newSession,
		sessions:   make(map[string]*liveInterview),
	}

	e := s.echo
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	g := e.Group("/interviews", s.requireAuth)
	g.POST("", s.handleCreate)
	g.GET("/:id/stream", s.handleStream)
	g.POST("/:id/end", s.handleEnd)
	g.GET("/:id/transcript", s.handleTranscript)
	g.GET("/:id/stats", s.handleStats)

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

// Shutdown ends every live session, then stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.EndAll()
	return s.echo.Shutdown(ctx)
}

// EndAll tears down every session; safe to call repeatedly.
func (s *Server) EndAll() {
	s.mu.Lock()
	entries := make([]*liveInterview, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.Unlock()
	for _, e := range entries {
		e.view.EndInterview()
	}
}

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !authOK(c.Request(), s.password) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		return next(c)
	}
}

// authOK accepts ?password=, Authorization: Bearer, or X-Auth-Token. An
// empty expected password disables the check.
func authOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if q := r.URL.Query().Get("password"); q != "" && q == expected {
		return true
	}
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		if strings.TrimSpace(ah[len("Bearer "):]) == expected {
			return true
		}
	}
	if x := r.Header.Get("X-Auth-Token"); x != "" && x == expected {
		return true
	}
	return false
}

func (s *Server) handleCreate(c echo.Context) error {
	var cfg interview.Config
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid interview config"})
	}

	id := uuid.NewString()
	view := bridge.NewView()
	sink := NewAttachableSink()
	runner, err := s.newSession(id, cfg, view.Events(), sink)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrConfiguration) {
			status = http.StatusUnprocessableEntity
		}
		return c.JSON(status, echo.Map{"error": err.Error()})
	}
	view.Attach(runner)

	s.mu.Lock()
	s.sessions[id] = &liveInterview{runner: runner, view: view, sink: sink}
	s.mu.Unlock()

	c.Echo().Logger.Infof("interview %s created for position %q", id, cfg.Position)
	return c.JSON(http.StatusCreated, echo.Map{"id": id, "status": runner.Status()})
}

func (s *Server) lookup(c echo.Context) (*liveInterview, error) {
	s.mu.Lock()
	entry, ok := s.sessions[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		return nil, c.JSON(http.StatusNotFound, echo.Map{"error": "unknown interview"})
	}
	return entry, nil
}

func (s *Server) handleEnd(c echo.Context) error {
	entry, errResp := s.lookup(c)
	if entry == nil {
		return errResp
	}
	sum := entry.view.EndInterview()
	return c.JSON(http.StatusOK, sum)
}

func (s *Server) handleTranscript(c echo.Context) error {
	entry, errResp := s.lookup(c)
	if entry == nil {
		return errResp
	}
	return c.JSON(http.StatusOK, echo.Map{"transcript": entry.view.Transcript()})
}

func (s *Server) handleStats(c echo.Context) error {
	entry, errResp := s.lookup(c)
	if entry == nil {
		return errResp
	}
	return c.JSON(http.StatusOK, entry.view.InterviewStats())
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for demo use; restrict in production
		return true
	},
}

type controlMessage struct {
	Type string `json:"type"`
}

// handleStream is the duplex media channel: inbound binary frames are
// microphone PCM, inbound text frames are control commands; outbound text
// frames are view updates, outbound binary frames are paced agent audio.
func (s *Server) handleStream(c echo.Context) error {
	entry, errResp := s.lookup(c)
	if entry == nil {
		return errResp
	}

	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		c.Echo().Logger.Errorf("ws upgrade error: %v", err)
		return nil
	}
	defer func() { _ = conn.Close() }()

	var writeMu sync.Mutex
	writeBinary := func(frame []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(websocket.BinaryMessage, frame)
	}
	writeJSON := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(v)
	}

	pw := NewPacedWriter(writeBinary)
	entry.sink.Attach(pw)
	defer entry.sink.Detach(pw)

	updates, cancel := entry.view.Watch(64)
	defer cancel()
	go func() {
		for u := range updates {
			if writeJSON(u) != nil {
				return
			}
		}
	}()

	// status snapshot so a late-joining client renders correctly
	_ = writeJSON(bridge.Update{Kind: bridge.UpdateStatus, Status: entry.view.Status()})

	for {
		mt, data, rerr := conn.ReadMessage()
		if rerr != nil {
			return nil
		}
		switch mt {
		case websocket.BinaryMessage:
			entry.runner.FeedAudio(data)
		case websocket.TextMessage:
			var m controlMessage
			if json.Unmarshal(data, &m) != nil {
				continue
			}
			switch strings.ToLower(m.Type) {
			case "start":
				if !entry.runner.Start() {
					_ = writeJSON(bridge.Update{Kind: bridge.UpdateError, Error: "interview already started"})
				}
			case "end":
				sum := entry.view.EndInterview()
				_ = writeJSON(echo.Map{"kind": "summary", "summary": sum})
				return nil
			case "clear-error":
				entry.view.ClearError()
			case "bye":
				return nil
			}
		}
	}
}
