package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/interview-agent/internal/interview"
	"github.com/chadiek/interview-agent/internal/session"
	"github.com/chadiek/interview-agent/internal/tts"
)

type fakeRunner struct {
	mu      sync.Mutex
	started bool
	ends    int
	fed     int
	sum     interview.Summary
}

func (f *fakeRunner) Start() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return false
	}
	f.started = true
	return true
}

func (f *fakeRunner) End() interview.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
	return f.sum
}

func (f *fakeRunner) Status() interview.Status { return interview.StatusActive }

func (f *fakeRunner) Stats() interview.Summary { return f.sum }

func (f *fakeRunner) FeedAudio([]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fed++
}

func (f *fakeRunner) fedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fed
}

func newTestServer(password string) (*Server, *fakeRunner) {
	runner := &fakeRunner{sum: interview.Summary{TotalMessages: 2, DurationSeconds: 60}}
	factory := func(id string, cfg interview.Config, ev session.Events, sink tts.PCMSink) (Runner, error) {
		return runner, nil
	}
	return NewServer(password, factory), runner
}

func createInterview(t *testing.T, srv *Server) string {
	t.Helper()
	body := strings.NewReader(`{"position":"Backend Engineer","duration":"30 min"}`)
	r := httptest.NewRequest(http.MethodPost, "/interviews", body)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.ID == "" {
		t.Fatalf("create: bad response %s", w.Body.String())
	}
	return resp.ID
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer("")
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAuthOK(t *testing.T) {
	if !authOK(nil, "") {
		t.Fatal("expected true when expected empty")
	}
	r := httptest.NewRequest(http.MethodGet, "/?password=secret", nil)
	if !authOK(r, "secret") {
		t.Fatal("expected true with query password")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "tok")
	if !authOK(r2, "tok") {
		t.Fatal("expected true with X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "bearer abc")
	if !authOK(r3, "abc") {
		t.Fatal("expected true with lowercase bearer prefix")
	}
	r4 := httptest.NewRequest(http.MethodGet, "/?password=wrong", nil)
	if authOK(r4, "secret") {
		t.Fatal("expected false with wrong query token")
	}
	r5 := httptest.NewRequest(http.MethodGet, "/", nil)
	r5.Header.Set("Authorization", "Bearer nope")
	if authOK(r5, "secret") {
		t.Fatal("expected false with wrong bearer token")
	}
}

func TestCreateRequiresAuth(t *testing.T) {
	srv, _ := newTestServer("secret")
	r := httptest.NewRequest(http.MethodPost, "/interviews", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	r2 := httptest.NewRequest(http.MethodPost, "/interviews?password=secret", strings.NewReader(`{}`))
	r2.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w2, r2)
	if w2.Code != http.StatusCreated {
		t.Fatalf("expected 201 with password, got %d", w2.Code)
	}
}

func TestCreateRejectsMalformedConfig(t *testing.T) {
	srv, _ := newTestServer("")
	r := httptest.NewRequest(http.MethodPost, "/interviews", strings.NewReader(`{not json`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateSurfacesConfigurationError(t *testing.T) {
	factory := func(string, interview.Config, session.Events, tts.PCMSink) (Runner, error) {
		return nil, fmt.Errorf("session: %w", session.ErrConfiguration)
	}
	srv := NewServer("", factory)
	r := httptest.NewRequest(http.MethodPost, "/interviews", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestEndTranscriptAndStats(t *testing.T) {
	srv, runner := newTestServer("")
	id := createInterview(t, srv)

	r := httptest.NewRequest(http.MethodPost, "/interviews/"+id+"/end", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("end: expected 200, got %d", w.Code)
	}
	if runner.ends != 1 {
		t.Fatalf("session ended %d times", runner.ends)
	}

	r2 := httptest.NewRequest(http.MethodGet, "/interviews/"+id+"/stats", nil)
	w2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w2, r2)
	if w2.Code != http.StatusOK || !strings.Contains(w2.Body.String(), `"totalMessages":2`) {
		t.Fatalf("stats: %d %s", w2.Code, w2.Body.String())
	}

	r3 := httptest.NewRequest(http.MethodGet, "/interviews/"+id+"/transcript", nil)
	w3 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w3, r3)
	if w3.Code != http.StatusOK {
		t.Fatalf("transcript: expected 200, got %d", w3.Code)
	}
}

func TestUnknownInterview(t *testing.T) {
	srv, _ := newTestServer("")
	r := httptest.NewRequest(http.MethodGet, "/interviews/nope/stats", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestStreamControlAndAudio(t *testing.T) {
	srv, runner := newTestServer("")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	id := createInterview(t, srv)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/interviews/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// first frame is a status snapshot
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap map[string]interface{}
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap["kind"] != "status" {
		t.Fatalf("expected status snapshot, got %+v", snap)
	}

	if err := conn.WriteJSON(map[string]string{"type": "start"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 640)); err != nil {
		t.Fatalf("audio: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runner.fedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runner.fedCount() == 0 {
		t.Fatal("audio never reached the session")
	}

	if err := conn.WriteJSON(map[string]string{"type": "end"}); err != nil {
		t.Fatalf("end: %v", err)
	}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m map[string]interface{}
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("waiting for summary: %v", err)
		}
		if m["kind"] == "summary" {
			break
		}
	}
}

func TestPacedWriterFramesAndReset(t *testing.T) {
	var mu sync.Mutex
	var frames [][]byte
	pw := NewPacedWriter(func(frame []byte) error {
		mu.Lock()
		frames = append(frames, frame)
		mu.Unlock()
		return nil
	})
	defer pw.Close()

	pw.WritePCM(make([]byte, frameBytes*2))
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(frames)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	if len(frames) < 2 {
		mu.Unlock()
		t.Fatalf("expected 2 paced frames, got %d", len(frames))
	}
	if len(frames[0]) != frameBytes {
		mu.Unlock()
		t.Fatalf("frame size %d", len(frames[0]))
	}
	mu.Unlock()

	// queued audio is discarded on reset
	pw.WritePCM(make([]byte, frameBytes*100))
	pw.Reset()
	mu.Lock()
	before := len(frames)
	mu.Unlock()
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	after := len(frames)
	mu.Unlock()
	if after-before > 5 {
		t.Fatalf("reset left %d frames queued", after-before)
	}
}

func TestAttachableSinkDropsWhenDetached(t *testing.T) {
	sink := NewAttachableSink()
	sink.WritePCM(make([]byte, frameBytes)) // no writer attached: dropped

	var mu sync.Mutex
	delivered := 0
	pw := NewPacedWriter(func([]byte) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})
	sink.Attach(pw)
	sink.WritePCM(make([]byte, frameBytes))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := delivered
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	n := delivered
	mu.Unlock()
	if n == 0 {
		t.Fatal("attached writer never received audio")
	}

	sink.Detach(pw)
	sink.WritePCM(make([]byte, frameBytes)) // dropped again, no panic
}
