package bridge

import (
	"sync"
	"time"

	"github.com/chadiek/interview-agent/internal/interview"
)

// bannerTTL is how long a surfaced error stays up before auto-clearing.
const bannerTTL = 5 * time.Second

// Notice is a transient user-facing notification.
type Notice struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Monitor watches a stream of Updates and turns them into notices plus an
// auto-clearing error banner. It is the lightweight companion to View for
// clients that only care about state changes, not the transcript.
type Monitor struct {
	mu      sync.Mutex
	banner  string
	timer   *time.Timer
	notify  func(Notice)
	lastSt  interview.Status
	started bool
}

// NewMonitor builds a monitor; notify may be nil.
func NewMonitor(notify func(Notice)) *Monitor {
	return &Monitor{notify: notify, lastSt: interview.StatusIdle}
}

// Run consumes updates until the channel closes. Typically paired with
// View.Watch.
func (m *Monitor) Run(updates <-chan Update) {
	for u := range updates {
		m.Observe(u)
	}
}

// Observe folds one update into the monitor.
func (m *Monitor) Observe(u Update) {
	switch u.Kind {
	case UpdateStatus:
		m.observeStatus(u.Status)
	case UpdateError:
		m.observeError(u.Error)
	}
}

func (m *Monitor) observeStatus(st interview.Status) {
	m.mu.Lock()
	prev := m.lastSt
	m.lastSt = st
	firstListen := st == interview.StatusListening && !m.started
	if firstListen {
		m.started = true
	}
	m.mu.Unlock()
	if prev == st {
		return
	}
	switch {
	case firstListen:
		m.emit(Notice{Level: "info", Text: "Interview started. You can speak now."})
	case st == interview.StatusEnded:
		m.emit(Notice{Level: "info", Text: "Interview ended."})
	case st == interview.StatusError:
		m.emit(Notice{Level: "warn", Text: "Connection trouble. The interview continues."})
	}
}

func (m *Monitor) observeError(text string) {
	m.mu.Lock()
	m.banner = text
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(bannerTTL, m.ClearBanner)
	m.mu.Unlock()
	m.emit(Notice{Level: "error", Text: text})
}

// Banner returns the current error banner text, empty when clear.
func (m *Monitor) Banner() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.banner
}

// ClearBanner dismisses the banner immediately.
func (m *Monitor) ClearBanner() {
	m.mu.Lock()
	m.banner = ""
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
}

func (m *Monitor) emit(n Notice) {
	if m.notify != nil {
		m.notify(n)
	}
}
