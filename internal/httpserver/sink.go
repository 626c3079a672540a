package httpserver

import "sync"

// AttachableSink routes agent audio to whichever client is currently
// streaming. A session may outlive its stream connection; audio produced
// while no client is attached is dropped.
type AttachableSink struct {
	mu sync.Mutex
	pw *PacedWriter
}

func NewAttachableSink() *AttachableSink { return &AttachableSink{} }

// Attach replaces the current writer, closing the previous one.
func (s *AttachableSink) Attach(pw *PacedWriter) {
	s.mu.Lock()
	prev := s.pw
	s.pw = pw
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// Detach removes the writer if it is still the attached one.
func (s *AttachableSink) Detach(pw *PacedWriter) {
	s.mu.Lock()
	if s.pw == pw {
		s.pw = nil
	}
	s.mu.Unlock()
	pw.Close()
}

func (s *AttachableSink) current() *PacedWriter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pw
}

func (s *AttachableSink) WritePCM(pcm []byte) {
	if pw := s.current(); pw != nil {
		pw.WritePCM(pcm)
	}
}

func (s *AttachableSink) FlushTail() {
	if pw := s.current(); pw != nil {
		pw.FlushTail()
	}
}

func (s *AttachableSink) Reset() {
	if pw := s.current(); pw != nil {
		pw.Reset()
	}
}
