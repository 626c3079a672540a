package httpserver

import (
	"sync"
	"time"
)

const (
	frameBytes    = 1920 // 20ms of 48kHz mono 16-bit PCM
	frameDuration = 20 * time.Millisecond
	tailFrames    = 10 // ~200ms of silence to avoid clipping the last word
)

// FrameWriter delivers one 20ms PCM frame to a client.
type FrameWriter func(frame []byte) error

// PacedWriter buffers agent PCM and delivers it to a client in 20ms frames
// on a fixed cadence, so a burst of synthesized audio does not flood the
// connection.
type PacedWriter struct {
	write   FrameWriter
	pcmBuf  []byte
	frames  chan []byte
	stopCh  chan struct{}
	stopped bool
	mu      sync.Mutex
}

func NewPacedWriter(write FrameWriter) *PacedWriter {
	w := &PacedWriter{
		write:  write,
		frames: make(chan []byte, 512),
		stopCh: make(chan struct{}),
	}
	go w.pacer()
	return w
}

// WritePCM buffers PCM and emits full frames to the pacer.
func (w *PacedWriter) WritePCM(pcm []byte) {
	if len(pcm) < 2 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pcmBuf = append(w.pcmBuf, pcm...)
	for len(w.pcmBuf) >= frameBytes {
		frame := make([]byte, frameBytes)
		copy(frame, w.pcmBuf[:frameBytes])
		w.pushFrame(frame)
		copy(w.pcmBuf, w.pcmBuf[frameBytes:])
		w.pcmBuf = w.pcmBuf[:len(w.pcmBuf)-frameBytes]
	}
}

// FlushTail pads the remaining PCM to a full frame and appends a short
// silence tail.
func (w *PacedWriter) FlushTail() {
	w.mu.Lock()
	if len(w.pcmBuf) > 0 {
		frame := make([]byte, frameBytes)
		copy(frame, w.pcmBuf)
		w.pushFrame(frame)
		w.pcmBuf = w.pcmBuf[:0]
	}
	for i := 0; i < tailFrames; i++ {
		w.pushFrame(make([]byte, frameBytes))
	}
	w.mu.Unlock()
}

// Reset clears any queued frames to support immediate barge-in.
func (w *PacedWriter) Reset() {
	w.mu.Lock()
	for {
		select {
		case <-w.frames:
		default:
			w.pcmBuf = w.pcmBuf[:0]
			w.mu.Unlock()
			return
		}
	}
}

// Close stops the pacer.
func (w *PacedWriter) Close() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	w.mu.Unlock()
}

func (w *PacedWriter) pacer() {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				if err := w.write(frame); err != nil {
					return
				}
			default:
			}
		}
	}
}

// pushFrame enqueues a frame, dropping the oldest when the queue is full so
// a stalled client cannot block synthesis.
func (w *PacedWriter) pushFrame(frame []byte) {
	select {
	case w.frames <- frame:
	default:
		select {
		case <-w.frames:
		default:
		}
		select {
		case w.frames <- frame:
		default:
		}
	}
}
