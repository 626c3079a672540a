package vad

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// Detector is a lightweight RMS-energy voice-activity detector over 10ms
// PCM16 frames. The session consults it to confirm barge-in while the agent
// is speaking, where waiting for a recognizer final would feel sluggish.
type Detector struct {
	sampleRate int
	threshold  float64
	smoothN    int

	mu            sync.Mutex
	win           []bool
	lastVoiceTime time.Time
}

// NewDetector builds a detector for mono PCM16LE at the given sample rate.
func NewDetector(sampleRate int) *Detector {
	if sampleRate == 0 {
		sampleRate = 48000
	}
	return &Detector{sampleRate: sampleRate, threshold: 300.0, smoothN: 4}
}

// Feed consumes an arbitrary-length PCM16LE buffer, segmenting it into 10ms
// frames and voting each frame.
func (d *Detector) Feed(pcm []byte) {
	samplesPer10ms := d.sampleRate / 100
	for off := 0; off+samplesPer10ms*2 <= len(pcm); off += samplesPer10ms * 2 {
		d.onFrame(pcm[off : off+samplesPer10ms*2])
	}
}

func (d *Detector) onFrame(frame []byte) {
	var sumSquares float64
	n := len(frame) / 2
	for i := 0; i+1 < len(frame); i += 2 {
		v := int16(binary.LittleEndian.Uint16(frame[i : i+2]))
		sumSquares += float64(v) * float64(v)
	}
	if n == 0 {
		return
	}
	rms := math.Sqrt(sumSquares / float64(n))
	loud := rms >= d.threshold

	d.mu.Lock()
	d.win = append(d.win, loud)
	if len(d.win) > d.smoothN {
		d.win = d.win[len(d.win)-d.smoothN:]
	}
	trueCount := 0
	for _, b := range d.win {
		if b {
			trueCount++
		}
	}
	// majority of the smoothing window counts as sustained voice
	if trueCount*2 >= len(d.win) && trueCount > 0 {
		d.lastVoiceTime = time.Now()
	}
	d.mu.Unlock()
}

// Active reports whether sustained voice energy was observed within the
// given window.
func (d *Detector) Active(window time.Duration) bool {
	d.mu.Lock()
	last := d.lastVoiceTime
	d.mu.Unlock()
	if last.IsZero() {
		return false
	}
	return time.Since(last) <= window
}

// Reset clears the smoothing window and the last-voice timestamp.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.win = d.win[:0]
	d.lastVoiceTime = time.Time{}
	d.mu.Unlock()
}
