package tts

import (
	"context"
	"sync"
	"time"
)

// frameInterval is the pacing quantum for playback.
const frameInterval = 20 * time.Millisecond

// DefaultListenLead is how long before the end of playback the near-end
// event fires, so the recognizer can be reopened before the agent finishes
// talking.
const DefaultListenLead = 300 * time.Millisecond

// PCMSink consumes 48kHz PCM bytes and performs delivery. Reset drops any
// queued frames immediately (used for barge-in).
type PCMSink interface {
	WritePCM(pcm []byte)
	FlushTail()
	Reset()
}

// PlayerEvents are the playback notifications a Player owner receives. Nil
// fields are skipped. OnDone and OnInterrupted are mutually exclusive per
// utterance.
type PlayerEvents struct {
	OnStarted     func()
	OnAlmostDone  func()
	OnDone        func()
	OnInterrupted func()
	OnError       func(err error)
}

// Player plays one synthesized utterance at a time into a PCMSink, paced to
// real time. At most one utterance plays concurrently; Speak while speaking
// is a no-op.
type Player struct {
	synth      Synthesizer
	sink       PCMSink
	events     PlayerEvents
	sampleRate int
	listenLead time.Duration

	mu       sync.Mutex
	speaking bool
	cancel   context.CancelFunc
}

func NewPlayer(synth Synthesizer, sink PCMSink, sampleRate int, events PlayerEvents) *Player {
	if sampleRate == 0 {
		sampleRate = 48000
	}
	return &Player{
		synth:      synth,
		sink:       sink,
		events:     events,
		sampleRate: sampleRate,
		listenLead: DefaultListenLead,
	}
}

// Speaking reports whether an utterance is currently being played or fetched.
func (p *Player) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// Speak fetches audio for the utterance and plays it asynchronously. It
// returns false without side effects when an utterance is already in flight.
func (p *Player) Speak(ctx context.Context, text string) bool {
	p.mu.Lock()
	if p.speaking {
		p.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	p.speaking = true
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(ctx, text)
	return true
}

// Interrupt stops playback immediately and discards remaining audio. It
// reports whether an interruption actually occurred.
func (p *Player) Interrupt() bool {
	p.mu.Lock()
	if !p.speaking {
		p.mu.Unlock()
		return false
	}
	p.speaking = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.sink.Reset()
	if p.events.OnInterrupted != nil {
		p.events.OnInterrupted()
	}
	return true
}

// finish clears the speaking state for a playback that ran to completion or
// failed. It reports false when an Interrupt already claimed the utterance.
func (p *Player) finish() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.speaking {
		return false
	}
	p.speaking = false
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return true
}

func (p *Player) run(ctx context.Context, text string) {
	audio, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		if p.finish() && p.events.OnError != nil {
			p.events.OnError(err)
		}
		return
	}
	if len(audio) == 0 {
		if p.finish() && p.events.OnDone != nil {
			p.events.OnDone()
		}
		return
	}

	if p.events.OnStarted != nil {
		p.events.OnStarted()
	}

	total := p.pcmDuration(len(audio))
	almostAt := total - p.listenLead
	if almostAt < 0 {
		almostAt = 0
	}

	frameBytes := p.sampleRate / 50 * 2 // 20ms of PCM16 mono
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	var elapsed time.Duration
	almostFired := false
	for off := 0; off < len(audio); {
		select {
		case <-ctx.Done():
			// Interrupt already reset the sink and notified.
			return
		case <-ticker.C:
			end := off + frameBytes
			if end > len(audio) {
				end = len(audio)
			}
			p.sink.WritePCM(audio[off:end])
			off = end
			elapsed += frameInterval
			if !almostFired && elapsed >= almostAt {
				almostFired = true
				if p.events.OnAlmostDone != nil {
					p.events.OnAlmostDone()
				}
			}
		}
	}

	if !p.finish() {
		return
	}
	p.sink.FlushTail()
	if !almostFired && p.events.OnAlmostDone != nil {
		p.events.OnAlmostDone()
	}
	if p.events.OnDone != nil {
		p.events.OnDone()
	}
}

func (p *Player) pcmDuration(byteLen int) time.Duration {
	samples := byteLen / 2
	if p.sampleRate == 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(p.sampleRate)
}
