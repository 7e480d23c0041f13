package player

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// SimulatedPrimitive is a clock-driven stand-in for a real audio element.
// It reports a position that advances with wall time while playing, which
// is enough for the terminal client and for exercising the engine.
type SimulatedPrimitive struct {
	clk clock.Clock

	mu       sync.Mutex
	url      string
	loaded   bool
	playing  bool
	position time.Duration
	playedAt time.Time

	// OnLoad lets the owner feed readiness back into the engine (the
	// terminal client calls HandleCanPlay from it).
	OnLoad func(url string)
}

// NewSimulatedPrimitive creates a primitive ticking on the given clock.
func NewSimulatedPrimitive(clk clock.Clock) *SimulatedPrimitive {
	return &SimulatedPrimitive{clk: clk}
}

// Load points the primitive at a new resource and rewinds it.
func (p *SimulatedPrimitive) Load(url string) {
	p.mu.Lock()
	p.url = url
	p.loaded = true
	p.playing = false
	p.position = 0
	onLoad := p.OnLoad
	p.mu.Unlock()
	if onLoad != nil {
		onLoad(url)
	}
}

// Play starts advancing the position.
func (p *SimulatedPrimitive) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return ErrInterrupted
	}
	if !p.playing {
		p.playing = true
		p.playedAt = p.clk.Now()
	}
	return nil
}

// Pause freezes the position.
func (p *SimulatedPrimitive) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncLocked()
	p.playing = false
}

// Seek jumps to the given position.
func (p *SimulatedPrimitive) Seek(position time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return ErrNotSupported
	}
	p.position = position
	p.playedAt = p.clk.Now()
	return nil
}

// Position reports the current playback position.
func (p *SimulatedPrimitive) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncLocked()
	return p.position
}

// Seekable reports whether a resource is loaded.
func (p *SimulatedPrimitive) Seekable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

func (p *SimulatedPrimitive) syncLocked() {
	if p.playing {
		now := p.clk.Now()
		p.position += now.Sub(p.playedAt)
		p.playedAt = now
	}
}
