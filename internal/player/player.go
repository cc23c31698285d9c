package player

import (
	"math"
	"sync"
	"time"

	"interactive-video-service/internal/domain"
)

// Player is the playback clock a session drives. Out-of-range inputs are
// clamped, never errored.
type Player interface {
	CurrentTime() float64
	Duration() float64
	Playing() bool
	Volume() float64
	Muted() bool
	Play()
	Pause()
	Seek(seconds float64)
	SetVolume(v float64)
	SetMuted(muted bool)
}

// Virtual is a headless media element. Its position advances with the wall
// clock while playing and stops at the end of the media.
type Virtual struct {
	mu       sync.Mutex
	now      func() time.Time
	duration float64
	position float64
	playing  bool
	since    time.Time
	volume   float64
	muted    bool
}

var _ Player = (*Virtual)(nil)

func NewVirtual(duration float64) *Virtual {
	return NewVirtualWithClock(duration, time.Now)
}

// NewVirtualWithClock allows deterministic positions in tests.
func NewVirtualWithClock(duration float64, now func() time.Time) *Virtual {
	return &Virtual{
		now:      now,
		duration: math.Max(duration, 0),
		volume:   1,
	}
}

func (p *Virtual) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	return p.position
}

func (p *Virtual) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *Virtual) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	return p.playing
}

func (p *Virtual) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Virtual) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *Virtual) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	if p.playing || p.position >= p.duration {
		return
	}
	p.playing = true
	p.since = p.now()
}

func (p *Virtual) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	p.playing = false
}

func (p *Virtual) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	p.position = clamp(seconds, 0, p.duration)
	p.since = p.now()
}

func (p *Virtual) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = clamp(v, 0, 1)
	p.muted = p.volume == 0
}

// SetMuted toggles mute. Muting drops the volume to 0 and unmuting sets it
// back to full; the previous level is not remembered.
func (p *Virtual) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
	if muted {
		p.volume = 0
	} else {
		p.volume = 1
	}
}

// State returns a consistent snapshot of the clock.
func (p *Virtual) State() domain.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	return domain.PlayerState{
		CurrentTime: p.position,
		Duration:    p.duration,
		Playing:     p.playing,
		Volume:      p.volume,
		Muted:       p.muted,
	}
}

func (p *Virtual) advanceLocked() {
	if !p.playing {
		return
	}
	now := p.now()
	p.position += now.Sub(p.since).Seconds()
	p.since = now
	if p.position >= p.duration {
		p.position = p.duration
		p.playing = false
	}
}

// StateOf snapshots any Player.
func StateOf(p Player) domain.PlayerState {
	if v, ok := p.(*Virtual); ok {
		return v.State()
	}
	return domain.PlayerState{
		CurrentTime: p.CurrentTime(),
		Duration:    p.Duration(),
		Playing:     p.Playing(),
		Volume:      p.Volume(),
		Muted:       p.Muted(),
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
