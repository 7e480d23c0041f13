// Package player keeps a locally controlled audio primitive aligned with
// the server-authoritative room timeline despite network delay, buffering,
// and platform autoplay restrictions.
package player

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"auxroom/internal/proto"
)

// Sentinel play rejections the engine must tell apart. ErrNotAllowed is a
// local playback-permission quirk, not an error; ErrInterrupted is the
// expected cancellation of an in-flight play attempt by a source change.
var (
	ErrNotAllowed   = errors.New("player: playback requires a user gesture")
	ErrInterrupted  = errors.New("player: play attempt interrupted by source change")
	ErrNotSupported = errors.New("player: operation not supported")
)

const (
	// CorrectionInterval is the period of the drift-correction pass.
	CorrectionInterval = 500 * time.Millisecond

	// PlayingDriftTolerance is wide because hard seeks while audible cause
	// perceptible glitches; small drift is left alone.
	PlayingDriftTolerance = 2000 * time.Millisecond

	// PausedDriftTolerance is tight; seeking while paused is inaudible.
	PausedDriftTolerance = 200 * time.Millisecond

	// MaxReloadAttempts and ReloadDelay bound the stall recovery budget
	// before the engine parks in Errored until the next track.
	MaxReloadAttempts = 3
	ReloadDelay       = 1500 * time.Millisecond
)

// State of the engine for the current track.
type State int

const (
	Idle State = iota
	Loading
	Playing
	PausedByServer
	Buffering
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case PausedByServer:
		return "paused"
	case Buffering:
		return "buffering"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Primitive is the playback capability exposed by the execution
// environment. Play may fail with ErrNotAllowed or ErrInterrupted.
type Primitive interface {
	Load(url string)
	Play() error
	Pause()
	Seek(position time.Duration) error
	Position() time.Duration
	Seekable() bool
}

// MediaSession receives now-playing metadata for the platform's
// media-control surface. Optional.
type MediaSession interface {
	SetMetadata(title string, artists []string, artworkURL string)
	SetPlaybackPaused(paused bool)
}

// WakeLock keeps the host awake while audibly playing. Acquisition
// reduces, not prevents, transport disconnects in the background. Optional.
type WakeLock interface {
	Acquire()
	Release()
}

// Engine drives a Primitive to track the server timeline.
type Engine struct {
	clk   clock.Clock
	log   zerolog.Logger
	prim  Primitive
	media MediaSession
	wake  WakeLock

	// notice surfaces local-only advisories (autoplay blocked).
	notice func(text string)

	mu         sync.Mutex
	state      State
	trackID    string
	trackURL   string
	paused     bool
	anchor     time.Duration // server-reported elapsed at receipt
	anchorAt   time.Time     // local receipt time; updated with anchor atomically
	haveAnchor bool
	retries    int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures the Engine.
type Option func(*Engine)

// WithClock substitutes the correction/scheduling clock.
func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clk = c } }

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithMediaSession wires the platform media-control surface.
func WithMediaSession(m MediaSession) Option { return func(e *Engine) { e.media = m } }

// WithWakeLock wires a wake-lock resource.
func WithWakeLock(w WakeLock) Option { return func(e *Engine) { e.wake = w } }

// WithNotice sets the local advisory callback.
func WithNotice(fn func(string)) Option { return func(e *Engine) { e.notice = fn } }

// NewEngine creates an engine around the given primitive.
func NewEngine(prim Primitive, opts ...Option) *Engine {
	e := &Engine{
		clk:    clock.New(),
		log:    zerolog.Nop(),
		prim:   prim,
		state:  Idle,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("component", "player").Logger()
	return e
}

// Start launches the periodic correction pass.
func (e *Engine) Start() {
	ticker := e.clk.Ticker(CorrectionInterval)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.correct()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop halts the correction pass.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// TrackID returns the id of the track the engine is driving, or "".
func (e *Engine) TrackID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trackID
}

// ApplySnapshot reconciles a server push: the elapsed position and its
// receipt time are recorded together, track changes reset the retry
// budget, and pause flips re-drive the primitive.
func (e *Engine) ApplySnapshot(nowPlaying *proto.NowPlayingInfo, elapsed time.Duration, paused bool) {
	e.mu.Lock()

	if nowPlaying == nil || nowPlaying.Music == nil {
		e.trackID = ""
		e.trackURL = ""
		e.haveAnchor = false
		e.state = Idle
		e.paused = false
		wake := e.wake
		e.mu.Unlock()
		e.prim.Pause()
		if wake != nil {
			wake.Release()
		}
		return
	}

	music := nowPlaying.Music
	trackChanged := music.ID != e.trackID
	pauseChanged := paused != e.paused

	e.anchor = elapsed
	e.anchorAt = e.clk.Now()
	e.haveAnchor = true
	e.paused = paused

	if trackChanged {
		e.trackID = music.ID
		e.trackURL = music.URL
		e.retries = 0
		e.state = Loading
	}

	state := e.state
	media, wake := e.media, e.wake
	e.mu.Unlock()

	if trackChanged {
		e.prim.Load(music.URL)
		if media != nil {
			media.SetMetadata(music.Name, music.Artists, music.CoverURL)
		}
	}
	if media != nil && (trackChanged || pauseChanged) {
		media.SetPlaybackPaused(paused)
	}

	// Pause flips only matter once the resource is past Loading; the
	// canplay signal branches on the latest pause flag itself.
	if state == Playing || state == PausedByServer {
		if paused {
			e.setState(PausedByServer)
			e.prim.Pause()
			if wake != nil {
				wake.Release()
			}
		} else {
			e.setState(Playing)
			e.safePlay()
			if wake != nil {
				wake.Acquire()
			}
		}
	}
}

// Progress returns the believed-correct playback position: frozen at the
// anchored value while paused, anchored value plus elapsed wall-clock
// while playing.
func (e *Engine) Progress() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progressLocked()
}

func (e *Engine) progressLocked() time.Duration {
	if !e.haveAnchor || e.trackID == "" {
		return 0
	}
	if e.paused {
		return max(0, e.anchor)
	}
	return max(0, e.anchor+e.clk.Now().Sub(e.anchorAt))
}

// HandleCanPlay is invoked by the environment when the primitive reports
// the resource is playable, branching on the current pause flag.
func (e *Engine) HandleCanPlay() {
	e.mu.Lock()
	if e.trackID == "" {
		e.mu.Unlock()
		return
	}
	if e.state != Loading && e.state != Buffering {
		e.mu.Unlock()
		return
	}
	paused := e.paused
	wake := e.wake
	if paused {
		e.state = PausedByServer
	} else {
		e.state = Playing
	}
	e.mu.Unlock()

	if paused {
		e.prim.Pause()
		return
	}
	e.safePlay()
	if wake != nil {
		wake.Acquire()
	}
}

// HandleStall is invoked on a stall or resource error. Source-change
// interruptions are not stalls and are ignored. After the retry budget is
// spent the engine goes Errored until a new track arrives.
func (e *Engine) HandleStall(err error) {
	if errors.Is(err, ErrInterrupted) {
		return
	}
	e.mu.Lock()
	if e.trackID == "" || e.state == Errored {
		e.mu.Unlock()
		return
	}
	if e.retries >= MaxReloadAttempts {
		e.state = Errored
		trackID := e.trackID
		e.mu.Unlock()
		e.log.Warn().Err(err).Str("track", trackID).Msg("retry budget exhausted")
		return
	}
	e.retries++
	e.state = Buffering
	attempt := e.retries
	trackID := e.trackID
	url := e.trackURL
	e.mu.Unlock()

	e.log.Info().Int("attempt", attempt).Str("track", trackID).Msg("reloading after stall")
	timer := e.clk.Timer(ReloadDelay)
	go func() {
		<-timer.C
		e.mu.Lock()
		// Stale if the track moved on while we waited.
		if e.trackID != trackID {
			e.mu.Unlock()
			return
		}
		e.state = Loading
		e.mu.Unlock()
		e.prim.Load(url)
	}()
}

// safePlay attempts playback and filters the rejections that must not be
// treated as errors. The server's belief about play/pause stays untouched.
func (e *Engine) safePlay() {
	err := e.prim.Play()
	switch {
	case err == nil:
	case errors.Is(err, ErrNotAllowed):
		if e.notice != nil {
			e.notice("Autoplay blocked: tap play to unlock audio")
		}
	case errors.Is(err, ErrInterrupted):
		// expected when a track switch cancels an in-flight attempt
	default:
		e.log.Warn().Err(err).Msg("play failed")
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// correct compares the primitive's reported position against the target
// and hard-seeks only past the state-dependent tolerance. Seeks are
// skipped while the primitive is not seek-ready, and seek failures are
// swallowed (some platforms forbid seeking while backgrounded).
func (e *Engine) correct() {
	e.mu.Lock()
	state := e.state
	target := e.progressLocked()
	e.mu.Unlock()

	if state != Playing && state != PausedByServer {
		return
	}
	if !e.prim.Seekable() {
		return
	}

	tolerance := PlayingDriftTolerance
	if state == PausedByServer {
		tolerance = PausedDriftTolerance
	}
	drift := e.prim.Position() - target
	if drift < 0 {
		drift = -drift
	}
	if drift <= tolerance {
		return
	}
	if err := e.prim.Seek(target); err != nil {
		e.log.Debug().Err(err).Dur("target", target).Msg("seek refused")
	}
}
