package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"

	"bharatvista/pkg/narration"
)

var (
	// ErrNotLoaded is returned when seeking before the clip has decoded.
	ErrNotLoaded = errors.New("clip not loaded")
	// ErrAlreadyLoaded is returned when Load is called twice on one clip.
	ErrAlreadyLoaded = errors.New("clip already loaded")
)

const (
	defaultTick = 250 * time.Millisecond
	volumeRamp  = 30 * time.Millisecond
)

// Fetcher resolves a narration audio reference to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (string, error)
}

// Handset configures the optional handset band-pass effect.
type Handset struct {
	Enabled    bool
	LowCutoff  float64
	HighCutoff float64
}

// ClipOptions configure clips created by a ClipFactory.
type ClipOptions struct {
	Output  Output
	Fetcher Fetcher
	Handset Handset
	// Tick is the interval of time updates while playing.
	Tick time.Duration
}

// Clip plays one audio file like a media element: it loads in the background,
// remembers play/pause intent until loaded, and reports metadata, time updates and
// the natural end. It implements narration.AudioEngine.
type Clip struct {
	opts   ClipOptions
	logger *slog.Logger

	mu       sync.Mutex
	ev       narration.AudioEvents
	started  bool
	want     bool
	volume   float64
	released bool
	ended    bool

	track  beep.StreamSeekCloser
	format beep.Format
	ctrl   *beep.Ctrl
	gain   *SmoothVolume
	done   chan struct{}
}

// NewClip creates an unloaded clip.
func NewClip(opts ClipOptions) *Clip {
	if opts.Output == nil {
		opts.Output = DefaultSpeaker
	}
	if opts.Fetcher == nil {
		opts.Fetcher = LocalFiles{}
	}
	if opts.Tick <= 0 {
		opts.Tick = defaultTick
	}
	return &Clip{
		opts:   opts,
		logger: slog.With("component", "audio"),
		volume: 1,
		done:   make(chan struct{}),
	}
}

// Factory returns a narration.AudioFactory producing clips with opts.
func Factory(opts ClipOptions) narration.AudioFactory {
	return func() narration.AudioEngine { return NewClip(opts) }
}

// Load starts fetching and decoding uri in the background. Events are reported
// through ev from the clip's own goroutines.
func (c *Clip) Load(ctx context.Context, uri string, ev narration.AudioEvents) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrAlreadyLoaded
	}
	if uri == "" {
		return errors.New("empty audio reference")
	}
	c.started = true
	c.ev = ev
	go c.load(ctx, uri)
	return nil
}

func (c *Clip) load(ctx context.Context, uri string) {
	path, err := c.opts.Fetcher.Fetch(ctx, uri)
	if err != nil {
		if ctx.Err() == nil {
			c.fail(err)
		}
		return
	}

	track, format, err := Decode(path)
	if err != nil {
		c.fail(err)
		return
	}

	out := c.opts.Output
	var chain beep.Streamer = track
	if format.SampleRate != out.SampleRate() {
		chain = beep.Resample(4, format.SampleRate, out.SampleRate(), track)
	}
	if h := c.opts.Handset; h.Enabled {
		chain = NewHandsetFilter(chain, float64(out.SampleRate()), h.LowCutoff, h.HighCutoff)
	}

	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		track.Close()
		return
	}
	c.track, c.format = track, format
	c.gain = NewSmoothVolume(chain, c.volume)
	c.ctrl = &beep.Ctrl{Streamer: c.gain, Paused: !c.want}
	ctrl := c.ctrl
	onMeta := c.ev.OnMetadataLoaded
	c.mu.Unlock()

	duration := format.SampleRate.D(track.Len())
	c.logger.Debug("Clip loaded", "path", path, "duration", duration)
	if onMeta != nil {
		onMeta(duration)
	}

	// The callback runs on the speaker goroutine under its lock; hand off
	if err := out.Play(beep.Seq(ctrl, beep.Callback(func() { go c.finish() }))); err != nil {
		c.fail(err)
		return
	}
	go c.tick()
}

// Play starts or resumes playback, or records the intent while loading.
func (c *Clip) Play() { c.setPaused(false) }

// Pause holds playback, or records the intent while loading.
func (c *Clip) Pause() { c.setPaused(true) }

func (c *Clip) setPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.want = !paused
	if c.ctrl != nil && !c.released {
		c.opts.Output.Lock()
		c.ctrl.Paused = paused
		c.opts.Output.Unlock()
	}
}

// Seek moves the playback position, clamped to the clip.
func (c *Clip) Seek(pos time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.track == nil || c.released {
		return ErrNotLoaded
	}
	n := c.format.SampleRate.N(pos)
	if n < 0 {
		n = 0
	}
	if last := c.track.Len() - 1; n > last && last >= 0 {
		n = last
	}
	c.opts.Output.Lock()
	defer c.opts.Output.Unlock()
	return c.track.Seek(n)
}

// SetVolume retargets the gain in [0,1] without interrupting playback.
func (c *Clip) SetVolume(vol float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = clampUnit(vol)
	if c.gain != nil {
		c.opts.Output.Lock()
		c.gain.SetTargetVolume(c.volume, c.opts.Output.SampleRate(), volumeRamp)
		c.opts.Output.Unlock()
	}
}

// Position returns the current playback position.
func (c *Clip) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *Clip) positionLocked() time.Duration {
	if c.track == nil || c.format.SampleRate == 0 {
		return 0
	}
	c.opts.Output.Lock()
	defer c.opts.Output.Unlock()
	return c.format.SampleRate.D(c.track.Position())
}

// Duration returns the clip length, or 0 before it is loaded.
func (c *Clip) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.track == nil || c.format.SampleRate == 0 {
		return 0
	}
	return c.format.SampleRate.D(c.track.Len())
}

// Release removes the clip from the output and closes the file. It never waits for
// the clip's goroutines and may be called from an event handler.
func (c *Clip) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	close(c.done)
	if c.ctrl != nil {
		// A nil streamer ends the Ctrl, which drops it from the mixer
		c.opts.Output.Lock()
		c.ctrl.Streamer = nil
		c.opts.Output.Unlock()
	}
	if c.track != nil {
		c.track.Close()
	}
}

func (c *Clip) finish() {
	c.mu.Lock()
	if c.released || c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	onTime, onEnded := c.ev.OnTimeUpdate, c.ev.OnEnded
	d := time.Duration(0)
	if c.track != nil {
		d = c.format.SampleRate.D(c.track.Len())
	}
	c.mu.Unlock()

	if onTime != nil {
		onTime(d)
	}
	if onEnded != nil {
		onEnded()
	}
}

func (c *Clip) fail(err error) {
	c.mu.Lock()
	released := c.released
	onErr := c.ev.OnError
	c.mu.Unlock()
	if released {
		return
	}
	c.logger.Warn("Clip failed", "error", err)
	if onErr != nil {
		onErr(err)
	}
}

// tick reports the position while the clip is playing.
func (c *Clip) tick() {
	t := time.NewTicker(c.opts.Tick)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
		}

		c.mu.Lock()
		if c.released || c.ended {
			c.mu.Unlock()
			return
		}
		playing := c.want
		pos := c.positionLocked()
		onTime := c.ev.OnTimeUpdate
		c.mu.Unlock()

		if playing && onTime != nil {
			onTime(pos)
		}
	}
}
