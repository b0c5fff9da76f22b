package narration

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"

	"bharatvista/pkg/logging"
	"bharatvista/pkg/model"
)

const (
	DefaultVolume        = 0.8
	DefaultRate          = 0.9
	DefaultResumeCeiling = 95.0

	// Narration text shorter than this (after trimming) is not spoken.
	minSpeakableRunes = 5
)

// Options configure a session. Zero values select the defaults above.
type Options struct {
	Audio  AudioFactory
	Speech SpeechEngine
	Logger *slog.Logger

	// Volume in (0,1]. Zero means unset and selects DefaultVolume; silence is
	// expressed with Muted.
	Volume float64
	Muted  bool
	Rate   float64
	// ResumeCeiling is the progress percent at or above which a language switch
	// restarts the new text from the beginning instead of resuming.
	ResumeCeiling float64
	// Language is the initial selection; empty means model.DefaultLanguage.
	Language string
}

// Session narrates one monument for one mounted view. All methods are safe for
// concurrent use; engine events and caller transitions are serialized by mu.
type Session struct {
	mu sync.Mutex

	monument *model.Monument
	mode     Mode
	opts     Options
	logger   *slog.Logger

	language string
	fallback bool
	state    PlayState
	progress float64
	volume   float64
	muted    bool
	closed   bool
	lastErr  error

	// gen identifies the active playback; events from older generations are dropped.
	gen    uint64
	cancel context.CancelFunc

	// audio mode
	clip        AudioEngine
	duration    time.Duration
	position    time.Duration
	pendingSeek float64

	// speech mode
	utterance  SpeechHandle
	textOffset int // rune offset of the spoken text within the full text
	textLen    int // rune length of the full text

	// seq numbers published snapshots so listeners can drop late deliveries.
	seq       uint64
	listeners []*listener
}

// listener delivers snapshots to one subscriber in seq order. Updates run on
// engine goroutines and caller goroutines at once, and a delivery that lost the
// race to a newer one is dropped.
type listener struct {
	fn   func(Snapshot)
	mu   sync.Mutex
	last uint64
}

func (l *listener) deliver(snap Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if snap.Seq <= l.last {
		return
	}
	l.last = snap.Seq
	l.fn(snap)
}

// NewSession decides the session's mode once, from the monument's narration fields
// and the speech engine's availability at this moment.
func NewSession(m *model.Monument, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.With("component", "narration")
	}
	if opts.Rate <= 0 {
		opts.Rate = DefaultRate
	}
	if opts.ResumeCeiling <= 0 || opts.ResumeCeiling > 100 {
		opts.ResumeCeiling = DefaultResumeCeiling
	}
	if opts.Volume <= 0 || opts.Volume > 1 {
		opts.Volume = DefaultVolume
	}

	s := &Session{
		monument:    m,
		opts:        opts,
		logger:      opts.Logger.With("monument", m.ID),
		state:       StateIdle,
		volume:      opts.Volume,
		muted:       opts.Muted,
		pendingSeek: -1,
	}
	s.mode = decideMode(m.Narration, opts)

	s.language = model.DefaultLanguage
	if opts.Language != "" {
		s.language = opts.Language
	}
	_, s.fallback = m.Narration.TextFor(s.language)

	s.logger.Debug("Narration session created", "mode", s.mode, "language", s.language)
	return s
}

func decideMode(n model.Narration, opts Options) Mode {
	switch {
	case n.HasAudio() && opts.Audio != nil:
		return ModePrerecordedAudio
	case n.HasText() && opts.Speech != nil && opts.Speech.Available():
		return ModeSynthesizedSpeech
	default:
		return ModeUnavailable
	}
}

// Mode returns the backend fixed at creation.
func (s *Session) Mode() Mode { return s.mode }

// Monument returns the narrated monument.
func (s *Session) Monument() *model.Monument { return s.monument }

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs with the session lock released and must not block for long.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, &listener{fn: fn})
	idx := len(s.listeners) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.listeners) {
			s.listeners[idx] = nil
		}
	}
}

// Play starts, resumes, or restarts narration depending on the current state.
func (s *Session) Play() {
	s.update(func() {
		if s.closed || s.mode == ModeUnavailable {
			return
		}
		switch s.state {
		case StatePlaying:
			return
		case StatePaused:
			if s.resumeActive() {
				s.state = StatePlaying
				return
			}
			s.issue(s.progress)
		case StateCompleted:
			s.issue(0)
		default:
			s.issue(s.progress)
		}
	})
}

// Pause holds the active playback. It has no effect unless playing.
func (s *Session) Pause() {
	s.update(func() {
		if s.closed || s.state != StatePlaying {
			return
		}
		if s.clip != nil {
			s.clip.Pause()
		}
		if s.utterance != nil {
			s.utterance.Pause()
		}
		s.state = StatePaused
	})
}

// Restart plays the current language's narration from the beginning.
func (s *Session) Restart() {
	s.update(func() {
		if s.closed || s.mode == ModeUnavailable {
			return
		}
		s.issue(0)
	})
}

// Seek moves pre-recorded playback to percent of its duration. Synthesized speech
// cannot seek: ErrSeekUnsupported is returned and nothing changes.
func (s *Session) Seek(percent float64) error {
	var err error
	s.update(func() {
		switch {
		case s.mode == ModeUnavailable:
			err = ErrNarrationUnavailable
			return
		case s.mode == ModeSynthesizedSpeech:
			err = ErrSeekUnsupported
			return
		case s.closed:
			return
		}

		p := clampPercent(percent)
		if s.clip == nil {
			// Nothing loaded; the next Play starts here.
			s.progress = p
			if s.state == StateCompleted {
				s.state = StateIdle
			}
			return
		}
		if s.duration <= 0 {
			s.pendingSeek = p
			s.progress = p
			return
		}
		if serr := s.clip.Seek(percentOf(s.duration, p)); serr != nil {
			err = serr
			return
		}
		s.position = percentOf(s.duration, p)
		s.progress = p
	})
	return err
}

// SetLanguage selects the narration language. Codes without a translation fall back
// to the default text and are flagged. While playing or paused the narration is
// re-issued in the new language near the current progress; otherwise progress resets.
func (s *Session) SetLanguage(code string) {
	s.update(func() {
		if s.closed {
			return
		}
		if code == "" {
			code = model.DefaultLanguage
		}
		if code == s.language {
			return
		}
		s.language = code
		_, s.fallback = s.monument.Narration.TextFor(code)
		s.logger.Info("Narration language changed", "language", code, "fallback", s.fallback)

		if s.mode == ModeUnavailable {
			return
		}
		if s.state == StatePlaying || s.state == StatePaused {
			s.issue(s.progress)
			return
		}
		s.stopActive()
		s.progress = 0
	})
}

// SetVolume sets the volume in [0,1]. Zero mutes, anything else unmutes. The active
// engine is retargeted without interrupting playback.
func (s *Session) SetVolume(v float64) {
	s.update(func() {
		if s.closed {
			return
		}
		s.volume = math.Max(0, math.Min(1, v))
		s.muted = s.volume == 0
		s.applyVolume()
	})
}

// SetMuted toggles mute without touching the stored volume.
func (s *Session) SetMuted(muted bool) {
	s.update(func() {
		if s.closed {
			return
		}
		s.muted = muted
		s.applyVolume()
	})
}

// Close stops any active engine for good. It is idempotent; afterwards every
// transport call is a no-op.
func (s *Session) Close() {
	s.update(func() {
		if s.closed {
			return
		}
		s.stopActive()
		s.closed = true
		if s.state == StatePlaying {
			s.state = StatePaused
		}
		s.logger.Debug("Narration session closed")
	})
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Text returns the narration text for the current language and whether it is the
// default-language fallback.
func (s *Session) Text() (string, bool) {
	s.mu.Lock()
	lang := s.language
	s.mu.Unlock()
	return s.monument.Narration.TextFor(lang)
}

// Snapshot returns the current read model.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		MonumentID: s.monument.ID,
		Mode:       s.mode,
		Language:   s.language,
		IsFallback: s.fallback,
		Languages:  append([]string{model.DefaultLanguage}, s.monument.Narration.Languages()...),
		State:      s.state,
		Progress:   s.progress,
		Position:   s.position,
		Duration:   s.duration,
		Volume:     s.volume,
		Muted:      s.muted,
		CanSeek:    s.mode == ModePrerecordedAudio,
		Closed:     s.closed,
		Seq:        s.seq,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// update runs fn under the lock and notifies listeners when the snapshot changed.
// Listeners are called without the lock held and must not call back into the
// session.
func (s *Session) update(fn func()) {
	s.mu.Lock()
	before := s.snapshot()
	fn()
	after := s.snapshot()
	if snapshotEqual(before, after) {
		s.mu.Unlock()
		return
	}
	s.seq++
	after.Seq = s.seq
	listeners := append([]*listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		if l != nil {
			l.deliver(after)
		}
	}
}

func snapshotEqual(a, b Snapshot) bool {
	return a.Language == b.Language && a.IsFallback == b.IsFallback && a.State == b.State &&
		a.Progress == b.Progress && a.Position == b.Position && a.Duration == b.Duration &&
		a.Volume == b.Volume && a.Muted == b.Muted && a.Closed == b.Closed && a.LastError == b.LastError
}

func (s *Session) effectiveVolume() float64 {
	if s.muted {
		return 0
	}
	return s.volume
}

func (s *Session) applyVolume() {
	v := s.effectiveVolume()
	if s.clip != nil {
		s.clip.SetVolume(v)
	}
	if s.utterance != nil {
		s.utterance.SetVolume(v)
	}
}

// resumeActive continues a paused engine. It reports false when there is nothing
// to resume, e.g. after a load failure.
func (s *Session) resumeActive() bool {
	switch {
	case s.clip != nil:
		s.clip.Play()
		return true
	case s.utterance != nil:
		s.utterance.Resume()
		return true
	}
	return false
}

// stopActive cancels the active engine and invalidates its pending events.
func (s *Session) stopActive() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.clip != nil {
		s.clip.Pause()
		s.clip.Release()
		s.clip = nil
	}
	if s.utterance != nil {
		s.utterance.Cancel()
		s.utterance = nil
	}
	s.pendingSeek = -1
}

// issue starts a new playback at fromPercent after stopping the previous one.
func (s *Session) issue(fromPercent float64) {
	s.stopActive()
	s.lastErr = nil
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	switch s.mode {
	case ModePrerecordedAudio:
		s.issueAudio(ctx, gen, clampPercent(fromPercent))
	case ModeSynthesizedSpeech:
		s.issueSpeech(ctx, gen, clampPercent(fromPercent))
	}
}

func (s *Session) issueAudio(ctx context.Context, gen uint64, from float64) {
	clip := s.opts.Audio()
	s.clip = clip
	s.duration, s.position = 0, 0
	s.progress = from
	if from > 0 {
		s.pendingSeek = from
	}
	clip.SetVolume(s.effectiveVolume())

	err := clip.Load(ctx, s.monument.Narration.AudioURL, AudioEvents{
		OnMetadataLoaded: func(d time.Duration) { s.onMetadata(gen, d) },
		OnTimeUpdate:     func(pos time.Duration) { s.onTimeUpdate(gen, pos) },
		OnEnded:          func() { s.onEnded(gen) },
		OnError:          func(err error) { s.onEngineError(gen, err) },
	})
	if err != nil {
		s.fail(err)
		return
	}
	clip.Play()
	s.state = StatePlaying
	s.logger.Info("Narration clip started", "from", from)
}

func (s *Session) issueSpeech(ctx context.Context, gen uint64, from float64) {
	text, fallback := s.monument.Narration.TextFor(s.language)
	runes := []rune(text)
	if len([]rune(strings.TrimSpace(text))) < minSpeakableRunes {
		s.fail(ErrTextTooShort)
		return
	}

	offset := 0
	if from > 0 && from < s.opts.ResumeCeiling {
		offset = resumeOffset(runes, from)
	}
	s.textOffset = offset
	s.textLen = len(runes)
	if offset == 0 {
		s.progress = 0
	} else {
		s.progress = from
	}

	h, err := s.opts.Speech.Speak(ctx, Utterance{
		Text:       string(runes[offset:]),
		Lang:       SpeechLocale(s.language, fallback),
		Rate:       s.opts.Rate,
		Volume:     s.effectiveVolume(),
		OnBoundary: func(ci int) { s.onBoundary(gen, ci) },
		OnEnd:      func() { s.onEnded(gen) },
		OnError:    func(err error) { s.onEngineError(gen, err) },
	})
	if err != nil {
		s.fail(err)
		return
	}
	s.utterance = h
	s.state = StatePlaying
	s.logger.Info("Narration speech started", "language", s.language, "fallback", fallback, "offset", offset)
}

// resumeOffset approximates where to pick up in a text after a language switch: the
// first whitespace at or after the rune implied by percent. Texts in different
// languages differ in length and structure, so this is only an approximation.
// It returns 0 (start over) when no whitespace follows.
func resumeOffset(runes []rune, percent float64) int {
	start := int(math.Floor(percent / 100 * float64(len(runes))))
	for i := start; i < len(runes); i++ {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return 0
}

func (s *Session) fail(err error) {
	s.logger.Warn("Narration playback failed", "error", err)
	s.stopActive()
	s.lastErr = err
	s.state = StateIdle
}

func (s *Session) current(gen uint64) bool {
	return !s.closed && gen == s.gen
}

func (s *Session) onMetadata(gen uint64, d time.Duration) {
	s.update(func() {
		if !s.current(gen) {
			return
		}
		s.duration = d
		if s.pendingSeek >= 0 && d > 0 {
			pos := percentOf(d, s.pendingSeek)
			if err := s.clip.Seek(pos); err != nil {
				s.logger.Warn("Deferred seek failed", "error", err)
			} else {
				s.position = pos
				s.progress = s.pendingSeek
			}
			s.pendingSeek = -1
		}
	})
}

func (s *Session) onTimeUpdate(gen uint64, pos time.Duration) {
	s.update(func() {
		if !s.current(gen) || s.duration <= 0 || s.pendingSeek >= 0 {
			return
		}
		s.position = pos
		s.progress = clampPercent(float64(pos) / float64(s.duration) * 100)
	})
}

func (s *Session) onBoundary(gen uint64, charIndex int) {
	s.update(func() {
		if !s.current(gen) || s.textLen == 0 {
			return
		}
		s.progress = clampPercent(float64(s.textOffset+charIndex) / float64(s.textLen) * 100)
		logging.Trace(s.logger, "Narration boundary", "char", charIndex, "progress", s.progress)
	})
}

func (s *Session) onEnded(gen uint64) {
	s.update(func() {
		if !s.current(gen) {
			return
		}
		s.stopActive()
		s.state = StateCompleted
		s.progress = 100
		s.position = s.duration
		s.logger.Info("Narration completed")
	})
}

func (s *Session) onEngineError(gen uint64, err error) {
	s.update(func() {
		if !s.current(gen) {
			return
		}
		s.fail(err)
	})
}

func clampPercent(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(100, p))
}

func percentOf(d time.Duration, p float64) time.Duration {
	return time.Duration(float64(d) * p / 100)
}
