// Package speech speaks narration text: it synthesizes the text with a TTS provider,
// plays the result as a clip and turns the provider's word timings into boundary
// events while the clip plays.
package speech

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bharatvista/pkg/cache"
	"bharatvista/pkg/narration"
	"bharatvista/pkg/tts"
)

// ErrNoVoice is returned when no voice is configured or known for a locale.
var ErrNoVoice = errors.New("no voice for locale")

const endOfClip = time.Duration(1<<63 - 1)

// configurable is implemented by providers that need credentials before use.
type configurable interface {
	Configured() bool
}

// Options configure an Engine.
type Options struct {
	// Voices maps a speech locale ("hi-IN") or bare language ("hi") to a voice id.
	Voices map[string]string
	// DefaultVoice is used when nothing else yields a voice.
	DefaultVoice string
	// VoiceFor picks a voice when Voices has no entry.
	VoiceFor func(locale string) string
	// CacheDir keeps synthesized clips between utterances. Empty selects a temp dir.
	CacheDir string
	// Cache remembers synthesis results (clip path and word timings) by content hash.
	Cache  cache.Cacher
	Logger *slog.Logger
}

// Engine implements narration.SpeechEngine.
type Engine struct {
	provider tts.Provider
	newClip  narration.AudioFactory
	opts     Options
	logger   *slog.Logger
}

// New creates a speech engine. Either argument may be nil, which makes the engine
// unavailable.
func New(p tts.Provider, clips narration.AudioFactory, opts Options) *Engine {
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join(os.TempDir(), "bharatvista-speech")
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewTiered(nil, 0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.With("component", "speech")
	}
	return &Engine{provider: p, newClip: clips, opts: opts, logger: logger}
}

// Available reports whether the engine can speak at all.
func (e *Engine) Available() bool {
	if e.provider == nil || e.newClip == nil {
		return false
	}
	if c, ok := e.provider.(configurable); ok {
		return c.Configured()
	}
	return true
}

// Voices lists the provider's voices.
func (e *Engine) Voices(ctx context.Context) ([]narration.Voice, error) {
	if e.provider == nil {
		return nil, nil
	}
	vs, err := e.provider.Voices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]narration.Voice, 0, len(vs))
	for _, v := range vs {
		out = append(out, narration.Voice{ID: v.ID, Name: v.Name, Locale: v.Language})
	}
	return out, nil
}

// Speak starts synthesis in the background and returns a handle immediately.
// Events reach u's callbacks from the engine's goroutines.
func (e *Engine) Speak(ctx context.Context, u narration.Utterance) (narration.SpeechHandle, error) {
	if !e.Available() {
		return nil, errors.New("speech synthesis is not available")
	}
	if strings.TrimSpace(u.Text) == "" {
		return nil, errors.New("nothing to speak")
	}
	voice := e.voiceFor(u.Lang)
	if voice == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoVoice, u.Lang)
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &handle{u: u, cancel: cancel, volume: u.Volume, logger: e.logger}
	go h.run(ctx, e, voice)
	return h, nil
}

func (e *Engine) voiceFor(locale string) string {
	if v, ok := e.opts.Voices[locale]; ok && v != "" {
		return v
	}
	lang, _, _ := strings.Cut(locale, "-")
	if v, ok := e.opts.Voices[lang]; ok && v != "" {
		return v
	}
	if e.opts.VoiceFor != nil {
		if v := e.opts.VoiceFor(locale); v != "" {
			return v
		}
	}
	return e.opts.DefaultVoice
}

// synthesized is what the cache remembers about one synthesis.
type synthesized struct {
	Path       string             `json:"path"`
	Boundaries []tts.WordBoundary `json:"boundaries"`
}

// synthesize returns a clip for the request, reusing an earlier synthesis of the
// same text, voice and rate when its file is still on disk.
func (e *Engine) synthesize(ctx context.Context, req tts.Request) (*synthesized, error) {
	key := cacheKey(req)
	if raw, ok := e.opts.Cache.GetCache(ctx, key); ok {
		var s synthesized
		if err := json.Unmarshal(raw, &s); err == nil {
			if _, err := os.Stat(s.Path); err == nil {
				e.logger.Debug("Speech cache hit", "key", key)
				return &s, nil
			}
		}
	}

	if err := os.MkdirAll(e.opts.CacheDir, 0o755); err != nil {
		return nil, err
	}
	res, err := e.provider.Synthesize(ctx, req, filepath.Join(e.opts.CacheDir, strings.TrimPrefix(key, "speech:")))
	if err != nil {
		return nil, err
	}
	s := &synthesized{Path: res.Path, Boundaries: res.Boundaries}
	if raw, err := json.Marshal(s); err == nil {
		if err := e.opts.Cache.SetCache(ctx, key, raw); err != nil {
			e.logger.Warn("Failed to cache synthesis", "error", err)
		}
	}
	return s, nil
}

func cacheKey(req tts.Request) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%.2f|%s", req.Voice, req.Locale, req.Rate, req.Text)))
	return "speech:" + hex.EncodeToString(sum[:])
}

// handle is one utterance: synthesis, then playback of the resulting clip.
type handle struct {
	u      narration.Utterance
	cancel context.CancelFunc
	logger *slog.Logger

	mu         sync.Mutex
	clip       narration.AudioEngine
	boundaries []tts.WordBoundary
	next       int
	paused     bool
	canceled   bool
	ended      bool
	volume     float64
}

func (h *handle) run(ctx context.Context, e *Engine, voice string) {
	rate := h.u.Rate
	if rate <= 0 {
		rate = 1
	}
	syn, err := e.synthesize(ctx, tts.Request{Text: h.u.Text, Voice: voice, Locale: h.u.Lang, Rate: rate})
	if err != nil {
		if ctx.Err() == nil {
			h.fail(fmt.Errorf("speech synthesis failed: %w", err))
		}
		return
	}

	h.mu.Lock()
	if h.canceled {
		h.mu.Unlock()
		return
	}
	clip := e.newClip()
	h.clip = clip
	h.boundaries = syn.Boundaries
	clip.SetVolume(h.volume)
	if !h.paused {
		clip.Play()
	}
	h.mu.Unlock()

	err = clip.Load(ctx, syn.Path, narration.AudioEvents{
		OnTimeUpdate: h.onTime,
		OnEnded:      h.onEnded,
		OnError:      h.fail,
	})
	if err != nil {
		h.fail(err)
	}
}

// onTime emits every boundary whose word has started by pos.
func (h *handle) onTime(pos time.Duration) {
	h.mu.Lock()
	if h.canceled || h.ended {
		h.mu.Unlock()
		return
	}
	var due []int
	for h.next < len(h.boundaries) && h.boundaries[h.next].Offset <= pos {
		if ci := h.boundaries[h.next].CharIndex; ci >= 0 {
			due = append(due, ci)
		}
		h.next++
	}
	onBoundary := h.u.OnBoundary
	h.mu.Unlock()

	if onBoundary == nil {
		return
	}
	for _, ci := range due {
		onBoundary(ci)
	}
}

func (h *handle) onEnded() {
	h.onTime(endOfClip)

	h.mu.Lock()
	if h.canceled || h.ended {
		h.mu.Unlock()
		return
	}
	h.ended = true
	clip := h.clip
	onEnd := h.u.OnEnd
	h.mu.Unlock()
	h.cancel()

	if clip != nil {
		clip.Release()
	}
	if onEnd != nil {
		onEnd()
	}
}

func (h *handle) fail(err error) {
	h.mu.Lock()
	if h.canceled || h.ended {
		h.mu.Unlock()
		return
	}
	h.ended = true
	onErr := h.u.OnError
	h.mu.Unlock()
	h.cancel()

	h.logger.Warn("Utterance failed", "error", err)
	if onErr != nil {
		onErr(err)
	}
}

func (h *handle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = true
	if h.clip != nil {
		h.clip.Pause()
	}
}

func (h *handle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = false
	if h.clip != nil && !h.canceled {
		h.clip.Play()
	}
}

// Cancel stops synthesis or playback for good. No callback fires afterwards.
func (h *handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled {
		return
	}
	h.canceled = true
	h.cancel()
	if h.clip != nil {
		h.clip.Release()
	}
}

func (h *handle) SetVolume(vol float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = vol
	if h.clip != nil {
		h.clip.SetVolume(vol)
	}
}
