package narration

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeClip records control calls and lets tests fire engine events.
type fakeClip struct {
	mu       sync.Mutex
	uri      string
	ev       AudioEvents
	playing  bool
	released bool
	volume   float64
	seeks    []time.Duration
	loadErr  error
}

func (c *fakeClip) Load(_ context.Context, uri string, ev AudioEvents) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return c.loadErr
	}
	c.uri, c.ev = uri, ev
	return nil
}

func (c *fakeClip) Play()  { c.set(func() { c.playing = true }) }
func (c *fakeClip) Pause() { c.set(func() { c.playing = false }) }
func (c *fakeClip) Seek(pos time.Duration) error {
	c.set(func() { c.seeks = append(c.seeks, pos) })
	return nil
}
func (c *fakeClip) SetVolume(v float64) { c.set(func() { c.volume = v }) }
func (c *fakeClip) Release()            { c.set(func() { c.released, c.playing = true, false }) }

func (c *fakeClip) set(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

func (c *fakeClip) isPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// fakeAudio hands out fakeClips and remembers them in order.
type fakeAudio struct {
	mu      sync.Mutex
	clips   []*fakeClip
	loadErr error
}

func (f *fakeAudio) factory() AudioEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeClip{loadErr: f.loadErr}
	f.clips = append(f.clips, c)
	return c
}

func (f *fakeAudio) last() *fakeClip {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clips) == 0 {
		return nil
	}
	return f.clips[len(f.clips)-1]
}

type fakeHandle struct {
	mu        sync.Mutex
	u         Utterance
	paused    bool
	cancelled bool
	volume    float64
}

func (h *fakeHandle) Pause()  { h.mu.Lock(); h.paused = true; h.mu.Unlock() }
func (h *fakeHandle) Resume() { h.mu.Lock(); h.paused = false; h.mu.Unlock() }
func (h *fakeHandle) Cancel() { h.mu.Lock(); h.cancelled = true; h.mu.Unlock() }
func (h *fakeHandle) SetVolume(v float64) {
	h.mu.Lock()
	h.volume = v
	h.mu.Unlock()
}

func (h *fakeHandle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// fakeSpeech records utterances; tests drive boundaries and ends through them.
type fakeSpeech struct {
	mu          sync.Mutex
	unavailable bool
	speakErr    error
	handles     []*fakeHandle
}

func (f *fakeSpeech) Available() bool { return !f.unavailable }

func (f *fakeSpeech) Speak(_ context.Context, u Utterance) (SpeechHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.speakErr != nil {
		return nil, f.speakErr
	}
	h := &fakeHandle{u: u, volume: u.Volume}
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeSpeech) Voices(context.Context) ([]Voice, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSpeech) last() *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handles) == 0 {
		return nil
	}
	return f.handles[len(f.handles)-1]
}

func (f *fakeSpeech) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}
