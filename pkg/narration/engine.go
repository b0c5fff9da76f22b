package narration

import (
	"context"
	"time"
)

// Engines deliver events asynchronously from their own goroutines and must never
// invoke a callback from inside one of their control methods. Sessions discard events
// from playback they have already cancelled, so engines need not filter them.

// AudioEvents are the notifications a pre-recorded clip reports.
type AudioEvents struct {
	OnMetadataLoaded func(duration time.Duration)
	OnTimeUpdate     func(position time.Duration)
	OnEnded          func()
	OnError          func(err error)
}

// AudioEngine plays one pre-recorded clip, like a media element.
// Play before the clip is loaded records the intent; playback starts once it is.
type AudioEngine interface {
	Load(ctx context.Context, uri string, ev AudioEvents) error
	Play()
	Pause()
	Seek(pos time.Duration) error
	SetVolume(vol float64)
	// Release stops playback for good and frees the decoder and any file handles.
	Release()
}

// AudioFactory creates a fresh engine for each issued playback.
type AudioFactory func() AudioEngine

// Utterance is one synthesized speech request.
type Utterance struct {
	Text   string
	Lang   string  // speech locale, e.g. "hi-IN"
	Rate   float64 // 1.0 is normal speed
	Volume float64

	// OnBoundary receives the rune index of each word start within Text.
	OnBoundary func(charIndex int)
	OnEnd      func()
	OnError    func(err error)
}

// SpeechHandle controls one in-flight utterance.
type SpeechHandle interface {
	Pause()
	Resume()
	Cancel()
	SetVolume(vol float64)
}

// Voice describes a synthesis voice.
type Voice struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Locale string `json:"locale"`
}

// SpeechEngine synthesizes and speaks text. Available is checked once, when a
// session is created.
type SpeechEngine interface {
	Available() bool
	Speak(ctx context.Context, u Utterance) (SpeechHandle, error)
	Voices(ctx context.Context) ([]Voice, error)
}
