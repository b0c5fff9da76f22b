// Package tts defines the speech synthesis provider contract used for narration.
package tts

import (
	"context"
	"errors"
	"time"
)

const (
	// MinAudioSize is the minimum size of a synthesized audio file (1KB).
	// Files smaller than this are likely failed synthesis attempts.
	MinAudioSize = 1024
)

// Request describes one synthesis.
type Request struct {
	Text  string
	Voice string
	// Locale is the BCP-47 speech locale, e.g. "hi-IN".
	Locale string
	// Rate is the speaking rate relative to normal (1.0).
	Rate float64
}

// WordBoundary marks where a word of the request text is spoken in the audio.
type WordBoundary struct {
	Offset   time.Duration `json:"offset"`
	Duration time.Duration `json:"duration"`
	Word     string        `json:"word"`
	// CharIndex is the rune index of the word in the request text, or -1 when it
	// could not be located.
	CharIndex int `json:"char_index"`
}

// Result is a finished synthesis.
type Result struct {
	Path       string
	Format     string
	Boundaries []WordBoundary
}

// Provider defines the interface for Text-To-Speech engines.
type Provider interface {
	// Synthesize generates audio for req and writes it to outputPath. Word boundaries
	// are reported when the engine supports them.
	Synthesize(ctx context.Context, req Request, outputPath string) (*Result, error)

	// Voices returns the voices the provider can speak with.
	Voices(ctx context.Context) ([]Voice, error)
}

// Voice represents an available TTS voice.
type Voice struct {
	ID       string
	Name     string
	Language string
	IsNeural bool
}

// FatalError represents a TTS error that should not be retried.
// Examples: rate limits (429), server errors (5xx), auth failures (401/403).
type FatalError struct {
	StatusCode int
	Message    string
}

func (e *FatalError) Error() string {
	return e.Message
}

// NewFatalError creates a new FatalError with the given status code and message.
func NewFatalError(statusCode int, message string) *FatalError {
	return &FatalError{StatusCode: statusCode, Message: message}
}

// IsFatalError checks if an error is a TTS fatal error.
func IsFatalError(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
