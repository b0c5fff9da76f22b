// Package narration drives a monument's audio guide: a per-view session that plays a
// pre-recorded clip or synthesized speech behind one transport and progress model.
package narration

import (
	"errors"
	"time"

	"golang.org/x/text/language"

	"bharatvista/pkg/model"
)

// Mode is the playback backend of a session. It is fixed at creation.
type Mode string

const (
	ModeUnavailable       Mode = "unavailable"
	ModePrerecordedAudio  Mode = "prerecorded_audio"
	ModeSynthesizedSpeech Mode = "synthesized_speech"
)

// PlayState is the transport state of a session.
type PlayState string

const (
	StateIdle      PlayState = "idle"
	StatePlaying   PlayState = "playing"
	StatePaused    PlayState = "paused"
	StateCompleted PlayState = "completed"
)

var (
	// ErrNarrationUnavailable is returned by transport calls on an Unavailable session.
	ErrNarrationUnavailable = errors.New("narration unavailable")
	// ErrSeekUnsupported is returned when seeking synthesized speech. State is untouched.
	ErrSeekUnsupported = errors.New("seek not supported for synthesized speech")
	// ErrMonumentNotFound is returned when opening a session for an unknown monument.
	ErrMonumentNotFound = errors.New("monument not found")
	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("narration session not found")
	// ErrTextTooShort is reported when the selected narration text has nothing to speak.
	ErrTextTooShort = errors.New("narration text too short to speak")
)

// Snapshot is the read model a view renders.
type Snapshot struct {
	SessionID  string        `json:"session_id,omitempty"`
	MonumentID string        `json:"monument_id"`
	Mode       Mode          `json:"mode"`
	Language   string        `json:"language"`
	IsFallback bool          `json:"is_fallback"`
	Languages  []string      `json:"languages"`
	State      PlayState     `json:"state"`
	Progress   float64       `json:"progress"`
	Position   time.Duration `json:"position"`
	Duration   time.Duration `json:"duration"`
	Volume     float64       `json:"volume"`
	Muted      bool          `json:"muted"`
	CanSeek    bool          `json:"can_seek"`
	Closed     bool          `json:"closed"`
	LastError  string        `json:"last_error,omitempty"`
	// Seq increases with every published change; a higher Seq is newer.
	Seq uint64 `json:"seq"`
}

var india = language.MustParseRegion("IN")

// SpeechLocale maps a narration language code to the speech locale used for it.
// Default and fallback narration is spoken as Indian English.
func SpeechLocale(code string, fallback bool) string {
	if fallback || code == "" || code == model.DefaultLanguage {
		return "en-IN"
	}
	base, err := language.ParseBase(code)
	if err != nil {
		return "en-IN"
	}
	tag, err := language.Compose(base, india)
	if err != nil {
		return "en-IN"
	}
	return tag.String()
}
