// Package audio plays narration clips through the local speaker.
package audio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// OutputSampleRate is the rate the speaker is initialized at; clips are resampled to it.
const OutputSampleRate = beep.SampleRate(48000)

// Output is the mixing sink clips play into. Stream state of anything handed to
// Play may only be touched between Lock and Unlock.
type Output interface {
	SampleRate() beep.SampleRate
	Play(s beep.Streamer) error
	Lock()
	Unlock()
}

// Speaker is the process-wide speaker output. Several clips may play at once;
// the speaker mixes them.
type Speaker struct {
	mu          sync.Mutex
	initialized bool
}

// DefaultSpeaker is shared by all clips created without an explicit output.
var DefaultSpeaker = &Speaker{}

func (s *Speaker) SampleRate() beep.SampleRate { return OutputSampleRate }

// Play initializes the speaker on first use and starts mixing st.
func (s *Speaker) Play(st beep.Streamer) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}
	speaker.Play(st)
	return nil
}

func (s *Speaker) Lock()   { speaker.Lock() }
func (s *Speaker) Unlock() { speaker.Unlock() }

func (s *Speaker) ensureInitialized() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if err := speaker.Init(OutputSampleRate, OutputSampleRate.N(time.Second/10)); err != nil {
		slog.Error("Failed to initialize speaker", "error", err)
		return err
	}
	s.initialized = true
	return nil
}

// Close stops all playback and releases the audio device.
func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		speaker.Clear()
		speaker.Close()
		s.initialized = false
	}
}
