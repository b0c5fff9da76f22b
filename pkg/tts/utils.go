package tts

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// VerifyAudioFile checks that a synthesized file exists and is large enough to be real audio.
func VerifyAudioFile(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("audio file missing: %w", err)
	}
	if st.Size() < MinAudioSize {
		return fmt.Errorf("audio file too small (%d bytes)", st.Size())
	}
	return nil
}

// AlignBoundaries fills in CharIndex by locating each boundary word in text,
// scanning forward from the previous match. Words that cannot be found keep
// CharIndex -1 and do not move the cursor.
func AlignBoundaries(text string, bs []WordBoundary) {
	cursor := 0 // byte offset
	for i := range bs {
		bs[i].CharIndex = -1
		w := bs[i].Word
		if w == "" {
			continue
		}
		idx := strings.Index(text[cursor:], w)
		if idx < 0 {
			continue
		}
		at := cursor + idx
		bs[i].CharIndex = utf8.RuneCountInString(text[:at])
		cursor = at + len(w)
	}
}

// RatePercent renders a relative rate as an SSML prosody value ("-10%").
func RatePercent(rate float64) string {
	if rate <= 0 {
		rate = 1
	}
	return fmt.Sprintf("%+d%%", int((rate-1)*100+signHalf(rate-1)))
}

func signHalf(v float64) float64 {
	if v < 0 {
		return -0.5
	}
	return 0.5
}
