package config

// Persistent state keys (Registry)
const (
	KeyVolume            = "narration_volume"
	KeyMuted             = "narration_muted"
	KeyPreferredLanguage = "narration_language"
	KeySpeechEngine      = "speech_engine"
)
