// Package config loads the guide's YAML configuration and bridges it with runtime
// settings persisted in the state store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	DB          DBConfig          `yaml:"db"`
	Server      ServerConfig      `yaml:"server"`
	Request     RequestConfig     `yaml:"request"`
	Catalogue   CatalogueConfig   `yaml:"catalogue"`
	Narration   NarrationConfig   `yaml:"narration"`
	Speech      SpeechConfig      `yaml:"speech"`
	Audio       AudioConfig       `yaml:"audio"`
	Assets      AssetsConfig      `yaml:"assets"`
	Passport    PassportConfig    `yaml:"passport"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	TTS      LogSettings `yaml:"tts"`
	Events   LogSettings `yaml:"events"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// CatalogueConfig selects the monument data.
type CatalogueConfig struct {
	// Path to a YAML catalogue. Empty uses the bundled one.
	Path         string   `yaml:"path"`
	NearbyRadius Distance `yaml:"nearby_radius"`
}

// NarrationConfig holds narration session defaults.
type NarrationConfig struct {
	DefaultVolume float64  `yaml:"default_volume"`
	SpeechRate    float64  `yaml:"speech_rate"`
	ResumeCeiling float64  `yaml:"resume_ceiling"`
	SessionTTL    Duration `yaml:"session_ttl"`
}

// SpeechConfig holds speech synthesis settings.
type SpeechConfig struct {
	Engine       string            `yaml:"engine"`
	DefaultVoice string            `yaml:"default_voice"`
	Voices       map[string]string `yaml:"voices"`
	CacheDir     string            `yaml:"cache_dir"`
	MemoryTTL    Duration          `yaml:"memory_ttl"`
}

// AudioConfig holds playback settings.
type AudioConfig struct {
	Handset HandsetConfig `yaml:"handset"`
}

// HandsetConfig shapes narration like an audio-guide handset.
type HandsetConfig struct {
	Enabled    bool    `yaml:"enabled"`
	LowCutoff  float64 `yaml:"low_cutoff"`
	HighCutoff float64 `yaml:"high_cutoff"`
}

// AssetsConfig locates pre-recorded narration clips.
type AssetsConfig struct {
	LocalDir     string `yaml:"local_dir"`
	RemoteBase   string `yaml:"remote_base"`
	ClipCacheDir string `yaml:"clip_cache_dir"`
}

// PassportConfig holds check-in settings.
type PassportConfig struct {
	StorageKey string `yaml:"storage_key"`
}

// MaintenanceConfig holds startup pruning ages.
type MaintenanceConfig struct {
	CacheMaxAge   Duration `yaml:"cache_max_age"`
	HistoryMaxAge Duration `yaml:"history_max_age"`
	ClipMaxAge    Duration `yaml:"clip_max_age"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server:   LogSettings{Path: "./logs/server.log", Level: "INFO"},
			Requests: LogSettings{Path: "./logs/requests.log", Level: "INFO"},
			TTS:      LogSettings{Path: "./logs/tts.log", Level: "INFO"},
			Events:   LogSettings{Path: "./logs/events.log", Level: "INFO"},
		},
		DB: DBConfig{
			Path: "./data/bharatvista.db",
		},
		Server: ServerConfig{
			Address: "localhost:1947",
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(60 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(30 * time.Second),
			},
		},
		Catalogue: CatalogueConfig{
			NearbyRadius: Distance(50000),
		},
		Narration: NarrationConfig{
			DefaultVolume: 0.8,
			SpeechRate:    0.9,
			ResumeCeiling: 95,
			SessionTTL:    Duration(30 * time.Minute),
		},
		Speech: SpeechConfig{
			Engine:       "edge-tts",
			DefaultVoice: "en-IN-NeerjaNeural",
			Voices: map[string]string{
				"hi": "hi-IN-SwaraNeural",
				"ta": "ta-IN-PallaviNeural",
				"te": "te-IN-ShrutiNeural",
			},
			CacheDir:  "./data/speech",
			MemoryTTL: Duration(time.Hour),
		},
		Audio: AudioConfig{
			Handset: HandsetConfig{
				Enabled:    false,
				LowCutoff:  300,
				HighCutoff: 3400,
			},
		},
		Assets: AssetsConfig{
			LocalDir:     "./web/public",
			ClipCacheDir: "./data/clips",
		},
		Passport: PassportConfig{
			StorageKey: "bharat_vista_checkins",
		},
		Maintenance: MaintenanceConfig{
			CacheMaxAge:   Duration(30 * Day),
			HistoryMaxAge: Duration(365 * Day),
			ClipMaxAge:    Duration(30 * Day),
		},
	}
}

// LoadEnv overlays variables from the given dotenv files onto the environment.
// Missing files are skipped; variables already set are kept.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT save back
// to disk, so user formatting and comments survive.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expandPaths() {
	for _, p := range []*string{
		&c.Log.Server.Path, &c.Log.Requests.Path, &c.Log.TTS.Path, &c.Log.Events.Path,
		&c.DB.Path, &c.Catalogue.Path, &c.Speech.CacheDir, &c.Assets.LocalDir, &c.Assets.ClipCacheDir,
	} {
		*p = os.ExpandEnv(*p)
	}
}

var localeRe = regexp.MustCompile(`^[a-z]{2,3}(-[A-Z]{2})?$`)

// Validate checks value ranges and enum fields.
func (c *Config) Validate() error {
	n := c.Narration
	if n.DefaultVolume < 0 || n.DefaultVolume > 1 {
		return fmt.Errorf("narration.default_volume must be within [0,1], got %v", n.DefaultVolume)
	}
	if n.SpeechRate <= 0 || n.SpeechRate > 3 {
		return fmt.Errorf("narration.speech_rate must be within (0,3], got %v", n.SpeechRate)
	}
	if n.ResumeCeiling <= 0 || n.ResumeCeiling > 100 {
		return fmt.Errorf("narration.resume_ceiling must be within (0,100], got %v", n.ResumeCeiling)
	}
	switch c.Speech.Engine {
	case "edge-tts", "none":
	default:
		return fmt.Errorf("unknown speech.engine '%s' (options: edge-tts, none)", c.Speech.Engine)
	}
	for lang := range c.Speech.Voices {
		if !localeRe.MatchString(lang) {
			return fmt.Errorf("invalid speech.voices key '%s': must be 'xx' or 'xx-YY'", lang)
		}
	}
	if c.Passport.StorageKey == "" {
		return fmt.Errorf("passport.storage_key must not be empty")
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Bharat Vista Configuration
# ---------------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers)
# Paths may reference environment variables ($HOME, ${APPDATA}).

`)
	data = append(header, data...)

	reEngine := regexp.MustCompile(`(?m)^(\s+)engine:`)
	data = reEngine.ReplaceAll(data, []byte("${1}# Options: edge-tts, none\n${1}engine:"))

	reVoices := regexp.MustCompile(`(?m)^(\s+)voices:`)
	data = reVoices.ReplaceAll(data, []byte("${1}# Voice per narration language code (hi, ta, te, ...)\n${1}voices:"))

	reCeiling := regexp.MustCompile(`(?m)^(\s+)resume_ceiling:`)
	data = reCeiling.ReplaceAll(data, []byte("${1}# Language switches past this percent start over\n${1}resume_ceiling:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
