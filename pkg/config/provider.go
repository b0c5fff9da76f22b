package config

import (
	"context"
	"strconv"
	"time"

	"bharatvista/pkg/store"
)

// Provider defines the interface for accessing unified configuration.
type Provider interface {
	// Narration
	Volume(ctx context.Context) float64
	Muted(ctx context.Context) bool
	PreferredLanguage(ctx context.Context) string
	SpeechRate(ctx context.Context) float64
	ResumeCeiling(ctx context.Context) float64
	SessionTTL(ctx context.Context) time.Duration

	// Speech
	SpeechEngine(ctx context.Context) string

	// Writes of user-adjusted values
	SetVolume(ctx context.Context, v float64) error
	SetMuted(ctx context.Context, muted bool) error
	SetPreferredLanguage(ctx context.Context, code string) error

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider. st may be nil for a read-only view
// of base.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{
		base:  base,
		store: st,
	}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

// --- Implementations ---

func (p *UnifiedProvider) Volume(ctx context.Context) float64 {
	v := p.getFloat64(ctx, KeyVolume, p.base.Narration.DefaultVolume)
	if v < 0 || v > 1 {
		return p.base.Narration.DefaultVolume
	}
	return v
}

func (p *UnifiedProvider) Muted(ctx context.Context) bool {
	return p.getBool(ctx, KeyMuted, false)
}

func (p *UnifiedProvider) PreferredLanguage(ctx context.Context) string {
	return p.getString(ctx, KeyPreferredLanguage, "default")
}

func (p *UnifiedProvider) SpeechRate(ctx context.Context) float64 {
	return p.base.Narration.SpeechRate
}

func (p *UnifiedProvider) ResumeCeiling(ctx context.Context) float64 {
	return p.base.Narration.ResumeCeiling
}

func (p *UnifiedProvider) SessionTTL(ctx context.Context) time.Duration {
	return time.Duration(p.base.Narration.SessionTTL)
}

func (p *UnifiedProvider) SpeechEngine(ctx context.Context) string {
	return p.getString(ctx, KeySpeechEngine, p.base.Speech.Engine)
}

func (p *UnifiedProvider) SetVolume(ctx context.Context, v float64) error {
	return p.set(ctx, KeyVolume, strconv.FormatFloat(v, 'f', -1, 64))
}

func (p *UnifiedProvider) SetMuted(ctx context.Context, muted bool) error {
	return p.set(ctx, KeyMuted, strconv.FormatBool(muted))
}

func (p *UnifiedProvider) SetPreferredLanguage(ctx context.Context, code string) error {
	if code == "" || code == "default" {
		if p.store == nil {
			return nil
		}
		return p.store.DeleteState(ctx, KeyPreferredLanguage)
	}
	return p.set(ctx, KeyPreferredLanguage, code)
}

// --- Helpers ---

func (p *UnifiedProvider) set(ctx context.Context, key, val string) error {
	if p.store == nil {
		return nil
	}
	return p.store.SetState(ctx, key, val)
}

func (p *UnifiedProvider) getString(ctx context.Context, key, fallback string) string {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val
		}
	}
	return fallback
}

func (p *UnifiedProvider) getFloat64(ctx context.Context, key string, fallback float64) float64 {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
	}
	return fallback
}

func (p *UnifiedProvider) getBool(ctx context.Context, key string, fallback bool) bool {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val == "true"
		}
	}
	return fallback
}
