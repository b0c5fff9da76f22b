package model

import (
	"fmt"
	"sort"
	"strings"
)

// Category is the kind of heritage site. Values are matched exactly by filters.
type Category string

const (
	CategoryTemple   Category = "temple"
	CategoryFort     Category = "fort"
	CategoryPalace   Category = "palace"
	CategoryMonument Category = "monument"
	CategoryHeritage Category = "heritage"
	CategoryModern   Category = "modern"
	CategoryChurch   Category = "church"
	CategoryMemorial Category = "memorial"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryTemple, CategoryFort, CategoryPalace, CategoryMonument,
	CategoryHeritage, CategoryModern, CategoryChurch, CategoryMemorial,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// UnmarshalText rejects unknown categories so a bad catalogue entry fails at load time.
func (c *Category) UnmarshalText(b []byte) error {
	v := Category(strings.TrimSpace(string(b)))
	if !v.Valid() {
		return fmt.Errorf("unknown category %q", string(b))
	}
	*c = v
	return nil
}

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Highlight is a named feature of a monument.
type Highlight struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// Narration holds the audio guide inputs of a monument.
// Empty strings mean "absent".
type Narration struct {
	AudioURL     string            `json:"audio_url,omitempty" yaml:"audio_url"`
	Text         string            `json:"text,omitempty" yaml:"text"`
	Translations map[string]string `json:"translations,omitempty" yaml:"translations"`
}

// HasAudio reports whether a pre-recorded clip is referenced.
func (n Narration) HasAudio() bool { return strings.TrimSpace(n.AudioURL) != "" }

// HasText reports whether base narration text exists.
func (n Narration) HasText() bool { return strings.TrimSpace(n.Text) != "" }

// Available reports whether the monument can be narrated at all.
func (n Narration) Available() bool { return n.HasAudio() || n.HasText() }

// Languages returns the translation codes in sorted order.
func (n Narration) Languages() []string {
	langs := make([]string, 0, len(n.Translations))
	for code, text := range n.Translations {
		if strings.TrimSpace(text) == "" {
			continue
		}
		langs = append(langs, code)
	}
	sort.Strings(langs)
	return langs
}

// TextFor returns the narration text for lang. When no translation exists the
// base text is returned and fallback is true. DefaultLanguage never falls back.
func (n Narration) TextFor(lang string) (text string, fallback bool) {
	if lang == "" || lang == DefaultLanguage {
		return n.Text, false
	}
	if t, ok := n.Translations[lang]; ok && strings.TrimSpace(t) != "" {
		return t, false
	}
	return n.Text, true
}

// Monument is one catalogue record. Records are shared read-only; never mutate them.
type Monument struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	City        string      `json:"city" yaml:"city"`
	State       string      `json:"state" yaml:"state"`
	Category    Category    `json:"category" yaml:"category"`
	Dynasty     string      `json:"dynasty" yaml:"dynasty"`
	BuiltYear   string      `json:"built_year" yaml:"built_year"`
	Description string      `json:"description" yaml:"description"`
	History     string      `json:"history" yaml:"history"`
	Location    Location    `json:"location" yaml:"location"`
	Narration   Narration   `json:"narration" yaml:"narration"`
	Featured    bool        `json:"featured" yaml:"featured"`
	Highlights  []Highlight `json:"highlights,omitempty" yaml:"highlights"`

	// Presentation only.
	ImageURL     string `json:"image_url,omitempty" yaml:"image_url"`
	ModelID      string `json:"model_id,omitempty" yaml:"model_id"`
	PanoramaID   string `json:"panorama_id,omitempty" yaml:"panorama_id"`
	HasPanorama  bool   `json:"has_panorama" yaml:"has_panorama"`
	HasVR        bool   `json:"has_vr" yaml:"has_vr"`
	Vibe         string `json:"vibe,omitempty" yaml:"vibe"`
	AmbientAudio string `json:"ambient_audio,omitempty" yaml:"ambient_audio"`
}

// HistoryParagraphs splits History on blank lines.
func (m *Monument) HistoryParagraphs() []string {
	raw := strings.Split(strings.ReplaceAll(m.History, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Region is an Indian state (or union territory) grouping monuments.
type Region struct {
	Name          string `json:"name" yaml:"name"`
	Slug          string `json:"slug" yaml:"slug"`
	Description   string `json:"description" yaml:"description"`
	ImageURL      string `json:"image_url,omitempty" yaml:"image_url"`
	MonumentCount int    `json:"monument_count" yaml:"-"`
}
