package model

import (
	"reflect"
	"testing"
)

func TestNarration_TextFor(t *testing.T) {
	n := Narration{
		Text:         "Hello world",
		Translations: map[string]string{"hi": "नमस्ते", "ta": "   "},
	}

	tests := []struct {
		name         string
		lang         string
		wantText     string
		wantFallback bool
	}{
		{"Default", DefaultLanguage, "Hello world", false},
		{"Empty code", "", "Hello world", false},
		{"Translated", "hi", "नमस्ते", false},
		{"Blank translation", "ta", "Hello world", true},
		{"Missing translation", "te", "Hello world", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, fallback := n.TextFor(tt.lang)
			if text != tt.wantText || fallback != tt.wantFallback {
				t.Errorf("TextFor(%q) = (%q, %v), want (%q, %v)", tt.lang, text, fallback, tt.wantText, tt.wantFallback)
			}
		})
	}
}

func TestNarration_Availability(t *testing.T) {
	tests := []struct {
		name      string
		n         Narration
		available bool
	}{
		{"Nothing", Narration{}, false},
		{"Whitespace only", Narration{AudioURL: " ", Text: "\n"}, false},
		{"Audio", Narration{AudioURL: "/audio/x.mp3"}, true},
		{"Text", Narration{Text: "Welcome"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.n.Available(); got != tt.available {
				t.Errorf("Available() = %v, want %v", got, tt.available)
			}
		})
	}
}

func TestNarration_Languages(t *testing.T) {
	n := Narration{Translations: map[string]string{"te": "a", "hi": "b", "kn": ""}}
	got := n.Languages()
	want := []string{"hi", "te"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Languages() = %v, want %v", got, want)
	}
}

func TestCategory_UnmarshalText(t *testing.T) {
	var c Category
	if err := c.UnmarshalText([]byte("fort")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != CategoryFort {
		t.Errorf("got %q, want fort", c)
	}
	if err := c.UnmarshalText([]byte("castle")); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestMonument_HistoryParagraphs(t *testing.T) {
	m := &Monument{History: "First part.\n\nSecond part.\r\n\r\n\n\nThird."}
	got := m.HistoryParagraphs()
	want := []string{"First part.", "Second part.", "Third."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("HistoryParagraphs() = %v, want %v", got, want)
	}
}

func TestDescribeLanguage(t *testing.T) {
	if info := DescribeLanguage(DefaultLanguage); info.Name != "English" {
		t.Errorf("default language name = %q", info.Name)
	}
	if info := DescribeLanguage("hi"); info.Name != "Hindi" {
		t.Errorf("hi name = %q, want Hindi", info.Name)
	}
	if info := DescribeLanguage("not a tag!"); info.Name != "not a tag!" {
		t.Errorf("malformed code should echo, got %q", info.Name)
	}
}
