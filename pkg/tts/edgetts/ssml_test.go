package edgetts

import (
	"strings"
	"testing"

	"bharatvista/pkg/tts"
)

func TestBuildSSML(t *testing.T) {
	tests := []struct {
		name     string
		req      tts.Request
		expected []string // Substrings that must be present
	}{
		{
			name:     "Normal text",
			req:      tts.Request{Voice: "en-IN-NeerjaNeural", Text: "Hello world", Rate: 0.9},
			expected: []string{"Hello world", "en-IN-NeerjaNeural", "xml:lang='en-IN'", "rate='-10%'"},
		},
		{
			name:     "Locale",
			req:      tts.Request{Voice: "hi-IN-SwaraNeural", Text: "नमस्ते", Locale: "hi-IN"},
			expected: []string{"xml:lang='hi-IN'", "नमस्ते", "rate='+0%'"},
		},
		{
			name:     "Text with ampersand",
			req:      tts.Request{Voice: "en-IN-NeerjaNeural", Text: "Humayun's Tomb & gardens"},
			expected: []string{"Humayun&apos;s Tomb &amp; gardens"},
		},
		{
			name:     "Text with tags",
			req:      tts.Request{Voice: "en-IN-NeerjaNeural", Text: "<speak>Hello</speak>"},
			expected: []string{"&lt;speak&gt;Hello&lt;/speak&gt;"},
		},
		{
			name:     "Text with quotes",
			req:      tts.Request{Voice: "en-IN-NeerjaNeural", Text: `Called "the jewel of Muslim art"`},
			expected: []string{`Called &quot;the jewel of Muslim art&quot;`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSSML(tt.req)
			for _, exp := range tt.expected {
				if !strings.Contains(got, exp) {
					t.Errorf("buildSSML() = %v, expected to contain %v", got, exp)
				}
			}
		})
	}
}
