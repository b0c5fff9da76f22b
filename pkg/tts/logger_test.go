package tts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "tts.log")
	SetLogPath(path)
	defer SetLogPath("")

	Log("EDGETTS", "<speak>\nline</speak>", 0, nil)
	Log("EDGETTS", "second", 0, errors.New("boom"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), data)
	}
	if !strings.HasSuffix(lines[0], "<speak> line</speak>") {
		t.Errorf("newlines should be flattened: %q", lines[0])
	}
	if !strings.Contains(lines[1], "ERROR(boom)") {
		t.Errorf("error missing: %q", lines[1])
	}
}
