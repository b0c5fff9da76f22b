package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bharatvista/pkg/config"
	"bharatvista/pkg/model"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")
	eventLog := filepath.Join(tempDir, "events.log")

	// A log from a previous run is rotated
	if err := os.WriteFile(serverLog, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.LogConfig{
		Server:   config.LogSettings{Path: serverLog, Level: "DEBUG"},
		Requests: config.LogSettings{Path: requestLog, Level: "INFO"},
		Events:   config.LogSettings{Path: eventLog, Level: "INFO"},
		TTS:      config.LogSettings{Path: filepath.Join(tempDir, "tts.log")},
	}

	prev := slog.Default()
	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() {
		cleanup()
		slog.SetDefault(prev)
		SetEventLogPath("")
	}()

	if _, err := os.Stat(serverLog); os.IsNotExist(err) {
		t.Error("Server log file not created")
	}
	if _, err := os.Stat(requestLog); os.IsNotExist(err) {
		t.Error("Request log file not created")
	}
	old, err := os.ReadFile(serverLog + ".old")
	if err != nil || string(old) != "previous run\n" {
		t.Errorf("expected rotated log, got %q (%v)", old, err)
	}
	if RequestLogger == nil {
		t.Error("RequestLogger was not initialized")
	}

	slog.Info("catalogue loaded", "monuments", 3)
	if got := GlobalLogCapture.GetLastLine(); !strings.Contains(got, "catalogue loaded") {
		t.Errorf("capture = %q, want the last info line", got)
	}
}

func TestSetupHandler_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"DEBUG", true, true, true},
		{"info", false, true, true},
		{"WARN", false, false, true},
		{"ERROR", false, false, false},
		{"bogus", false, true, true},
	}
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			h, f, err := setupHandler(filepath.Join(t.TempDir(), "x.log"), tt.level, nil)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			if got := h.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := h.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := h.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestSetupHandler_ConsoleCapsAtInfo(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "server.log")
	h, f, err := setupHandler(path, "DEBUG", &console)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	logger := slog.New(h)
	logger.Debug("tick", "pos", 12)
	logger.Info("narration started", "monument", "taj-mahal")

	if strings.Contains(console.String(), "tick") {
		t.Error("debug lines must stay out of the console")
	}
	if !strings.Contains(console.String(), "narration started") {
		t.Error("info line missing from console")
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "tick") {
		t.Error("debug line missing from file")
	}
}

func TestLogEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.log")
	SetEventLogPath(path)
	defer SetEventLogPath("")

	ts := time.Date(2026, 1, 26, 9, 30, 0, 0, time.UTC)
	LogEvent(&model.Event{Timestamp: ts, Type: "checkin", Title: "Red Fort", Summary: "3 stamps"})
	LogEvent(&model.Event{Timestamp: ts, Type: "narration", Title: "Qutub Minar"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "[2026-01-26 09:30:00] [checkin] Red Fort - 3 stamps\n" +
		"[2026-01-26 09:30:00] [narration] Qutub Minar\n"
	if string(data) != want {
		t.Errorf("event log = %q, want %q", data, want)
	}
	if got := GlobalEventCapture.GetLastLine(); got != "[2026-01-26 09:30:00] [narration] Qutub Minar" {
		t.Errorf("event capture = %q", got)
	}
}

func TestLogEvent_Disabled(t *testing.T) {
	SetEventLogPath("")
	LogEvent(&model.Event{Type: "checkin", Title: "Hampi"})
	if got := GlobalEventCapture.GetLastLine(); !strings.Contains(got, "Hampi") {
		t.Errorf("event capture = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	defer func() { EnableTrace = false }()
	if ParseLevel("warning") != slog.LevelWarn {
		t.Error("warning should map to WARN")
	}
	if ParseLevel("TRACE") != slog.LevelDebug || !EnableTrace {
		t.Error("TRACE should enable trace output at DEBUG")
	}
}
