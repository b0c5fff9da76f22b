package edgetts

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bharatvista/pkg/tracker"
	"bharatvista/pkg/tts"
)

func TestHandleBinaryMessage(t *testing.T) {
	tmpFile, err := os.CreateTemp(t.TempDir(), "test_audio_*.mp3")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer tmpFile.Close()
	s := &stream{file: tmpFile}

	// Header length 4 bytes (0x00 0x04)
	header := []byte("info")
	audio := []byte{0x01, 0x02, 0x03, 0x04}
	data := append([]byte{0x00, 0x04}, header...)
	data = append(data, audio...)

	if err := s.handleBinaryMessage(data); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	content, _ := os.ReadFile(tmpFile.Name())
	if !bytes.Equal(content, audio) {
		t.Errorf("Expected audio data %v, got %v", audio, content)
	}
	if s.bytes != len(audio) {
		t.Errorf("bytes = %d, want %d", s.bytes, len(audio))
	}

	if err := s.handleBinaryMessage([]byte{0x00}); err != nil {
		t.Errorf("Too short message should be ignored, got %v", err)
	}
}

func TestHandleMetadata(t *testing.T) {
	s := &stream{}
	s.handleMetadata(`{"Metadata":[
		{"Type":"WordBoundary","Data":{"Offset":1000000,"Duration":2500000,"text":{"Text":"Hello","Length":5}}},
		{"Type":"SessionEnd","Data":{"Offset":0}}]}`)
	s.handleMetadata(`not json`)

	if len(s.boundaries) != 1 {
		t.Fatalf("got %d boundaries, want 1", len(s.boundaries))
	}
	b := s.boundaries[0]
	if b.Word != "Hello" || b.Offset != 100*time.Millisecond || b.Duration != 250*time.Millisecond {
		t.Errorf("boundary = %+v", b)
	}
}

func TestVoices(t *testing.T) {
	p := NewProvider(Config{}, tracker.New())
	voices, err := p.Voices(context.TODO())
	if err != nil {
		t.Fatalf("Voices failed: %v", err)
	}
	for _, locale := range []string{"en-IN", "hi-IN", "ta-IN", "te-IN"} {
		found := false
		for _, v := range voices {
			if v.Language == locale {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no voice for %s", locale)
		}
	}
}

func TestDefaultVoice(t *testing.T) {
	if got := DefaultVoice("hi-IN"); got != "hi-IN-SwaraNeural" {
		t.Errorf("DefaultVoice(hi-IN) = %q", got)
	}
	if got := DefaultVoice("xx-IN"); got != "en-IN-NeerjaNeural" {
		t.Errorf("DefaultVoice(xx-IN) = %q", got)
	}
}

func TestGenerateSecMSGec(t *testing.T) {
	p := NewProvider(Config{}, nil)
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	token := p.generateSecMSGec("token")
	if len(token) != 64 {
		t.Errorf("Expected token length 64, got %d", len(token))
	}
	if strings.ToUpper(token) != token {
		t.Error("token should be upper-case hex")
	}

	// Stable within a five minute window
	p.now = func() time.Time { return time.Unix(1700000000+60, 0) }
	if again := p.generateSecMSGec("token"); again != token {
		t.Error("token changed within the same window")
	}
}

func TestConfigValidate(t *testing.T) {
	full := Config{BaseURL: "wss://x", Origin: "o", UserAgent: "ua", TrustedClientToken: "t", SecMSGecVersion: "v"}
	if err := full.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	partial := full
	partial.UserAgent = ""
	if err := partial.Validate(); err == nil {
		t.Error("expected missing user agent to fail")
	}
	if NewProvider(partial, nil).Configured() {
		t.Error("Configured() should be false")
	}
}

// fakeService speaks just enough of the read-aloud protocol for one turn.
func fakeService(t *testing.T, audio []byte, words []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Sec-MS-GEC") == "" {
			http.Error(w, "missing token", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var ssml string
		for i := 0; i < 2; i++ {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.Contains(string(msg), "Path:ssml") {
				ssml = string(msg)
			}
		}
		if !strings.Contains(ssml, "<speak") {
			return
		}

		offset := int64(0)
		for _, word := range words {
			meta := `{"Metadata":[{"Type":"WordBoundary","Data":{"Offset":` +
				strconv.FormatInt(offset, 10) + `,"Duration":1000000,"text":{"Text":"` + word + `"}}}]}`
			_ = conn.WriteMessage(websocket.TextMessage, []byte("X-RequestId:1\r\nPath:audio.metadata\r\n\r\n"+meta))
			offset += 2000000
		}
		header := []byte("Path:audio\r\n")
		frame := append([]byte{0x00, byte(len(header))}, header...)
		frame = append(frame, audio...)
		_ = conn.WriteMessage(websocket.BinaryMessage, frame)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("X-RequestId:1\r\nPath:turn.end\r\n\r\n{}"))
	}))
}

func TestSynthesize_RoundTrip(t *testing.T) {
	audio := bytes.Repeat([]byte{0xFF}, 2048)
	srv := fakeService(t, audio, []string{"Red", "Fort"})
	defer srv.Close()

	tr := tracker.New()
	p := NewProvider(Config{
		BaseURL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		Origin:             "chrome-extension://test",
		UserAgent:          "test",
		TrustedClientToken: "token",
		SecMSGecVersion:    "1-0",
	}, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := filepath.Join(t.TempDir(), "clip")
	res, err := p.Synthesize(ctx, tts.Request{Text: "The Red Fort", Voice: "en-IN-NeerjaNeural", Rate: 0.9}, out)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.Path != out+".mp3" || res.Format != "mp3" {
		t.Errorf("result = %+v", res)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil || !bytes.Equal(data, audio) {
		t.Errorf("audio not written correctly: %v", err)
	}
	if len(res.Boundaries) != 2 {
		t.Fatalf("got %d boundaries, want 2", len(res.Boundaries))
	}
	if res.Boundaries[0].CharIndex != 4 || res.Boundaries[1].CharIndex != 8 {
		t.Errorf("char indices = %d, %d; want 4, 8", res.Boundaries[0].CharIndex, res.Boundaries[1].CharIndex)
	}
	if res.Boundaries[1].Offset != 200*time.Millisecond {
		t.Errorf("second offset = %v", res.Boundaries[1].Offset)
	}
	if s := tr.Snapshot()[providerName]; s.Success != 1 || s.Bytes != int64(len(audio)) {
		t.Errorf("tracker = %+v", s)
	}
}

func TestSynthesize_RequiresConfig(t *testing.T) {
	p := NewProvider(Config{}, nil)
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "x", Voice: "v"}, filepath.Join(t.TempDir(), "x"))
	if err == nil {
		t.Fatal("expected configuration error")
	}
	_, err = p.Synthesize(context.Background(), tts.Request{Text: "x"}, filepath.Join(t.TempDir(), "x"))
	if err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("expected voice error, got %v", err)
	}
}
