// Package edgetts synthesizes narration with the Microsoft Edge read-aloud service.
package edgetts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bharatvista/pkg/tracker"
	"bharatvista/pkg/tts"
)

const providerName = "edge-tts"

// Config holds the connection settings of the read-aloud endpoint.
type Config struct {
	BaseURL            string
	Origin             string
	UserAgent          string
	TrustedClientToken string
	SecMSGecVersion    string
}

// ConfigFromEnv reads the connection settings from EDGE_TTS_* variables.
func ConfigFromEnv() Config {
	return Config{
		BaseURL:            os.Getenv("EDGE_TTS_BASE_URL"),
		Origin:             os.Getenv("EDGE_TTS_ORIGIN"),
		UserAgent:          os.Getenv("EDGE_TTS_USER_AGENT"),
		TrustedClientToken: os.Getenv("EDGE_TTS_TRUSTED_CLIENT_TOKEN"),
		SecMSGecVersion:    os.Getenv("EDGE_TTS_SEC_MS_GEC_VERSION"),
	}
}

// Validate reports the first missing setting.
func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return errors.New("EDGE_TTS_BASE_URL is required")
	case c.Origin == "":
		return errors.New("EDGE_TTS_ORIGIN is required")
	case c.UserAgent == "":
		return errors.New("EDGE_TTS_USER_AGENT is required")
	case c.TrustedClientToken == "":
		return errors.New("EDGE_TTS_TRUSTED_CLIENT_TOKEN is required")
	case c.SecMSGecVersion == "":
		return errors.New("EDGE_TTS_SEC_MS_GEC_VERSION is required")
	}
	return nil
}

// Provider implements tts.Provider for Microsoft Edge TTS.
type Provider struct {
	cfg     Config
	tracker *tracker.Tracker
	dialer  *websocket.Dialer
	now     func() time.Time
}

// NewProvider creates a new Edge TTS provider. t may be nil.
func NewProvider(cfg Config, t *tracker.Tracker) *Provider {
	return &Provider{cfg: cfg, tracker: t, dialer: websocket.DefaultDialer, now: time.Now}
}

// Configured reports whether all connection settings are present.
func (p *Provider) Configured() bool { return p.cfg.Validate() == nil }

// Synthesize generates an .mp3 file and collects word boundary metadata.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request, outputPath string) (*tts.Result, error) {
	if req.Voice == "" {
		return nil, fmt.Errorf("voice ID is required")
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	fullPath := outputPath
	if !strings.HasSuffix(strings.ToLower(fullPath), ".mp3") {
		fullPath += ".mp3"
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	conn, err := p.dial(ctx)
	if err != nil {
		p.trackFailure()
		return nil, err
	}
	defer conn.Close()

	if err := p.sendConfig(conn); err != nil {
		p.trackFailure()
		return nil, err
	}

	requestID := strings.ReplaceAll(uuid.New().String(), "-", "")
	if err := p.sendSSML(conn, req, requestID); err != nil {
		p.trackFailure()
		return nil, err
	}

	s := &stream{file: file}
	if err := s.consume(ctx, conn); err != nil {
		p.trackFailure()
		tts.Log("EDGETTS", req.Text, 0, err)
		return nil, err
	}
	if s.bytes == 0 {
		p.trackFailure()
		return nil, tts.NewFatalError(0, "edge-tts returned no audio")
	}

	if p.tracker != nil {
		p.tracker.TrackSuccess(providerName, s.bytes)
	}
	tts.AlignBoundaries(req.Text, s.boundaries)
	return &tts.Result{Path: fullPath, Format: "mp3", Boundaries: s.boundaries}, nil
}

func (p *Provider) trackFailure() {
	if p.tracker != nil {
		p.tracker.TrackFailure(providerName)
	}
}

func (p *Provider) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Origin", p.cfg.Origin)
	header.Set("Pragma", "no-cache")
	header.Set("Cache-Control", "no-cache")
	header.Set("User-Agent", p.cfg.UserAgent)
	header.Set("Accept-Language", "en-IN,en;q=0.9")

	muid := strings.ReplaceAll(uuid.New().String(), "-", "")
	header.Set("Cookie", fmt.Sprintf("muid=%s", muid))

	token := p.generateSecMSGec(p.cfg.TrustedClientToken)
	url := fmt.Sprintf("%s?TrustedClientToken=%s&Sec-MS-GEC=%s&Sec-MS-GEC-Version=%s",
		p.cfg.BaseURL, p.cfg.TrustedClientToken, token, p.cfg.SecMSGecVersion)

	var dialErr error
	for i := 0; i < 3; i++ {
		conn, resp, err := p.dialer.DialContext(ctx, url, header)
		if err == nil {
			return conn, nil
		}
		dialErr = err
		if resp != nil {
			slog.Warn("EdgeTTS: handshake failure", "status", resp.Status, "status_code", resp.StatusCode)
			if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
				return nil, tts.NewFatalError(resp.StatusCode, "edge-tts rejected the handshake")
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("websocket dial failed after retries: %w", dialErr)
}

// generateSecMSGec derives the rolling access token: Windows file time ticks rounded
// down to five minutes, concatenated with the client token and hashed.
func (p *Provider) generateSecMSGec(trustedClientToken string) string {
	ticks := p.now().Unix() + 11644473600
	ticks -= ticks % 300
	strToHash := fmt.Sprintf("%d0000000%s", ticks, trustedClientToken)

	hash := sha256.Sum256([]byte(strToHash))
	return strings.ToUpper(hex.EncodeToString(hash[:]))
}

func (p *Provider) sendConfig(conn *websocket.Conn) error {
	configMsg := "Content-Type:application/json; charset=utf-8\r\nPath:speech.config\r\n\r\n" +
		`{"context":{"synthesis":{"audio":{"metadataoptions":{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"true"},"outputFormat":"audio-24khz-48kbitrate-mono-mp3"}}}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(configMsg)); err != nil {
		return fmt.Errorf("failed to send speech.config: %w", err)
	}
	return nil
}

func (p *Provider) sendSSML(conn *websocket.Conn, req tts.Request, requestID string) error {
	ssml := buildSSML(req)
	tts.Log("EDGETTS", ssml, 0, nil)

	ssmlMsg := fmt.Sprintf("X-RequestId:%s\r\nContent-Type:application/ssml+xml\r\nPath:ssml\r\n\r\n%s", requestID, ssml)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(ssmlMsg)); err != nil {
		return fmt.Errorf("failed to send ssml: %w", err)
	}
	return nil
}

func buildSSML(req tts.Request) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	locale := req.Locale
	if locale == "" {
		locale = "en-IN"
	}
	return fmt.Sprintf("<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='%s'>"+
		"<voice name='%s'><prosody rate='%s'>%s</prosody></voice></speak>",
		locale, req.Voice, tts.RatePercent(req.Rate), replacer.Replace(req.Text))
}

// stream accumulates one turn of the service's response.
type stream struct {
	file       *os.File
	bytes      int
	boundaries []tts.WordBoundary
}

func (s *stream) consume(ctx context.Context, conn *websocket.Conn) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message failed: %w", err)
		}

		switch msgType {
		case websocket.TextMessage:
			headers, body := splitTextMessage(string(data))
			switch headers["Path"] {
			case "turn.end":
				return nil
			case "audio.metadata":
				s.handleMetadata(body)
			}
		case websocket.BinaryMessage:
			if err := s.handleBinaryMessage(data); err != nil {
				return err
			}
		}
	}
}

func splitTextMessage(msg string) (map[string]string, string) {
	head, body, _ := strings.Cut(msg, "\r\n\r\n")
	headers := make(map[string]string)
	for _, line := range strings.Split(head, "\r\n") {
		if k, v, ok := strings.Cut(line, ":"); ok {
			headers[k] = v
		}
	}
	return headers, body
}

type metadataMessage struct {
	Metadata []struct {
		Type string `json:"Type"`
		Data struct {
			Offset   int64 `json:"Offset"`
			Duration int64 `json:"Duration"`
			Text     struct {
				Text string `json:"Text"`
			} `json:"text"`
		} `json:"Data"`
	} `json:"Metadata"`
}

// handleMetadata records word boundaries. Offsets arrive in 100ns ticks.
func (s *stream) handleMetadata(body string) {
	var msg metadataMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		slog.Debug("EdgeTTS: unreadable metadata", "error", err)
		return
	}
	for _, m := range msg.Metadata {
		if m.Type != "WordBoundary" {
			continue
		}
		s.boundaries = append(s.boundaries, tts.WordBoundary{
			Offset:    time.Duration(m.Data.Offset) * 100,
			Duration:  time.Duration(m.Data.Duration) * 100,
			Word:      m.Data.Text.Text,
			CharIndex: -1,
		})
	}
}

func (s *stream) handleBinaryMessage(data []byte) error {
	if len(data) < 2 {
		return nil
	}
	headerLength := int(uint16(data[0])<<8 | uint16(data[1]))
	if len(data) < 2+headerLength {
		return nil
	}
	audioData := data[2+headerLength:]
	if len(audioData) > 0 {
		if _, err := s.file.Write(audioData); err != nil {
			return fmt.Errorf("write audio data failed: %w", err)
		}
		s.bytes += len(audioData)
	}
	return nil
}

// Voices returns the neural voices used for Indian narration.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	return []tts.Voice{
		{ID: "en-IN-NeerjaNeural", Name: "Neerja", Language: "en-IN", IsNeural: true},
		{ID: "en-IN-PrabhatNeural", Name: "Prabhat", Language: "en-IN", IsNeural: true},
		{ID: "hi-IN-SwaraNeural", Name: "Swara", Language: "hi-IN", IsNeural: true},
		{ID: "hi-IN-MadhurNeural", Name: "Madhur", Language: "hi-IN", IsNeural: true},
		{ID: "ta-IN-PallaviNeural", Name: "Pallavi", Language: "ta-IN", IsNeural: true},
		{ID: "ta-IN-ValluvarNeural", Name: "Valluvar", Language: "ta-IN", IsNeural: true},
		{ID: "te-IN-ShrutiNeural", Name: "Shruti", Language: "te-IN", IsNeural: true},
		{ID: "te-IN-MohanNeural", Name: "Mohan", Language: "te-IN", IsNeural: true},
		{ID: "bn-IN-TanishaaNeural", Name: "Tanishaa", Language: "bn-IN", IsNeural: true},
		{ID: "mr-IN-AarohiNeural", Name: "Aarohi", Language: "mr-IN", IsNeural: true},
		{ID: "kn-IN-SapnaNeural", Name: "Sapna", Language: "kn-IN", IsNeural: true},
		{ID: "ml-IN-SobhanaNeural", Name: "Sobhana", Language: "ml-IN", IsNeural: true},
		{ID: "gu-IN-DhwaniNeural", Name: "Dhwani", Language: "gu-IN", IsNeural: true},
	}, nil
}

// DefaultVoice picks the first voice for locale, falling back to Indian English.
func DefaultVoice(locale string) string {
	voices, _ := (&Provider{}).Voices(context.Background())
	for _, v := range voices {
		if strings.EqualFold(v.Language, locale) {
			return v.ID
		}
	}
	return "en-IN-NeerjaNeural"
}
