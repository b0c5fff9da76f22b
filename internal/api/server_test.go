package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bharatvista/pkg/catalogue"
	"bharatvista/pkg/config"
	"bharatvista/pkg/model"
	"bharatvista/pkg/narration"
	"bharatvista/pkg/passport"
	"bharatvista/pkg/store"
	"bharatvista/pkg/tracker"
)

type mockStore struct {
	mu    sync.Mutex
	state map[string]string
	recs  []store.NarrationRecord
}

func (m *mockStore) GetState(ctx context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.state[key]
	return val, ok
}

func (m *mockStore) SetState(ctx context.Context, key, val string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		m.state = make(map[string]string)
	}
	m.state[key] = val
	return nil
}

func (m *mockStore) DeleteState(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, key)
	return nil
}

func (m *mockStore) SaveNarration(ctx context.Context, rec *store.NarrationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append([]store.NarrationRecord{*rec}, m.recs...)
	return nil
}

func (m *mockStore) RecentNarrations(ctx context.Context, since time.Time, limit int) ([]store.NarrationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.NarrationRecord(nil), m.recs...), nil
}

type mockHandle struct {
	u narration.Utterance
}

func (h *mockHandle) Pause()            {}
func (h *mockHandle) Resume()           {}
func (h *mockHandle) Cancel()           {}
func (h *mockHandle) SetVolume(float64) {}

type mockSpeech struct {
	mu      sync.Mutex
	handles []*mockHandle
}

func (m *mockSpeech) Available() bool { return true }

func (m *mockSpeech) Speak(_ context.Context, u narration.Utterance) (narration.SpeechHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := &mockHandle{u: u}
	m.handles = append(m.handles, h)
	return h, nil
}

func (m *mockSpeech) Voices(context.Context) ([]narration.Voice, error) {
	return []narration.Voice{{ID: "hi-IN-SwaraNeural", Name: "Swara", Locale: "hi-IN"}}, nil
}

func (m *mockSpeech) last() *mockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[len(m.handles)-1]
}

type testEnv struct {
	srv      *httptest.Server
	st       *mockStore
	speech   *mockSpeech
	registry *narration.Registry
	cfg      *config.UnifiedProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvTTL(t, 0)
}

func newTestEnvTTL(t *testing.T, sessionTTL time.Duration) *testEnv {
	t.Helper()
	cat, err := catalogue.Load()
	require.NoError(t, err)

	st := &mockStore{}
	sp := &mockSpeech{}
	cfg := config.NewProvider(config.DefaultConfig(), st)
	reg := narration.NewRegistry(cat, func() narration.Options {
		ctx := context.Background()
		return narration.Options{
			Speech:   sp,
			Volume:   cfg.Volume(ctx),
			Muted:    cfg.Muted(ctx),
			Language: cfg.PreferredLanguage(ctx),
		}
	}, sessionTTL)
	t.Cleanup(reg.CloseAll)

	tr := passport.New(st, "")
	tr.Load(context.Background())

	srv := httptest.NewServer(NewServer("", Handlers{
		Monuments: NewMonumentHandler(cat, 50),
		Narration: NewNarrationHandler(reg, cfg, st, sp),
		Passport:  NewPassportHandler(tr, cat),
		Config:    NewConfigHandler(cfg),
		Stats:     NewStatsHandler(tracker.New(), reg.Len),
	}, nil).Handler)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, st: st, speech: sp, registry: reg, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", string(body))

	code, body = env.do(t, "GET", "/api/version", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"version"`)
}

func TestMonumentRoutes(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		path     string
		wantCode int
		check    func(t *testing.T, body []byte)
	}{
		{
			name: "SearchIsCaseInsensitive", path: "/api/monuments?q=TAJ", wantCode: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				ms := decode[[]model.Monument](t, body)
				require.Len(t, ms, 1)
				assert.Equal(t, "taj-mahal", ms[0].ID)
			},
		},
		{
			name: "StateFilter", path: "/api/monuments?state=Delhi", wantCode: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				for _, m := range decode[[]model.Monument](t, body) {
					assert.Equal(t, "Delhi", m.State)
				}
			},
		},
		{name: "BadCategory", path: "/api/monuments?category=castle", wantCode: http.StatusBadRequest},
		{
			name: "Get", path: "/api/monuments/red-fort", wantCode: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				assert.Equal(t, "Red Fort", decode[model.Monument](t, body).Name)
			},
		},
		{name: "NotFound", path: "/api/monuments/atlantis", wantCode: http.StatusNotFound},
		{
			name: "NearbyExcludesSelf", path: "/api/monuments/red-fort/nearby?radius_km=30", wantCode: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				ms := decode[[]model.Monument](t, body)
				require.NotEmpty(t, ms)
				for _, m := range ms {
					assert.NotEqual(t, "red-fort", m.ID)
				}
			},
		},
		{name: "NearbyBadRadius", path: "/api/monuments/red-fort/nearby?radius_km=-1", wantCode: http.StatusBadRequest},
		{
			name: "StateWithMonuments", path: "/api/states/delhi", wantCode: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				s := decode[StateResponse](t, body)
				assert.Equal(t, "Delhi", s.Name)
				assert.Len(t, s.Monuments, s.MonumentCount)
			},
		},
		{name: "StateNotFound", path: "/api/states/atlantis", wantCode: http.StatusNotFound},
		{
			name: "SearchFilters", path: "/api/search/states", wantCode: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				names := decode[[]string](t, body)
				require.NotEmpty(t, names)
				assert.Equal(t, catalogue.AllStates, names[0])
			},
		},
		{
			name: "Guide", path: "/api/monuments/taj-mahal/guide", wantCode: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				assert.Contains(t, decode[GuideResponse](t, body).Answer, "Taj Mahal")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := env.do(t, "GET", tt.path, nil)
			require.Equal(t, tt.wantCode, code, string(body))
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestGuideQuestion(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, "POST", "/api/monuments/taj-mahal/guide", GuideRequest{Question: "Where is it?"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, decode[GuideResponse](t, body).Answer, "Agra, Uttar Pradesh")

	code, _ = env.do(t, "POST", "/api/monuments/taj-mahal/guide", GuideRequest{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestNarrationSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, "POST", "/api/narration/sessions", OpenRequest{MonumentID: "atlantis"})
	assert.Equal(t, http.StatusNotFound, code)

	code, body := env.do(t, "POST", "/api/narration/sessions", OpenRequest{MonumentID: "taj-mahal"})
	require.Equal(t, http.StatusCreated, code, string(body))
	snap := decode[narration.Snapshot](t, body)
	require.NotEmpty(t, snap.SessionID)
	assert.Equal(t, narration.ModeSynthesizedSpeech, snap.Mode)
	assert.Equal(t, narration.StateIdle, snap.State)
	assert.Equal(t, []string{"default", "hi", "ta", "te"}, snap.Languages)
	base := "/api/narration/sessions/" + snap.SessionID

	code, body = env.do(t, "POST", base+"/control", ControlRequest{Action: "play"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, narration.StatePlaying, decode[narration.Snapshot](t, body).State)

	// Speech cannot seek; the request succeeds and progress is untouched
	code, body = env.do(t, "POST", base+"/control", ControlRequest{Action: "seek", Percent: 60})
	require.Equal(t, http.StatusOK, code)
	assert.Zero(t, decode[narration.Snapshot](t, body).Progress)

	code, _ = env.do(t, "POST", base+"/control", ControlRequest{Action: "rewind"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, "POST", base+"/language", LanguageRequest{Language: "hi"})
	require.Equal(t, http.StatusOK, code)
	snap = decode[narration.Snapshot](t, body)
	assert.Equal(t, "hi", snap.Language)
	assert.False(t, snap.IsFallback)
	assert.Equal(t, "hi-IN", env.speech.last().u.Lang)
	assert.Equal(t, "hi", env.cfg.PreferredLanguage(context.Background()))

	code, body = env.do(t, "GET", base+"/text", nil)
	require.Equal(t, http.StatusOK, code)
	text := decode[TextResponse](t, body)
	assert.Equal(t, "Hindi", text.Info.Name)
	assert.True(t, strings.HasPrefix(text.Text, "ताजमहल"))

	vol := 0.4
	code, body = env.do(t, "POST", base+"/volume", VolumeRequest{Volume: &vol})
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 0.4, decode[narration.Snapshot](t, body).Volume, 1e-9)
	assert.InDelta(t, 0.4, env.cfg.Volume(context.Background()), 1e-9)

	bad := 1.5
	code, _ = env.do(t, "POST", base+"/volume", VolumeRequest{Volume: &bad})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, "DELETE", base, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = env.do(t, "GET", base, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = env.do(t, "DELETE", base, nil)
	assert.Equal(t, http.StatusNotFound, code)

	// The abandoned narration was recorded
	code, body = env.do(t, "GET", "/api/narration/history", nil)
	require.Equal(t, http.StatusOK, code)
	recs := decode[[]store.NarrationRecord](t, body)
	require.Len(t, recs, 1)
	assert.Equal(t, "taj-mahal", recs[0].MonumentID)
	assert.False(t, recs[0].Completed)
}

func TestNarrationVoices(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do(t, "GET", "/api/narration/voices", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "hi-IN-SwaraNeural")
	assert.Contains(t, string(body), `"available":true`)
}

func TestNarrationWebsocket(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do(t, "POST", "/api/narration/sessions", OpenRequest{MonumentID: "red-fort"})
	require.Equal(t, http.StatusCreated, code)
	id := decode[narration.Snapshot](t, body).SessionID

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/narration/sessions/" + id + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snap narration.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, id, snap.SessionID)
	assert.Equal(t, narration.StateIdle, snap.State)

	require.NoError(t, conn.WriteJSON(ControlRequest{Action: "play"}))
	for snap.State != narration.StatePlaying {
		require.NoError(t, conn.ReadJSON(&snap))
	}

	// Finishing the utterance is pushed as well
	env.speech.last().u.OnEnd()
	for snap.State != narration.StateCompleted {
		require.NoError(t, conn.ReadJSON(&snap))
	}
	assert.Equal(t, 100.0, snap.Progress)

	// Teardown closes the stream
	require.True(t, env.registry.Close(id))
	for !snap.Closed {
		if err := conn.ReadJSON(&snap); err != nil {
			break
		}
	}
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestNarrationWebsocket_KeepsSessionAlive(t *testing.T) {
	env := newTestEnvTTL(t, 300*time.Millisecond)
	code, body := env.do(t, "POST", "/api/narration/sessions", OpenRequest{MonumentID: "red-fort"})
	require.Equal(t, http.StatusCreated, code)
	id := decode[narration.Snapshot](t, body).SessionID

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/narration/sessions/" + id + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var snap narration.Snapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&snap))

	// Controls only arrive over the websocket, for several idle periods.
	deadline := time.Now().Add(2500 * time.Millisecond)
	for time.Now().Before(deadline) {
		require.NoError(t, conn.WriteJSON(ControlRequest{Action: "toggle"}))
		time.Sleep(250 * time.Millisecond)
	}
	s, err := env.registry.Get(id)
	require.NoError(t, err, "session expired while its view was connected")
	assert.False(t, s.Closed())

	// Once the view disconnects, the idle timeout applies again.
	require.NoError(t, conn.Close())
	require.Eventually(t, s.Closed, 5*time.Second, 50*time.Millisecond)
}

func TestWebsocketUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, "GET", "/api/narration/sessions/nope/ws", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPassportRoutes(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, "POST", "/api/passport/checkins", CheckInRequest{MonumentID: "charminar"})
	require.Equal(t, http.StatusCreated, code, string(body))
	assert.Equal(t, "charminar", decode[model.Checkin](t, body).MonumentID)

	stored, _ := env.st.GetState(context.Background(), passport.DefaultStorageKey)

	code, _ = env.do(t, "POST", "/api/passport/checkins", CheckInRequest{MonumentID: "charminar"})
	assert.Equal(t, http.StatusConflict, code)
	after, _ := env.st.GetState(context.Background(), passport.DefaultStorageKey)
	assert.Equal(t, stored, after)

	code, _ = env.do(t, "POST", "/api/passport/checkins", CheckInRequest{MonumentID: "atlantis"})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = env.do(t, "POST", "/api/passport/checkins", CheckInRequest{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, "GET", "/api/passport", nil)
	require.Equal(t, http.StatusOK, code)
	p := decode[PassportResponse](t, body)
	assert.Equal(t, 1, p.Count)

	code, body = env.do(t, "GET", "/api/passport/checkins/charminar", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[CheckInStatus](t, body).CheckedIn)
}

func TestConfigRoutes(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, "GET", "/api/config", nil)
	require.Equal(t, http.StatusOK, code)
	cfg := decode[ConfigResponse](t, body)
	assert.InDelta(t, 0.8, cfg.Volume, 1e-9)
	assert.Equal(t, "default", cfg.PreferredLanguage)
	assert.Equal(t, "edge-tts", cfg.SpeechEngine)

	muted, lang := true, "ta"
	code, body = env.do(t, "PUT", "/api/config", ConfigRequest{Muted: &muted, PreferredLanguage: &lang})
	require.Equal(t, http.StatusOK, code)
	cfg = decode[ConfigResponse](t, body)
	assert.True(t, cfg.Muted)
	assert.Equal(t, "ta", cfg.PreferredLanguage)
	assert.Equal(t, "Tamil", cfg.Language.Name)

	// New sessions pick up persisted preferences
	code, body = env.do(t, "POST", "/api/narration/sessions", OpenRequest{MonumentID: "taj-mahal"})
	require.Equal(t, http.StatusCreated, code)
	snap := decode[narration.Snapshot](t, body)
	assert.Equal(t, "ta", snap.Language)
	assert.True(t, snap.Muted)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.do(t, "POST", "/api/narration/sessions", OpenRequest{MonumentID: "taj-mahal"})

	code, body := env.do(t, "GET", "/api/stats", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, decode[StatsResponse](t, body).ActiveSessions)
}
