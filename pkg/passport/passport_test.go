package passport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bharatvista/pkg/model"
)

type memStore struct {
	mu     sync.Mutex
	data   map[string]string
	writes int
	err    error
}

func newMemStore() *memStore { return &memStore{data: make(map[string]string)} }

func (m *memStore) GetState(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memStore) SetState(_ context.Context, key, val string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.writes++
	m.data[key] = val
	return nil
}

func (m *memStore) DeleteState(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) stored(t *testing.T) []model.Checkin {
	t.Helper()
	raw, ok := m.GetState(context.Background(), DefaultStorageKey)
	require.True(t, ok)
	var list []model.Checkin
	require.NoError(t, json.Unmarshal([]byte(raw), &list))
	return list
}

func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
}

func newTracker(st *memStore) *Tracker {
	tr := New(st, "")
	tr.now = fixedClock(time.Date(2026, 1, 26, 9, 0, 0, 0, time.UTC))
	tr.Load(context.Background())
	return tr
}

func TestCheckIn_InsertionOrder(t *testing.T) {
	st := newMemStore()
	tr := newTracker(st)
	ctx := context.Background()

	for _, id := range []string{"taj-mahal", "red-fort", "hampi"} {
		_, err := tr.CheckIn(ctx, id)
		require.NoError(t, err)
	}

	list := tr.List()
	require.Len(t, list, 3)
	assert.Equal(t, "taj-mahal", list[0].MonumentID)
	assert.Equal(t, "red-fort", list[1].MonumentID)
	assert.Equal(t, "hampi", list[2].MonumentID)
	assert.Less(t, list[0].Timestamp, list[1].Timestamp)
	assert.Equal(t, list, st.stored(t))
	assert.Equal(t, 3, tr.Count())
	assert.True(t, tr.Has("red-fort"))
	assert.False(t, tr.Has("qutub-minar"))
}

func TestCheckIn_DuplicateRejected(t *testing.T) {
	st := newMemStore()
	tr := newTracker(st)
	ctx := context.Background()

	_, err := tr.CheckIn(ctx, "taj-mahal")
	require.NoError(t, err)
	before, _ := st.GetState(ctx, DefaultStorageKey)
	writes := st.writes

	_, err = tr.CheckIn(ctx, "taj-mahal")
	assert.ErrorIs(t, err, ErrDuplicateCheckin)

	after, _ := st.GetState(ctx, DefaultStorageKey)
	assert.Equal(t, before, after, "store must be unchanged")
	assert.Equal(t, writes, st.writes)
	assert.Equal(t, 1, tr.Count())
}

func TestCheckIn_EmptyID(t *testing.T) {
	tr := newTracker(newMemStore())
	_, err := tr.CheckIn(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyMonumentID)
	assert.Zero(t, tr.Count())
}

func TestCheckIn_StoreFailureKeepsList(t *testing.T) {
	st := newMemStore()
	tr := newTracker(st)
	st.err = errors.New("disk full")

	_, err := tr.CheckIn(context.Background(), "hampi")
	require.Error(t, err)
	assert.False(t, tr.Has("hampi"))

	st.err = nil
	_, err = tr.CheckIn(context.Background(), "hampi")
	assert.NoError(t, err)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		want   []string
	}{
		{name: "Missing", want: nil},
		{name: "Empty", stored: "", want: nil},
		{name: "Corrupt", stored: "{not json", want: nil},
		{name: "WrongShape", stored: `{"monumentId":"x"}`, want: nil},
		{
			name:   "Valid",
			stored: `[{"monumentId":"konark","timestamp":1700000000000},{"monumentId":"hampi","timestamp":1700000060000}]`,
			want:   []string{"konark", "hampi"},
		},
		{
			name:   "DuplicatesCollapsed",
			stored: `[{"monumentId":"konark","timestamp":1},{"monumentId":"konark","timestamp":2},{"monumentId":"","timestamp":3}]`,
			want:   []string{"konark"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemStore()
			if tt.name != "Missing" {
				st.data[DefaultStorageKey] = tt.stored
			}
			tr := New(st, "")
			tr.Load(context.Background())

			var got []string
			for _, c := range tr.List() {
				got = append(got, c.MonumentID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCorruptListIsReplacedOnCheckIn(t *testing.T) {
	st := newMemStore()
	st.data[DefaultStorageKey] = "garbage"
	tr := newTracker(st)

	_, err := tr.CheckIn(context.Background(), "sun-temple")
	require.NoError(t, err)
	list := st.stored(t)
	require.Len(t, list, 1)
	assert.Equal(t, "sun-temple", list[0].MonumentID)
}

func TestTwoTrackers_LastWriteWins(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()
	a := newTracker(st)
	b := newTracker(st)

	_, err := a.CheckIn(ctx, "taj-mahal")
	require.NoError(t, err)
	_, err = b.CheckIn(ctx, "red-fort")
	require.NoError(t, err)

	// b never saw a's stamp, so its write replaces it
	list := st.stored(t)
	require.Len(t, list, 1)
	assert.Equal(t, "red-fort", list[0].MonumentID)

	// A fresh tracker sees only the last write
	c := newTracker(st)
	assert.False(t, c.Has("taj-mahal"))
	assert.True(t, c.Has("red-fort"))
}

func TestCustomKey(t *testing.T) {
	st := newMemStore()
	tr := New(st, "tour_stamps")
	tr.Load(context.Background())
	_, err := tr.CheckIn(context.Background(), "hampi")
	require.NoError(t, err)

	_, ok := st.GetState(context.Background(), "tour_stamps")
	assert.True(t, ok)
	_, ok = st.GetState(context.Background(), DefaultStorageKey)
	assert.False(t, ok)
}

func TestListIsACopy(t *testing.T) {
	tr := newTracker(newMemStore())
	_, err := tr.CheckIn(context.Background(), "hampi")
	require.NoError(t, err)

	list := tr.List()
	list[0].MonumentID = "mutated"
	assert.True(t, tr.Has("hampi"))
	assert.Equal(t, "hampi", tr.List()[0].MonumentID)
}
