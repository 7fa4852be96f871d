package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Hours []int `json:"hours"`
}

func TestFile_RoundTripAndExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC))
	c := NewFile(t.TempDir(), 30*time.Minute, clock, nil)

	var got payload
	assert.False(t, c.Get("met", 63.825, 20.263, &got), "empty cache misses")

	c.Set("met", 63.825, 20.263, payload{Hours: []int{1, 2, 3}})
	require.True(t, c.Get("met", 63.825, 20.263, &got))
	assert.Equal(t, []int{1, 2, 3}, got.Hours)

	clock.Advance(29 * time.Minute)
	assert.True(t, c.Get("met", 63.825, 20.263, &got))

	clock.Advance(2 * time.Minute)
	assert.False(t, c.Get("met", 63.825, 20.263, &got), "entry older than ttl is ignored")
}

func TestFile_PathRoundsCoordinates(t *testing.T) {
	dir := t.TempDir()
	c := NewFile(dir, time.Minute, clockwork.NewFakeClock(), nil)
	assert.Equal(t, filepath.Join(dir, "smhi_63.825_20.263.json"), c.Path("smhi", 63.82512, 20.26288))
}

func TestFile_EnvelopeFormat(t *testing.T) {
	at := time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC)
	c := NewFile(t.TempDir(), time.Hour, clockwork.NewFakeClockAt(at), nil)
	c.Set("openmeteo", 1, 2, map[string]int{"a": 1})

	b, err := os.ReadFile(c.Path("openmeteo", 1, 2))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.JSONEq(t, `"2025-01-15T18:00:00Z"`, string(raw["_fetchedAt"]))
	assert.JSONEq(t, `{"a":1}`, string(raw["data"]))
}

func TestFile_CorruptEntryIsMiss(t *testing.T) {
	c := NewFile(t.TempDir(), time.Hour, clockwork.NewFakeClock(), nil)
	require.NoError(t, os.WriteFile(c.Path("met", 0, 0), []byte("{not json"), 0o644))

	var got payload
	assert.False(t, c.Get("met", 0, 0, &got))
}

func TestFile_UnwritableDirNeverFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(dir, nil, 0o644))

	c := NewFile(filepath.Join(dir, "sub"), time.Hour, clockwork.NewFakeClock(), nil)
	c.Set("met", 0, 0, payload{})
	var got payload
	assert.False(t, c.Get("met", 0, 0, &got))
}

func TestMemo(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMemo[int](10*time.Minute, clock)

	_, ok := m.Get()
	assert.False(t, ok)

	m.Set(7)
	v, ok := m.Get()
	require.True(t, ok)
	assert.Equal(t, 7, v)

	clock.Advance(10 * time.Minute)
	_, ok = m.Get()
	assert.False(t, ok, "expired")

	m.Set(8)
	m.Invalidate()
	_, ok = m.Get()
	assert.False(t, ok, "invalidated")
}
