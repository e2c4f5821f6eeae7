package loader

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatebot/internal/ratewindow"
)

func TestNewSettingsLoaderCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	l, err := NewSettingsLoader(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, DefaultRuntimeSettings(), l.Current())
}

func TestSettingsPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("take_profit_pct: 7.5\nrate_limits:\n  1m: 4\n"), 0o644))

	l, err := NewSettingsLoader(path)
	require.NoError(t, err)
	cur := l.Current()
	assert.Equal(t, 7.5, cur.TakeProfitPct)
	assert.Equal(t, DefaultRuntimeSettings().StopLossPct, cur.StopLossPct)

	limits, err := cur.Limits()
	require.NoError(t, err)
	assert.Equal(t, 4, limits[ratewindow.Minute])
}

func TestSettingsRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("take_proft_pct: 7.5\n"), 0o644))
	_, err := NewSettingsLoader(path)
	assert.Error(t, err)
}

func TestUpdatePersistsAndNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	l, err := NewSettingsLoader(path)
	require.NoError(t, err)

	var mu sync.Mutex
	var got []RuntimeSettings
	l.Subscribe(func(s RuntimeSettings) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	next := l.Current()
	next.MaxTotalOpenPositions = 7
	next.RateLimits = map[string]int{"1h": 20}
	require.NoError(t, l.Update(next))

	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].MaxTotalOpenPositions)
	mu.Unlock()

	reread, err := readSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 7, reread.MaxTotalOpenPositions)
	assert.Equal(t, 20, reread.RateLimits["1h"])
}

func TestUpdateRejectsInvalid(t *testing.T) {
	l, err := NewSettingsLoader(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)

	bad := l.Current()
	bad.MinEntryDelayMs, bad.MaxEntryDelayMs = 100, 10
	assert.Error(t, l.Update(bad))

	bad = l.Current()
	bad.RateLimits = map[string]int{"2m": 1}
	assert.Error(t, l.Update(bad))
	assert.Equal(t, DefaultRuntimeSettings(), l.Current())
}

func TestExternalEditIsPickedUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	l, err := NewSettingsLoader(path)
	require.NoError(t, err)

	changed := make(chan RuntimeSettings, 4)
	l.Subscribe(func(s RuntimeSettings) { changed <- s })

	require.NoError(t, os.WriteFile(path, []byte("max_total_open_positions: 9\n"), 0o644))

	select {
	case s := <-changed:
		assert.Equal(t, 9, s.MaxTotalOpenPositions)
	case <-time.After(3 * time.Second):
		t.Fatal("settings change was not observed")
	}
}
