package trader

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatebot/internal/store/gormstore"
)

func TestFileEventStoreLoadSince(t *testing.T) {
	store, err := NewFileEventStore(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	defer store.Close()

	base := time.Now().Truncate(time.Millisecond)
	for i, typ := range []EventType{EvtSignalBatch, EvtOrderResult, EvtRemoveTask} {
		require.NoError(t, store.Append(EventEnvelope{
			ID:        string(typ),
			Type:      typ,
			Payload:   json.RawMessage(`{}`),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Symbol:    "BTC_USDT",
		}))
	}

	all, err := store.LoadSince(time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	recent, err := store.LoadSince(base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, EvtOrderResult, recent[0].Type)

	require.NoError(t, store.Append(EventEnvelope{ID: "late", Type: EvtGateResult, CreatedAt: base.Add(time.Hour)}))
	all, err = store.LoadSince(time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestFileEventStoreTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	store, err := NewFileEventStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(EventEnvelope{ID: "a", Type: EvtRemoveTask, CreatedAt: time.Now()}))
	require.NoError(t, store.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"b","type":"rem`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	store, err = NewFileEventStore(path)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.LoadSince(time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestFileEventStoreCorruptMiddleFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	line, err := json.Marshal(EventEnvelope{ID: "ok", Type: EvtRemoveTask, CreatedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("not json\n"+string(line)+"\n"), 0o644))

	store, err := NewFileEventStore(path)
	require.NoError(t, err)
	defer store.Close()
	_, err = store.LoadSince(time.Time{})
	assert.ErrorContains(t, err, "line 1")
}

type memJournal struct {
	recs []gormstore.EventRecord
}

func (m *memJournal) AppendEvent(ctx context.Context, evt gormstore.EventRecord) error {
	m.recs = append(m.recs, evt)
	sort.SliceStable(m.recs, func(i, j int) bool { return m.recs[i].CreatedAt.Before(m.recs[j].CreatedAt) })
	return nil
}

func (m *memJournal) LoadEvents(ctx context.Context, since time.Time, limit int) ([]gormstore.EventRecord, error) {
	var out []gormstore.EventRecord
	for _, r := range m.recs {
		if !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func TestSQLiteEventStoreRoundTrip(t *testing.T) {
	j := &memJournal{}
	store := NewSQLiteEventStore(j)
	now := time.Now()

	require.NoError(t, store.Append(EventEnvelope{ID: "a", Type: EvtOrderResult, Payload: json.RawMessage(`{"action":"open"}`), CreatedAt: now, TaskID: "t1", Symbol: "ETH_USDT"}))
	require.NoError(t, store.Append(EventEnvelope{ID: "b", Type: EvtRemoveTask, CreatedAt: now.Add(-2 * time.Hour)}))

	got, err := store.LoadSince(now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TaskID)
	assert.Equal(t, EvtOrderResult, got[0].Type)
	assert.JSONEq(t, `{"action":"open"}`, string(got[0].Payload))
}
