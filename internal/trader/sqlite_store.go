package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gatebot/internal/store/gormstore"
)

// Journal is the part of the gorm store used for event journaling.
type Journal interface {
	AppendEvent(ctx context.Context, evt gormstore.EventRecord) error
	LoadEvents(ctx context.Context, since time.Time, limit int) ([]gormstore.EventRecord, error)
}

// SQLiteEventStore implements EventStore on the shared sqlite database.
type SQLiteEventStore struct {
	db Journal
}

func NewSQLiteEventStore(db Journal) *SQLiteEventStore {
	return &SQLiteEventStore{db: db}
}

func (s *SQLiteEventStore) Append(evt EventEnvelope) error {
	if s.db == nil {
		return fmt.Errorf("sqlite store: database is nil")
	}
	rec := gormstore.EventRecord{
		ID:        evt.ID,
		Type:      string(evt.Type),
		Payload:   []byte(evt.Payload),
		CreatedAt: evt.CreatedAt,
		TaskID:    evt.TaskID,
		Symbol:    evt.Symbol,
	}
	return s.db.AppendEvent(context.Background(), rec)
}

func (s *SQLiteEventStore) LoadSince(since time.Time) ([]EventEnvelope, error) {
	if s.db == nil {
		return nil, fmt.Errorf("sqlite store: database is nil")
	}

	ctx := context.Background()
	const limit = 1000
	var out []EventEnvelope
	seen := make(map[string]struct{})
	for {
		recs, err := s.db.LoadEvents(ctx, since, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to load events from sqlite: %w", err)
		}
		added := 0
		for _, r := range recs {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			added++
			out = append(out, EventEnvelope{
				ID:        r.ID,
				Type:      EventType(r.Type),
				Payload:   json.RawMessage(r.Payload),
				CreatedAt: r.CreatedAt,
				TaskID:    r.TaskID,
				Symbol:    r.Symbol,
			})
		}
		if len(recs) < limit || added == 0 {
			break
		}
		since = recs[len(recs)-1].CreatedAt
	}
	return out, nil
}

// Close is a no-op; the database is owned by the app.
func (s *SQLiteEventStore) Close() error {
	return nil
}
