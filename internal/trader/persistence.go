package trader

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gatebot/internal/logger"
)

var journalLog = logger.Named("journal")

// EventStore journals the envelopes the actor handles.
type EventStore interface {
	Append(evt EventEnvelope) error

	// LoadSince returns journaled envelopes created at or after since, oldest first.
	LoadSince(since time.Time) ([]EventEnvelope, error)

	Close() error
}

// maxJournalLine bounds one envelope; signal batches are the largest payloads.
const maxJournalLine = 4 << 20

// FileEventStore appends one JSON envelope per line. It backs journal paths
// ending in .jsonl. A crash mid-write can leave a torn final line; LoadSince
// skips it instead of refusing to start.
type FileEventStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func NewFileEventStore(path string) (*FileEventStore, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &FileEventStore{path: path, f: f}, nil
}

func (s *FileEventStore) Append(evt EventEnvelope) error {
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", evt.Type, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("append to journal %s: %w", s.path, err)
	}
	return nil
}

func (s *FileEventStore) LoadSince(since time.Time) ([]EventEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// O_APPEND writes ignore the offset, but leave it at the end anyway.
	defer s.f.Seek(0, io.SeekEnd)

	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind journal %s: %w", s.path, err)
	}

	var (
		out  []EventEnvelope
		bad  error
		line int
	)
	sc := bufio.NewScanner(s.f)
	sc.Buffer(make([]byte, 0, 64<<10), maxJournalLine)
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		if bad != nil {
			// 坏行后面还有数据，说明不是尾部截断
			return nil, bad
		}
		var evt EventEnvelope
		if err := json.Unmarshal(raw, &evt); err != nil {
			bad = fmt.Errorf("journal %s line %d: %w", s.path, line, err)
			continue
		}
		if !evt.CreatedAt.Before(since) {
			out = append(out, evt)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read journal %s: %w", s.path, err)
	}
	if bad != nil {
		journalLog.Warnf("skipping torn tail: %v", bad)
	}
	return out, nil
}

func (s *FileEventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
