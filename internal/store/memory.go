package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketsync/internal/model"
)

// Memory is the in-process journal used when DATABASE_URL is unset. It
// keeps a bounded window of recent entries; the journal is an operational
// aid, not a system of record.
type Memory struct {
	mu      sync.Mutex
	entries []model.JournalEntry
	max     int
}

func NewMemory() *Memory {
	return &Memory{max: 10000}
}

func (m *Memory) RecordEvent(_ context.Context, e model.JournalEntry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ReceivedAt == "" {
		e.ReceivedAt = time.Now().UTC().Format(time.RFC3339)
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	if len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
	m.mu.Unlock()
	return e.ID, nil
}

func (m *Memory) ListEvents(_ context.Context, q model.JournalQuery) ([]model.JournalEntry, string, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Newest first; the cursor is the id of the last entry returned.
	out := []model.JournalEntry{}
	started := q.Cursor == ""
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if !started {
			if e.ID == q.Cursor {
				started = true
			}
			continue
		}
		if q.ExternalNumber != "" && e.ExternalNumber != q.ExternalNumber {
			continue
		}
		if q.Transition != "" && e.Transition != q.Transition {
			continue
		}
		if q.Outcome != "" && e.Outcome != q.Outcome {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
