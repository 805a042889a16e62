// Package store persists the journal of handled notifications. Durable
// order state lives in MoySklad; the journal exists for operators, who must
// watch it (or the metrics built from it) because the webhook boundary
// always answers 200.
package store

import (
	"context"
	"errors"

	"marketsync/internal/model"
)

// Store is the journal interface used by the router and the admin API.
type Store interface {
	// RecordEvent appends one handled notification and returns its id.
	RecordEvent(ctx context.Context, e model.JournalEntry) (string, error)
	// ListEvents returns entries matching the query plus a cursor for the
	// next page; an empty cursor means the listing is exhausted.
	ListEvents(ctx context.Context, q model.JournalQuery) ([]model.JournalEntry, string, error)
	// Ping reports backend health for the readiness endpoint.
	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")
