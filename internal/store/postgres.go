package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"marketsync/internal/model"
)

// Postgres keeps the journal in a single table; see db/migrations.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// MigrateDir applies every .sql file in dir in lexical order. Statements
// must be idempotent (IF NOT EXISTS); there is no version table.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(sqlBytes)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) RecordEvent(ctx context.Context, e model.JournalEntry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	receivedAt := time.Now().UTC()
	if e.ReceivedAt != "" {
		if t, err := time.Parse(time.RFC3339, e.ReceivedAt); err == nil {
			receivedAt = t
		}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO journal_events (id, external_number, order_id, notification_type, order_status, transition, outcome, entity_id, error, received_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.ExternalNumber, e.OrderID, e.NotificationType, nullIfEmpty(e.OrderStatus),
		e.Transition, e.Outcome, nullIfEmpty(e.EntityID), nullIfEmpty(e.Error), receivedAt)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

func (p *Postgres) ListEvents(ctx context.Context, q model.JournalQuery) ([]model.JournalEntry, string, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	where := []string{"1=1"}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", placeholder(len(args)), 1))
	}
	if q.ExternalNumber != "" {
		add("external_number = ?", q.ExternalNumber)
	}
	if q.Transition != "" {
		add("transition = ?", q.Transition)
	}
	if q.Outcome != "" {
		add("outcome = ?", q.Outcome)
	}
	if q.Cursor != "" {
		add("(received_at, id::text) < (SELECT received_at, id::text FROM journal_events WHERE id::text = ?)", q.Cursor)
	}
	args = append(args, limit)
	query := `SELECT id::text, external_number, order_id, notification_type, COALESCE(order_status,''), transition, outcome, COALESCE(entity_id,''), COALESCE(error,''), received_at
		FROM journal_events WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY received_at DESC, id::text DESC LIMIT ` + placeholder(len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.JournalEntry{}
	for rows.Next() {
		var e model.JournalEntry
		var ts time.Time
		if err := rows.Scan(&e.ID, &e.ExternalNumber, &e.OrderID, &e.NotificationType, &e.OrderStatus, &e.Transition, &e.Outcome, &e.EntityID, &e.Error, &ts); err != nil {
			return nil, "", err
		}
		e.ReceivedAt = ts.UTC().Format(time.RFC3339)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
