package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazz-dev/statusrelay/internal/command"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS invocations (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id     INTEGER NOT NULL,
    username    TEXT    NOT NULL DEFAULT '',
    command     TEXT    NOT NULL,
    target      TEXT    NOT NULL DEFAULT '',
    status      TEXT    NOT NULL,
    endpoints   INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL,
    handled_at  TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invocations_status ON invocations(status);
`

// Invocation is a stored command invocation.
type Invocation struct {
	ID         int64     `json:"id"`
	ChatID     int64     `json:"chat_id"`
	User       string    `json:"user"`
	Command    string    `json:"command"`
	Target     string    `json:"target"`
	Status     string    `json:"status"`
	Endpoints  int       `json:"endpoints"`
	DurationMs int64     `json:"duration_ms"`
	HandledAt  time.Time `json:"handled_at"`
}

// DB wraps a SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	// Each new connection to ":memory:" would get its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertInvocation persists a handled command invocation.
func (d *DB) InsertInvocation(ctx context.Context, inv command.Invocation) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO invocations (chat_id, username, command, target, status, endpoints, duration_ms, handled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ChatID,
		inv.User,
		inv.Command,
		inv.Target,
		string(inv.Status),
		inv.Endpoints,
		inv.Duration.Milliseconds(),
		inv.HandledAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting invocation of %q: %w", inv.Command, err)
	}
	return nil
}

// RecentInvocations returns a page of invocations, newest first, plus the total count.
func (d *DB) RecentInvocations(ctx context.Context, limit, offset int) ([]Invocation, int, error) {
	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invocations`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting invocations: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, chat_id, username, command, target, status, endpoints, duration_ms, handled_at
		 FROM invocations ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying invocations: %w", err)
	}
	defer rows.Close()

	invs, err := scanInvocations(rows)
	if err != nil {
		return nil, 0, err
	}
	return invs, total, nil
}

// StatusCounts returns the number of invocations per status.
func (d *DB) StatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM invocations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting invocations by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}
	return counts, nil
}

func scanInvocations(rows *sql.Rows) ([]Invocation, error) {
	invs := []Invocation{}
	for rows.Next() {
		var inv Invocation
		var handledAt string
		err := rows.Scan(&inv.ID, &inv.ChatID, &inv.User, &inv.Command, &inv.Target,
			&inv.Status, &inv.Endpoints, &inv.DurationMs, &handledAt)
		if err != nil {
			return nil, fmt.Errorf("scanning invocation row: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, handledAt)
		if err != nil {
			return nil, fmt.Errorf("parsing handled_at %q: %w", handledAt, err)
		}
		inv.HandledAt = t
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invocation rows: %w", err)
	}
	return invs, nil
}
