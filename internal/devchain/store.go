// Package devchain is a local stand-in for the remote grid: an append-only
// SQLite event log with a cell table, an event feed that tails the log,
// and a simulated wallet.
package devchain

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/daviddao/megagrid/internal/chain"
	"github.com/daviddao/megagrid/internal/grid"
)

// Event kinds in the log.
const (
	KindSingle = "single"
	KindBatch  = "batch"
)

// ErrNotInitialized is returned when the database has no grid size.
var ErrNotInitialized = errors.New("devnet not initialized")

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cells (
	id    INTEGER PRIMARY KEY,
	color INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	ids        TEXT NOT NULL,
	colors     TEXT NOT NULL,
	sender     TEXT NOT NULL DEFAULT '',
	batch_id   TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_kind_seq ON events(kind, seq);
`

// Event is one entry of the log.
type Event struct {
	Seq       int64
	Kind      string
	IDs       []int
	Colors    []grid.Color
	Sender    string
	BatchID   string
	CreatedAt time.Time
}

// Store is the devnet database.
type Store struct {
	db   *sql.DB
	path string
}

func open(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Init creates (or reopens) a devnet at path with a size x size grid.
// The size of an existing devnet is kept.
func Init(path string, size int) (*Store, error) {
	if size <= 0 {
		return nil, fmt.Errorf("grid size %d: must be positive", size)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create devnet directory: %w", err)
	}
	s, err := open(path)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(`INSERT OR IGNORE INTO meta(key, value) VALUES ('grid_size', ?)`, strconv.Itoa(size))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("write grid size: %w", err)
	}
	return s, nil
}

// Open opens an existing devnet.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("devnet %s: %w", path, err)
	}
	return open(path)
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// GridDimension returns N.
func (s *Store) GridDimension(ctx context.Context) (int, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'grid_size'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotInitialized
	}
	if err != nil {
		return 0, fmt.Errorf("read grid size: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("grid size %q: %w", v, err)
	}
	return n, nil
}

// CellColor returns the confirmed color of id; never-painted cells are 0.
func (s *Store) CellColor(ctx context.Context, id int) (grid.Color, error) {
	if err := s.checkIDs(ctx, []int{id}); err != nil {
		return 0, err
	}
	var c int64
	err := s.db.QueryRowContext(ctx, `SELECT color FROM cells WHERE id = ?`, id).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cell %d: %w", id, err)
	}
	return grid.Normalize(c), nil
}

// ColorCell paints one cell and appends a single event.
func (s *Store) ColorCell(ctx context.Context, sender string, id int, color grid.Color) (string, error) {
	return s.append(ctx, KindSingle, sender, []int{id}, []grid.Color{color})
}

// ColorCells paints ids with the index-aligned colors and appends one batch
// event.
func (s *Store) ColorCells(ctx context.Context, sender string, ids []int, colors []grid.Color) (string, error) {
	return s.append(ctx, KindBatch, sender, ids, colors)
}

func (s *Store) append(ctx context.Context, kind, sender string, ids []int, colors []grid.Color) (string, error) {
	if err := (chain.BatchColored{IDs: ids, Colors: colors}).Validate(); err != nil {
		return "", err
	}
	if err := s.checkIDs(ctx, ids); err != nil {
		return "", err
	}
	norm := make([]grid.Color, len(colors))
	for i, c := range colors {
		norm[i] = grid.Normalize(int64(c))
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	colorsJSON, err := json.Marshal(norm)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cells(id, color) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET color = excluded.color`,
			id, int64(norm[i])); err != nil {
			return "", fmt.Errorf("paint cell %d: %w", id, err)
		}
	}
	batchID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events(kind, ids, colors, sender, batch_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		kind, string(idsJSON), string(colorsJSON), sender, batchID, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return batchID, nil
}

func (s *Store) checkIDs(ctx context.Context, ids []int) error {
	n, err := s.GridDimension(ctx)
	if err != nil {
		return err
	}
	d := grid.Dim(n)
	for _, id := range ids {
		if !d.Valid(id) {
			return fmt.Errorf("cell %d outside %dx%d grid", id, n, n)
		}
	}
	return nil
}

// Head returns the sequence number of the newest event, or 0.
func (s *Store) Head(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read head: %w", err)
	}
	return seq.Int64, nil
}

// EventsSince returns up to limit events of kind with seq > after, oldest
// first.
func (s *Store) EventsSince(ctx context.Context, kind string, after int64, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, ids, colors, sender, batch_id, created_at
		   FROM events WHERE kind = ? AND seq > ? ORDER BY seq LIMIT ?`,
		kind, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                   Event
			idsJSON, colorsJSON string
			created             string
		)
		if err := rows.Scan(&e.Seq, &e.Kind, &idsJSON, &colorsJSON, &e.Sender, &e.BatchID, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(idsJSON), &e.IDs); err != nil {
			return nil, fmt.Errorf("event %d ids: %w", e.Seq, err)
		}
		if err := json.Unmarshal([]byte(colorsJSON), &e.Colors); err != nil {
			return nil, fmt.Errorf("event %d colors: %w", e.Seq, err)
		}
		at, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("event %d created_at: %w", e.Seq, err)
		}
		e.CreatedAt = at
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEvents returns the number of events in the log.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}
