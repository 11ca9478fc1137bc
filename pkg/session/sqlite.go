package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ssdt/authscan/pkg/jsonutil"
)

// SQLiteStore implements Store using SQLite via modernc.org/sqlite (pure Go).
// Several processes may share one database file; Update runs inside an
// immediate transaction so concurrent writers serialise.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath. Use ":memory:"
// for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("session: open database: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and turns the
	// read-modify-write in Update into a critical section for this process.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: ping database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS scan_sessions (
			id          TEXT PRIMARY KEY,
			owner_id    TEXT NOT NULL,
			status      TEXT NOT NULL,
			data        TEXT NOT NULL,
			started_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_scan_sessions_owner ON scan_sessions(owner_id, updated_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// DSN turns a database path into a modernc.org/sqlite connection string
// with a busy timeout and immediate transactions.
func DSN(dbPath string) string {
	if dbPath == ":memory:" || strings.Contains(dbPath, "?") {
		return dbPath
	}
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// Claim inserts s, or replaces a finished session with the same id. A
// running session is left alone and returned.
func (s *SQLiteStore) Claim(ctx context.Context, sess *Session) (*Session, bool, error) {
	c := sess.Clone()
	c.UpdatedAt = s.now().UTC()
	data, err := jsonutil.Marshal(c)
	if err != nil {
		return nil, false, fmt.Errorf("session: marshal: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_sessions (id, owner_id, status, data, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id   = excluded.owner_id,
			status     = excluded.status,
			data       = excluded.data,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at
		WHERE scan_sessions.status <> ?
	`,
		c.ScanID, c.OwnerID, string(c.Status), string(data),
		c.StartedAt.UnixMilli(), c.UpdatedAt.UnixMilli(),
		string(StatusRunning),
	)
	if err != nil {
		return nil, false, fmt.Errorf("session: claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("session: claim: %w", err)
	}
	if n == 0 {
		cur, err := s.Get(ctx, c.ScanID)
		return cur, false, err
	}
	return c, true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, scanID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM scan_sessions WHERE id = ?`, scanID)
	return scanSession(row)
}

// Update reads, mutates and writes the session in one transaction.
func (s *SQLiteStore) Update(ctx context.Context, scanID string, fn UpdateFunc) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("session: begin: %w", err)
	}
	defer tx.Rollback()

	cur, err := scanSession(tx.QueryRowContext(ctx, `SELECT data FROM scan_sessions WHERE id = ?`, scanID))
	if err != nil {
		return nil, err
	}
	if err := fn(cur); err != nil {
		return nil, err
	}
	cur.UpdatedAt = s.now().UTC()

	data, err := jsonutil.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("session: marshal: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE scan_sessions SET status = ?, data = ?, updated_at = ? WHERE id = ?`,
		string(cur.Status), string(data), cur.UpdatedAt.UnixMilli(), scanID,
	); err != nil {
		return nil, fmt.Errorf("session: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("session: commit: %w", err)
	}
	return cur, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, scanID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scan_sessions WHERE id = ?`, scanID); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, ownerID string) ([]*Session, error) {
	query := `SELECT data FROM scan_sessions ORDER BY updated_at DESC`
	var args []any
	if ownerID != "" {
		query = `SELECT data FROM scan_sessions WHERE owner_id = ? ORDER BY updated_at DESC`
		args = append(args, ownerID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: iterate rows: %w", err)
	}
	return out, nil
}

// Cleanup deletes finished sessions not updated within maxAge and returns
// how many were removed. Running sessions are never deleted.
func (s *SQLiteStore) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scan_sessions WHERE status <> ? AND updated_at < ?`,
		string(StatusRunning), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("session: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: scan row: %w", err)
	}
	var sess Session
	if err := jsonutil.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &sess, nil
}
