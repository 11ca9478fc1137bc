package authhandle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ssdt/authscan/pkg/jsonutil"
	"github.com/ssdt/authscan/pkg/session"
)

// SQLiteStore shares handles between processes using the same database
// file. Consumption is a single DELETE ... RETURNING, so a handle can be
// redeemed once even under concurrent requests.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the handle table in dbPath.
func NewSQLiteStore(dbPath string, ttl time.Duration) (*SQLiteStore, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	db, err := sql.Open("sqlite", session.DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("authhandle: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("authhandle: ping database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS auth_handles (
			handle      TEXT PRIMARY KEY,
			data        TEXT NOT NULL,
			expires_at  INTEGER NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("authhandle: create table: %w", err)
	}
	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, creds Credentials) (string, error) {
	if err := validate(creds); err != nil {
		return "", err
	}
	data, err := jsonutil.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("authhandle: marshal: %w", err)
	}
	h := newHandle()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_handles (handle, data, expires_at) VALUES (?, ?, ?)`,
		h, string(data), s.now().Add(s.ttl).UnixMilli(),
	); err != nil {
		return "", fmt.Errorf("authhandle: insert: %w", err)
	}
	return h, nil
}

func (s *SQLiteStore) Consume(ctx context.Context, handle string) (Credentials, error) {
	var (
		data      string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM auth_handles WHERE handle = ? RETURNING data, expires_at`, handle,
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, ErrHandleNotFound
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("authhandle: consume: %w", err)
	}
	if expired(time.UnixMilli(expiresAt), s.now()) {
		return Credentials{}, ErrHandleNotFound
	}
	var creds Credentials
	if err := jsonutil.Unmarshal([]byte(data), &creds); err != nil {
		return Credentials{}, fmt.Errorf("authhandle: unmarshal: %w", err)
	}
	return creds, nil
}

// Sweep deletes expired handles and returns how many were removed.
func (s *SQLiteStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_handles WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("authhandle: sweep: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
