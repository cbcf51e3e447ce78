package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const principalsSchema = `
CREATE TABLE IF NOT EXISTS principals (
	id              TEXT PRIMARY KEY,
	role            TEXT NOT NULL,
	address         TEXT NOT NULL,
	private_key     TEXT NOT NULL,
	credential_hash TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
`

// SQLiteStore keeps principals in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the principal database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(principalsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create principals table: %w", err)
	}

	log.Infow("SQLite store initialized", "path", path)
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, role, address, private_key, credential_hash, created_at, updated_at
		FROM principals WHERE id = ?`, id)

	var (
		p                    Principal
		createdAt, updatedAt int64
	)
	err := row.Scan(&p.ID, &p.Role, &p.Address, &p.PrivateKey, &p.CredentialHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPrincipalNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get principal %s: %w", id, err)
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM principals WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check principal %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Put(ctx context.Context, p Principal) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principals (id, role, address, private_key, credential_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Role, p.Address, p.PrivateKey, p.CredentialHash, toMillis(p.CreatedAt), toMillis(p.CreatedAt))
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrPrincipalExists, p.ID)
		}
		return fmt.Errorf("insert principal %s: %w", p.ID, err)
	}
	log.Debugw("Stored principal", "id", p.ID, "role", p.Role)
	return nil
}

func (s *SQLiteStore) UpdateCredential(ctx context.Context, id string, credentialHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE principals SET credential_hash = ?, updated_at = ? WHERE id = ?`,
		credentialHash, toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update credential %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPrincipalNotFound, id)
	}
	return nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3lib.SQLITE_CONSTRAINT || code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

var _ PrincipalStore = (*SQLiteStore)(nil)
