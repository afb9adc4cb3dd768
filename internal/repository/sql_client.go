package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// DetectDialect picks the SQL driver from a DSN. Anything that is not a
// postgres URL or key/value DSN is treated as a sqlite file path.
func DetectDialect(dsn string) Dialect {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return DialectPostgres
	}
	if strings.Contains(d, "host=") && strings.Contains(d, "dbname=") {
		return DialectPostgres
	}
	return DialectSQLite
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	k TEXT PRIMARY KEY,
	v BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
)`

const postgresSchema = `CREATE TABLE IF NOT EXISTS kv (
	k TEXT PRIMARY KEY,
	v BYTEA NOT NULL,
	expires_at BIGINT NOT NULL DEFAULT 0
)`

// SQLKV stores values in a single "kv" table. Both sqlite (3.35+) and
// postgres support the upsert and DELETE ... RETURNING forms used here.
type SQLKV struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// OpenSQLKV opens the database behind dsn, creates the table if needed and
// returns the KV. Close releases the connection pool.
func OpenSQLKV(ctx context.Context, dsn string) (*SQLKV, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("repository: database DSN must not be empty")
	}
	dialect := DetectDialect(dsn)
	if dialect == DialectSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("repository: create database directory: %w", err)
		}
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// a single writer avoids SQLITE_BUSY under concurrent Take calls
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: ping %s: %w", dialect, err)
	}

	kv, err := NewSQLKV(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := kv.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Debug("SQLKV opened", "dialect", dialect)
	return kv, nil
}

// NewSQLKV wraps an already opened database. The kv table must exist.
func NewSQLKV(db *sql.DB, dialect Dialect) (*SQLKV, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, fmt.Errorf("repository: unsupported dialect %q", dialect)
	}
	return &SQLKV{db: db, dialect: dialect, now: time.Now}, nil
}

func (s *SQLKV) Close() error {
	return s.db.Close()
}

func (s *SQLKV) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == DialectPostgres {
		schema = postgresSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("repository: create kv table: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLKV) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLKV) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT v FROM kv WHERE k = ? AND (expires_at = 0 OR expires_at > ?)`),
		key, s.now().Unix(),
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: Get: %w", err)
	}
	return v, nil
}

func (s *SQLKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO kv (k, v, expires_at) VALUES (?, ?, ?)
			ON CONFLICT (k) DO UPDATE SET v = excluded.v, expires_at = excluded.expires_at`),
		key, value, expiresAt(s.now(), ttl),
	)
	if err != nil {
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

// PutIfAbsent inserts, or replaces a row whose expiry has passed. A live row
// leaves RowsAffected at 0.
func (s *SQLKV) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO kv (k, v, expires_at) VALUES (?, ?, ?)
			ON CONFLICT (k) DO UPDATE SET v = excluded.v, expires_at = excluded.expires_at
			WHERE kv.expires_at <> 0 AND kv.expires_at <= ?`),
		key, value, expiresAt(now, ttl), now.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("repository: PutIfAbsent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repository: PutIfAbsent rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLKV) Take(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx,
		s.rebind(`DELETE FROM kv WHERE k = ? AND (expires_at = 0 OR expires_at > ?) RETURNING v`),
		key, s.now().Unix(),
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: Take: %w", err)
	}
	return v, nil
}

func (s *SQLKV) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM kv WHERE k = ?`), key); err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

// Sweep removes expired rows. SQL has no native TTL, so long-running
// processes call this periodically.
func (s *SQLKV) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM kv WHERE expires_at <> 0 AND expires_at <= ?`), s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("repository: Sweep: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
