// Package sqlstore persists workflow versions, triggers and the event log in
// Postgres or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Triglit/flowgraph/internal/config"
)

// Dialect selects driver name, placeholders and column types.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a SQL-backed trigger collection, version store and event sink.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open connects with the given driver and DSN and creates the schema.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	switch dialect {
	case Postgres, SQLite:
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// in-memory databases are per connection
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dialect, err)
	}

	s, err := New(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and creates the schema.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// PostgresDSNFromEnv builds a connection string from the PG* environment
// variables. The password is resolved with the *_FILE convention.
func PostgresDSNFromEnv() (string, error) {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "flowgraph")
	dbname := getEnv("PGDATABASE", "flowgraph")
	sslmode := getEnv("PGSSLMODE", "disable")

	password, err := config.ResolveSecret("PGPASSWORD")
	if err != nil {
		return "", err
	}

	if password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode), nil
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		host, port, user, dbname, sslmode), nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (s *Store) initSchema(ctx context.Context) error {
	jsonType, serial, boolTrue, boolFalse := "JSONB", "BIGSERIAL PRIMARY KEY", "TRUE", "FALSE"
	if s.dialect == SQLite {
		jsonType, serial, boolTrue, boolFalse = "TEXT", "INTEGER PRIMARY KEY AUTOINCREMENT", "1", "0"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflow_versions (
			id           TEXT PRIMARY KEY,
			workflow_id  TEXT NOT NULL,
			version      INTEGER NOT NULL,
			nodes        ` + jsonType + ` NOT NULL,
			edges        ` + jsonType + ` NOT NULL,
			is_active    BOOLEAN NOT NULL DEFAULT ` + boolFalse + `,
			created_at   TEXT NOT NULL,
			published_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_versions_workflow ON workflow_versions(workflow_id)`,
		`CREATE TABLE IF NOT EXISTS triggers (
			id                  TEXT PRIMARY KEY,
			workflow_version_id TEXT NOT NULL,
			type                TEXT NOT NULL,
			name                TEXT NOT NULL,
			config              ` + jsonType + `,
			is_active           BOOLEAN NOT NULL DEFAULT ` + boolTrue + `,
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_triggers_version ON triggers(workflow_version_id)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id    ` + serial + `,
			ts          TEXT NOT NULL,
			level       TEXT NOT NULL,
			event       TEXT NOT NULL,
			msg         TEXT,
			fields      ` + jsonType + `,
			workflow_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_workflow_id ON events(workflow_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ping checks the connection. Used by the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
