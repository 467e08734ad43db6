// Package sqlite provides a file backed token storage.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	_ "modernc.org/sqlite"

	"github.com/openkcm/session-client/pkg/tokenstore"
)

const DriverName = "sqlite"

var dbSystemName = attribute.String("db.system.name", "sqlite")

var _ = tokenstore.Storage(&Storage{})

type Storage struct {
	db    *sql.DB
	stats metric.Registration
	now   func() time.Time
}

// Open opens the database file at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Storage, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	stats, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(dbSystemName))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registering db stats metrics: %w", err)
	}

	storage := NewStorage(db)
	storage.stats = stats

	return storage, nil
}

// OpenDB opens the database file without touching the schema.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := otelsql.Open(DriverName, DSN(path), otelsql.WithAttributes(dbSystemName))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	return db, nil
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{
		db:  db,
		now: time.Now,
	}
}

func (s *Storage) Close() error {
	var err error
	if s.stats != nil {
		err = s.stats.Unregister()
	}

	return errors.Join(err, s.db.Close())
}

func (s *Storage) Load(ctx context.Context, keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM token_entries WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying token entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning token entry: %w", err)
		}

		values[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating token entries: %w", err)
	}

	return values, nil
}

func (s *Storage) Apply(ctx context.Context, set map[string]string, remove []string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	for _, key := range remove {
		if _, err = tx.ExecContext(ctx, `DELETE FROM token_entries WHERE key = ?`, key); err != nil {
			return fmt.Errorf("deleting token entry: %w", err)
		}
	}

	updatedAt := s.now().UnixMilli()
	for key, value := range set {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO token_entries (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, updatedAt)
		if err != nil {
			return fmt.Errorf("upserting token entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// DSN returns the data source name of the database file at path.
func DSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
