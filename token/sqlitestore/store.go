// Package sqlitestore persists token sets in a SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-gateway/token"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const DefaultNamespace = "default"

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Open opens the database at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", dsn, err)
	}
	// :memory: databases live and die with their connection.
	db.SetMaxOpenConns(1)
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

type Store struct {
	db        *sql.DB
	namespace string
	nowFunc   func() time.Time
}

var _ token.Store = (*Store)(nil)

// New returns a store for one client context. An empty namespace means
// DefaultNamespace.
func New(db *sql.DB, namespace string) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{db: db, namespace: namespace, nowFunc: time.Now}
}

func (s *Store) Load(ctx context.Context) (token.Set, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM tokens WHERE namespace = ?`, s.namespace)
	if err != nil {
		return token.Set{}, fmt.Errorf("failed to load tokens[%s]: %w", s.namespace, err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return token.Set{}, fmt.Errorf("failed to scan token row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return token.Set{}, fmt.Errorf("failed to iterate token rows: %w", err)
	}
	return token.SetFromValues(values), nil
}

func (s *Store) Save(ctx context.Context, set token.Set) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin token save: %w", err)
	}
	defer tx.Rollback()

	now := s.nowFunc().Unix()
	for _, key := range token.Keys {
		value := set.Values()[key]
		if value == "" {
			if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE namespace = ? AND key = ?`, s.namespace, key); err != nil {
				return fmt.Errorf("failed to delete tokens[%s/%s]: %w", s.namespace, key, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tokens (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, s.namespace, key, value, now); err != nil {
			return fmt.Errorf("failed to set tokens[%s/%s]: %w", s.namespace, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token save: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("failed to clear tokens[%s]: %w", s.namespace, err)
	}
	return nil
}
