// Package store is the SQLite-backed remote collaborator used by the dev
// server. Rows live in SQLite; page section bodies live in a
// content-addressed blob store next to the database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/store/blobstore"
)

//go:embed schema.sql
var schemaFS embed.FS

// Config locates the database and blobs.
type Config struct {
	// Dir holds sitebuilder.db and blobs/. Ignored when DSN is set.
	Dir string
	// DSN overrides the database location, e.g. "file::memory:?cache=shared".
	DSN string
}

func DefaultConfig() Config {
	return Config{Dir: ".sitebuilder"}
}

// Store implements pipeline.Backend (minus the trigger), pipeline.TemplateSource,
// pages.Backend and the persistence half of skills.Backend.
type Store struct {
	db     *sql.DB
	blobs  *blobstore.Store
	logger logging.Logger
	now    func() time.Time
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func Open(cfg Config, logger logging.Logger) (*Store, error) {
	if logger == nil {
		return nil, errors.New("store: nil logger provided")
	}
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	dsn := cfg.DSN
	if dsn == "" {
		dsn = filepath.Join(cfg.Dir, "sitebuilder.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// pragmas are per connection and writers must not interleave
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	blobs, err := blobstore.New(filepath.Join(cfg.Dir, "blobs"))
	if err != nil {
		db.Close()
		return nil, err
	}

	logger = logger.With(logging.Field{Key: "component", Value: "store"})
	logger.Info("store opened", logging.Field{Key: "dir", Value: cfg.Dir})
	return &Store{db: db, blobs: blobs, logger: logger, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// inTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", logging.Field{Key: "error", Value: rbErr})
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) stamp() int64 { return s.now().UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func (s *Store) putSections(sections []pages.Section) (string, error) {
	if sections == nil {
		sections = []pages.Section{}
	}
	data, err := json.Marshal(sections)
	if err != nil {
		return "", fmt.Errorf("marshal sections: %w", err)
	}
	return s.blobs.Put(data)
}

func (s *Store) getSections(blobID string) ([]pages.Section, error) {
	data, err := s.blobs.Get(blobID)
	if err != nil {
		return nil, err
	}
	var out []pages.Section
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode sections %s: %w", blobID, err)
	}
	return out, nil
}
