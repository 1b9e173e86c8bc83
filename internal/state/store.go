package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver

	"gcslink/internal/fc"
)

// Store persists the flight controller ConnectionState as a single-row
// sqlite record so the link can be restored after a process restart.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the state database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping state db: %w", err)
	}
	for _, pragma := range []string{`PRAGMA journal_mode = WAL;`, `PRAGMA foreign_keys = ON;`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenOrReset opens the state database, resetting it to defaults when the
// file is corrupt. First run (no file) and a reset both yield an empty
// store; neither is fatal.
func OpenOrReset(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	store, err := Open(ctx, path)
	if err == nil {
		_, err = store.Load(ctx)
		if err == nil {
			return store, nil
		}
		_ = store.Close()
	}

	logger.Warn("connection state db unreadable, resetting to defaults", "path", path, "error", err)
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if rerr := os.Remove(p); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			return nil, fmt.Errorf("reset state db: %w", rerr)
		}
	}
	return Open(ctx, path)
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS connection_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			is_connected INTEGER NOT NULL DEFAULT 0,
			user_disconnected INTEGER NOT NULL DEFAULT 0,
			config_json TEXT,
			last_success_at INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate state db: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the persisted record. A missing row yields the zero state.
func (s *Store) Load(ctx context.Context) (fc.ConnectionState, error) {
	var (
		st         fc.ConnectionState
		connected  int64
		userDisc   int64
		configJSON sql.NullString
		successMs  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT is_connected, user_disconnected, config_json, last_success_at
		FROM connection_state WHERE id = 1
	`).Scan(&connected, &userDisc, &configJSON, &successMs)
	if errors.Is(err, sql.ErrNoRows) {
		return fc.ConnectionState{}, nil
	}
	if err != nil {
		return fc.ConnectionState{}, fmt.Errorf("load connection state: %w", err)
	}

	st.Connected = connected != 0
	st.UserDisconnected = userDisc != 0
	st.LastSuccess = fromUnixMillis(successMs)
	if configJSON.Valid && configJSON.String != "" {
		var cfg fc.ConnectionConfig
		if err := json.Unmarshal([]byte(configJSON.String), &cfg); err != nil {
			return fc.ConnectionState{}, fmt.Errorf("decode connection config: %w", err)
		}
		st.Config = &cfg
	}
	return st, nil
}

// Save upserts the single persisted record.
func (s *Store) Save(ctx context.Context, st fc.ConnectionState) error {
	var configJSON any
	if st.Config != nil {
		raw, err := json.Marshal(st.Config)
		if err != nil {
			return fmt.Errorf("encode connection config: %w", err)
		}
		configJSON = string(raw)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connection_state(id, is_connected, user_disconnected, config_json, last_success_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_connected = excluded.is_connected,
			user_disconnected = excluded.user_disconnected,
			config_json = excluded.config_json,
			last_success_at = excluded.last_success_at
	`, boolToInt(st.Connected), boolToInt(st.UserDisconnected), configJSON, toUnixMillis(st.LastSuccess))
	if err != nil {
		return fmt.Errorf("save connection state: %w", err)
	}
	return nil
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func toUnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMillis(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
