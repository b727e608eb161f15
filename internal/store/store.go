// ABOUTME: SQLite-backed activity store for logon, redemption, and trade records.
// ABOUTME: Provides schema bootstrap with WAL mode using modernc.org/sqlite.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a bot has no recorded activity.
var ErrNotFound = errors.New("not found")

// Activity kinds recorded by bots.
const (
	KindLogon      = "logon"
	KindRedemption = "redemption"
	KindTrade      = "trade"
)

// Activity is one recorded bot event.
type Activity struct {
	ID        string
	Bot       string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// Store persists bot activity in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates a store at the given path. The schema is created if it does
// not exist; parent directories are created as needed.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("activity store initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS activity (
			id TEXT PRIMARY KEY,
			bot TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_activity_bot ON activity(bot, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordLogon records a logon outcome for a bot.
func (s *Store) RecordLogon(ctx context.Context, bot, result string) error {
	return s.record(ctx, bot, KindLogon, result)
}

// RecordRedemption records one redemption attempt outcome.
func (s *Store) RecordRedemption(ctx context.Context, bot, key, status string) error {
	return s.record(ctx, bot, KindRedemption, fmt.Sprintf("%s: %s", key, status))
}

// RecordTrade records a loot-send attempt.
func (s *Store) RecordTrade(ctx context.Context, bot string, items int, success bool) error {
	return s.record(ctx, bot, KindTrade, fmt.Sprintf("items=%d success=%t", items, success))
}

func (s *Store) record(ctx context.Context, bot, kind, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity (id, bot, kind, detail) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), bot, kind, detail,
	)
	if err != nil {
		return fmt.Errorf("recording %s activity: %w", kind, err)
	}
	return nil
}

// Recent returns the most recent activity for a bot, newest first. A bot
// with nothing recorded yields ErrNotFound.
func (s *Store) Recent(ctx context.Context, bot string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bot, kind, detail, created_at FROM activity
		 WHERE bot = ? ORDER BY created_at DESC LIMIT ?`,
		bot, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Bot, &a.Kind, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		activities = append(activities, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(activities) == 0 {
		return nil, ErrNotFound
	}
	return activities, nil
}
