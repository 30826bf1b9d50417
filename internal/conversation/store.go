package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kisanbot/internal/domain"

	_ "modernc.org/sqlite"
)

const defaultMaxExchanges = 10

// SQLiteStore implements domain.ConversationStore using SQLite.
// One bounded history per user_id plus a seen-message table for webhook
// redelivery detection.
type SQLiteStore struct {
	db           *sql.DB
	maxExchanges int // retained user/assistant pairs per user
	logger       *slog.Logger
}

type StoreConfig struct {
	DBPath       string
	MaxExchanges int
	Logger       *slog.Logger
}

func NewSQLiteStore(cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.MaxExchanges <= 0 {
		cfg.MaxExchanges = defaultMaxExchanges
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, maxExchanges: cfg.MaxExchanges, logger: cfg.Logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     TEXT NOT NULL,
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_user ON exchanges(user_id, id);

	CREATE TABLE IF NOT EXISTS seen_messages (
		message_id  TEXT PRIMARY KEY,
		seen_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_seen_time ON seen_messages(seen_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// History returns the capped history for a user, oldest first. Unseen users
// get an empty slice.
func (s *SQLiteStore) History(ctx context.Context, userID string) ([]domain.Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM exchanges
		 WHERE user_id = ? ORDER BY id ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []domain.Exchange
	for rows.Next() {
		var e domain.Exchange
		if err := rows.Scan(&e.Role, &e.Content, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

// Append records one user/assistant pair atomically, evicting the oldest
// pairs beyond the configured capacity in the same transaction.
func (s *SQLiteStore) Append(ctx context.Context, userID, userText, assistantText string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO exchanges (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, domain.RoleUser, userText, now,
	); err != nil {
		return fmt.Errorf("insert user exchange: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO exchanges (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, domain.RoleAssistant, assistantText, now,
	); err != nil {
		return fmt.Errorf("insert assistant exchange: %w", err)
	}

	// Keep the most recent 2K entries (K pairs), oldest evicted first.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM exchanges WHERE user_id = ? AND id NOT IN (
			SELECT id FROM exchanges WHERE user_id = ? ORDER BY id DESC LIMIT ?
		)`, userID, userID, s.maxExchanges*2,
	); err != nil {
		return fmt.Errorf("evict old exchanges: %w", err)
	}

	return tx.Commit()
}

// Clear removes a user's entire history.
func (s *SQLiteStore) Clear(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE user_id = ?`, userID)
	return err
}

// Seen reports whether a provider message ID has already been processed.
func (s *SQLiteStore) Seen(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_messages WHERE message_id = ?`, messageID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query seen: %w", err)
	}
	return true, nil
}

// MarkSeen records a processed message ID. Idempotent under redelivery.
func (s *SQLiteStore) MarkSeen(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_messages (message_id, seen_at) VALUES (?, ?)`,
		messageID, time.Now(),
	)
	return err
}

// Prune drops seen-message rows and history entries older than the retention
// window. Called periodically from the serve loop.
func (s *SQLiteStore) Prune(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention)

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM seen_messages WHERE seen_at < ?`, cutoff,
	); err != nil {
		return fmt.Errorf("prune seen messages: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM exchanges WHERE created_at < ?`, cutoff,
	)
	if err != nil {
		return fmt.Errorf("prune exchanges: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Info("pruned stale conversation entries", "rows", n)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
