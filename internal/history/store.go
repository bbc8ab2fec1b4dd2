// Package history persists reconciliation outcomes so operators can review
// what the engine did for any purchaser without replaying logs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Entry is one recorded reconciliation outcome.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId"`
	Email     string    `json:"email"`
	Trigger   string    `json:"trigger"`
	Outcome   string    `json:"outcome"` // "applied", "rejected", "failed"
	Detail    string    `json:"detail,omitempty"`
	Roles     string    `json:"roles,omitempty"` // comma-separated roles touched
}

// StoreConfig configures the SQLite history store.
type StoreConfig struct {
	DataDir       string // directory for history.db
	RetentionDays int    // days to keep entries (default 90, 0 = forever)
}

// Store implements persistent reconciliation history on SQLite.
type Store struct {
	mu            sync.Mutex
	db            *sql.DB
	retentionDays int
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// NewStore opens (or creates) the history database.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "history.db")

	// Pragmas in the DSN so every pool connection is configured
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite works best with a single writer connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	retentionDays := cfg.RetentionDays
	if retentionDays == 0 {
		retentionDays = 90
	}

	s := &Store{
		db:            db,
		retentionDays: retentionDays,
		stopChan:      make(chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if retentionDays > 0 {
		s.wg.Add(1)
		go s.retentionWorker()
	}

	log.Info().
		Str("dbPath", dbPath).
		Int("retentionDays", retentionDays).
		Msg("Reconciliation history store initialized")

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reconciliations (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		request_id TEXT NOT NULL,
		email TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT,
		roles TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reconciliations_timestamp ON reconciliations(timestamp);
	CREATE INDEX IF NOT EXISTS idx_reconciliations_email ON reconciliations(email);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Append records one reconciliation outcome.
func (s *Store) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliations (id, timestamp, request_id, email, trigger_kind, outcome, detail, roles)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.Unix(),
		entry.RequestID,
		entry.Email,
		entry.Trigger,
		entry.Outcome,
		entry.Detail,
		entry.Roles,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first, optionally filtered by
// email.
func (s *Store) Recent(ctx context.Context, email string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT id, timestamp, request_id, email, trigger_kind, outcome, detail, roles
		FROM reconciliations`
	args := []any{}
	if email = strings.TrimSpace(email); email != "" {
		query += ` WHERE email = ?`
		args = append(args, strings.ToLower(email))
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var ts int64
		var detail, roles sql.NullString
		if err := rows.Scan(&entry.ID, &ts, &entry.RequestID, &entry.Email, &entry.Trigger, &entry.Outcome, &detail, &roles); err != nil {
			return nil, err
		}
		entry.Timestamp = time.Unix(ts, 0)
		entry.Detail = detail.String
		entry.Roles = roles.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) retentionWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanupOldEntries()
		}
	}
}

func (s *Store) cleanupOldEntries() {
	if s.retentionDays <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).Unix()
	result, err := s.db.Exec(`DELETE FROM reconciliations WHERE timestamp < ?`, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to clean up old history entries")
		return
	}
	if deleted, _ := result.RowsAffected(); deleted > 0 {
		log.Info().
			Int64("deleted", deleted).
			Int("retentionDays", s.retentionDays).
			Msg("Deleted expired history entries")
	}
}

// Close stops background workers and closes the database.
func (s *Store) Close() error {
	close(s.stopChan)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
