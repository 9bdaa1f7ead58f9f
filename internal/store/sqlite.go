// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite.
// ABOUTME: Provides session binding persistence with automatic schema creation.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
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

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agent_bindings (
			user_id TEXT PRIMARY KEY,
			active_provider TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS agent_sessions (
			user_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			session_ref TEXT NOT NULL DEFAULT '',
			runtime_pid INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, provider)
		);

		CREATE INDEX IF NOT EXISTS idx_agent_sessions_user
			ON agent_sessions(user_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// GetBinding retrieves the user's binding, lazily creating a default row
// bound to defaultProvider with null refs on first contact.
func (s *SQLiteStore) GetBinding(ctx context.Context, userID, defaultProvider string) (*SessionBinding, error) {
	binding := &SessionBinding{
		UserID:      userID,
		SessionRefs: make(map[string]string),
		RuntimePIDs: make(map[string]int),
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT active_provider, updated_at FROM agent_bindings WHERE user_id = ?`,
		userID,
	).Scan(&binding.ActiveProvider, &binding.UpdatedAt)

	if err == sql.ErrNoRows {
		now := time.Now().UTC()
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO agent_bindings (user_id, active_provider, updated_at) VALUES (?, ?, ?)`,
			userID, defaultProvider, now,
		); err != nil {
			return nil, fmt.Errorf("creating binding: %w", err)
		}
		binding.ActiveProvider = defaultProvider
		binding.UpdatedAt = now
		s.logger.Debug("created default binding", "user_id", userID, "provider", defaultProvider)
		return binding, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying binding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, session_ref, runtime_pid FROM agent_sessions WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var provider, ref string
		var pid int
		if err := rows.Scan(&provider, &ref, &pid); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		binding.SessionRefs[provider] = ref
		binding.RuntimePIDs[provider] = pid
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	return binding, nil
}

// SetActiveAgent records which provider is active for the user.
func (s *SQLiteStore) SetActiveAgent(ctx context.Context, userID, provider string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_bindings (user_id, active_provider, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			active_provider = excluded.active_provider,
			updated_at = excluded.updated_at
	`, userID, provider, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting active agent: %w", err)
	}
	return nil
}

// UpdateSessionRef records the provider's latest resume token.
func (s *SQLiteStore) UpdateSessionRef(ctx context.Context, userID, provider, ref string) error {
	if err := s.upsertSession(ctx, userID, provider, "session_ref", ref); err != nil {
		return fmt.Errorf("updating session ref: %w", err)
	}
	return nil
}

// SetRuntimePID records the live process id for the user's provider.
func (s *SQLiteStore) SetRuntimePID(ctx context.Context, userID, provider string, pid int) error {
	if err := s.upsertSession(ctx, userID, provider, "runtime_pid", pid); err != nil {
		return fmt.Errorf("setting runtime pid: %w", err)
	}
	return nil
}

// ClearRuntimePID clears the recorded process id and notes the error (if
// any) that ended the runtime.
func (s *SQLiteStore) ClearRuntimePID(ctx context.Context, userID, provider string, cause error) error {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_sessions (user_id, provider, runtime_pid, last_error, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			runtime_pid = 0,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, userID, provider, lastError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clearing runtime pid: %w", err)
	}
	return nil
}

// upsertSession writes one column of the (user, provider) session row,
// creating the row if it doesn't exist yet.
func (s *SQLiteStore) upsertSession(ctx context.Context, userID, provider, column string, value any) error {
	query := fmt.Sprintf(`
		INSERT INTO agent_sessions (user_id, provider, %s, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			%s = excluded.%s,
			updated_at = excluded.updated_at
	`, column, column, column)

	_, err := s.db.ExecContext(ctx, query, userID, provider, value, time.Now().UTC())
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
