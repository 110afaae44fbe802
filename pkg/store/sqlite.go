package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultConfigID is the key of the single state document.
const DefaultConfigID = "main"

// SQLiteStore keeps the state blob, keyed by config id, and the admin
// credentials in SQLite.
type SQLiteStore struct {
	db       *sql.DB
	configID string
}

// NewSQLiteStore opens the database and initializes the schema.
func NewSQLiteStore(dataSourceName, configID string) (*SQLiteStore, error) {
	if configID == "" {
		configID = DefaultConfigID
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// WAL lets readers proceed while the saver writes.
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, configID: configID}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	slog.Info("Database connection established and schema initialized", slog.String("dsn", dataSourceName), slog.String("config_id", configID))
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS app_state (
		config_id TEXT PRIMARY KEY,
		app_data TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS admin_credentials (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns the stored blob for the configured id.
func (s *SQLiteStore) Load(ctx context.Context) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT app_data FROM app_state WHERE config_id = ?`, s.configID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return []byte(data), nil
}

// Save upserts the blob for the configured id.
func (s *SQLiteStore) Save(ctx context.Context, data []byte) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_state (config_id, app_data, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(config_id) DO UPDATE SET app_data = excluded.app_data, updated_at = excluded.updated_at`,
		s.configID, string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// UpdatedAt reports when the blob was last saved.
func (s *SQLiteStore) UpdatedAt(ctx context.Context) (time.Time, error) {
	var updated time.Time
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM app_state WHERE config_id = ?`, s.configID).Scan(&updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to read state timestamp: %w", err)
	}
	return updated, nil
}

// Credentials returns the stored admin username and bcrypt hash.
func (s *SQLiteStore) Credentials(ctx context.Context) (username, passwordHash string, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT username, password_hash FROM admin_credentials WHERE id = 1`).Scan(&username, &passwordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("failed to load credentials: %w", err)
	}
	return username, passwordHash, nil
}

// SetCredentials replaces the admin username and bcrypt hash.
func (s *SQLiteStore) SetCredentials(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_credentials (id, username, password_hash, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username, password_hash = excluded.password_hash, updated_at = excluded.updated_at`,
		username, passwordHash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
