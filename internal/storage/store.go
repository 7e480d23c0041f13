// Package storage persists client-local state (identity token, display
// name, room password, volume, platform bindings) across reloads in a
// per-user SQLite file, keyed by fixed, stable keys.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5000

// Fixed preference keys. KeyIdentityToken must never be regenerated once
// written; the server uses it to recognize returning participants.
const (
	KeyIdentityToken = "identity_token"
	KeyDisplayName   = "display_name"
	KeyRoomPassword  = "room_password"
	KeyVolume        = "volume"

	// Platform bindings are stored one row each under binding.<platform>.
	bindingPrefix = "binding."
)

// Store wraps the SQLite handle holding the client preference table.
type Store struct {
	db *sql.DB
}

// NewStore opens (and creates if needed) the preference database at path.
// Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "auxroom.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS prefs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`)
	return err
}

// Get returns the stored value for key, or "" when absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// Set writes or replaces the value for key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO prefs(key, value, updated_at)
		VALUES(?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`, key, value)
	return err
}

// Delete removes a key; deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, key)
	return err
}

// SetIfAbsent writes value only when key has no stored value yet and
// reports whether the write happened. This backs the write-once identity
// token guarantee.
func (s *Store) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO prefs(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO NOTHING`, key, value)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Volume returns the persisted volume in [0,1], defaulting to 0.5.
func (s *Store) Volume(ctx context.Context) (float64, error) {
	raw, err := s.Get(ctx, KeyVolume)
	if err != nil || raw == "" {
		return 0.5, err
	}
	vol, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0.5, nil
	}
	return min(1, max(0, vol)), nil
}

// SetVolume clamps and persists the volume.
func (s *Store) SetVolume(ctx context.Context, vol float64) error {
	vol = min(1, max(0, vol))
	return s.Set(ctx, KeyVolume, strconv.FormatFloat(vol, 'f', -1, 64))
}

// Bindings returns all persisted platform account bindings.
func (s *Store) Bindings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM prefs WHERE key LIKE ?`, bindingPrefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bindings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		bindings[strings.TrimPrefix(key, bindingPrefix)] = value
	}
	return bindings, rows.Err()
}

// SetBinding persists one platform account binding.
func (s *Store) SetBinding(ctx context.Context, platform, accountID string) error {
	return s.Set(ctx, bindingPrefix+platform, accountID)
}
