// Package sqlite provides a SQLite-backed game aggregate store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mafia-game/backend/internal/models"
	"github.com/mafia-game/backend/internal/storage"
	"github.com/mafia-game/backend/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists game aggregates in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite game store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load returns the game stored for lobbyID.
func (s *Store) Load(ctx context.Context, lobbyID string) (*models.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var state string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT state FROM games WHERE lobby_id = ?`, lobbyID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", lobbyID, err)
	}
	return decode(state)
}

// Save writes g when the stored version equals expectedVersion. An expected
// version of zero inserts a new record.
func (s *Store) Save(ctx context.Context, g *models.Game, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game: %w", err)
	}
	updatedAt := time.Now().UTC().UnixMilli()

	if expectedVersion == 0 {
		_, err := s.sqlDB.ExecContext(ctx,
			`INSERT INTO games (lobby_id, version, status, state, updated_at) VALUES (?, ?, ?, ?, ?)`,
			g.LobbyID, g.Version, string(g.Status), string(state), updatedAt,
		)
		if isUniqueViolation(err) {
			return storage.ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("insert game %s: %w", g.LobbyID, err)
		}
		return nil
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE games SET version = ?, status = ?, state = ?, updated_at = ? WHERE lobby_id = ? AND version = ?`,
		g.Version, string(g.Status), string(state), updatedAt, g.LobbyID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update game %s: %w", g.LobbyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update game %s: %w", g.LobbyID, err)
	}
	if n == 0 {
		return storage.ErrVersionConflict
	}
	return nil
}

// Delete removes the record when its version equals expectedVersion.
// Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, lobbyID string, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM games WHERE lobby_id = ? AND version = ?`, lobbyID, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete game %s: %w", lobbyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete game %s: %w", lobbyID, err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM games WHERE lobby_id = ?`, lobbyID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete game %s: %w", lobbyID, err)
	}
	return storage.ErrVersionConflict
}

// List returns every stored game ordered by lobby id.
func (s *Store) List(ctx context.Context) ([]*models.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT state FROM games ORDER BY lobby_id`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		g, err := decode(state)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

func decode(state string) (*models.Game, error) {
	var g models.Game
	if err := json.Unmarshal([]byte(state), &g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	return &g, nil
}

func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := sqlDB.Exec(string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
