// Package memory keeps game aggregates in process memory.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mafia-game/backend/internal/models"
	"github.com/mafia-game/backend/internal/storage"
)

type record struct {
	version int64
	state   []byte
}

// Store manages game storage
type Store struct {
	games map[string]record
	mu    sync.RWMutex
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		games: make(map[string]record),
	}
}

// Load retrieves a game by lobby id
func (s *Store) Load(ctx context.Context, lobbyID string) (*models.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	rec, ok := s.games[lobbyID]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return decode(rec.state)
}

// Save stores g if the stored version equals expectedVersion. An expected
// version of zero means the record must not exist yet.
func (s *Store) Save(ctx context.Context, g *models.Game, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.games[g.LobbyID]
	switch {
	case !ok && expectedVersion != 0:
		return storage.ErrVersionConflict
	case ok && rec.version != expectedVersion:
		return storage.ErrVersionConflict
	}
	s.games[g.LobbyID] = record{version: g.Version, state: state}
	return nil
}

// Delete removes a game if its version equals expectedVersion. Deleting a
// missing record is not an error.
func (s *Store) Delete(ctx context.Context, lobbyID string, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.games[lobbyID]
	if !ok {
		return nil
	}
	if rec.version != expectedVersion {
		return storage.ErrVersionConflict
	}
	delete(s.games, lobbyID)
	return nil
}

// List returns every stored game ordered by lobby id
func (s *Store) List(ctx context.Context) ([]*models.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := make([]string, 0, len(s.games))
	for id := range s.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	states := make([][]byte, 0, len(ids))
	for _, id := range ids {
		states = append(states, s.games[id].state)
	}
	s.mu.RUnlock()

	games := make([]*models.Game, 0, len(states))
	for _, state := range states {
		g, err := decode(state)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, nil
}

func decode(state []byte) (*models.Game, error) {
	var g models.Game
	if err := json.Unmarshal(state, &g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	return &g, nil
}
