package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mafia-game/backend/internal/models"
	"github.com/mafia-game/backend/internal/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "games.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func newGame(id string, version int64) *models.Game {
	g := models.NewGame(id, time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC))
	g.Version = version
	g.Players["p1"] = &models.Player{ID: "p1", DisplayName: "Alice", Color: "#FF6B6B", IsAlive: true}
	g.HostID = "p1"
	return g
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, newGame("alpha", 1), 0); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load(ctx, "alpha")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Version != 1 || got.HostID != "p1" {
		t.Fatalf("got version %d host %q", got.Version, got.HostID)
	}
	if p := got.Players["p1"]; p == nil || p.DisplayName != "Alice" {
		t.Fatalf("player not restored: %+v", got.Players)
	}
	if got.Settings.MafiaCount != 2 {
		t.Fatalf("settings not restored: %+v", got.Settings)
	}
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.Load(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveRejectsStaleVersion(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, newGame("alpha", 1), 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, newGame("alpha", 1), 0); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("duplicate insert err = %v, want conflict", err)
	}
	if err := store.Save(ctx, newGame("alpha", 2), 1); err != nil {
		t.Fatalf("save v2: %v", err)
	}
	if err := store.Save(ctx, newGame("alpha", 2), 1); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("stale update err = %v, want conflict", err)
	}
}

func TestDeleteChecksVersion(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, newGame("alpha", 1), 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "alpha", 7); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if err := store.Delete(ctx, "alpha", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "alpha", 1); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Load(ctx, "alpha"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListOrdersByLobby(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		if err := store.Save(ctx, newGame(id, 1), 0); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	games, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(games) != 3 || games[0].LobbyID != "alpha" || games[2].LobbyID != "charlie" {
		t.Fatalf("unexpected order: %d games", len(games))
	}
}
