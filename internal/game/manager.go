package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mafia-game/backend/internal/clock"
	"github.com/mafia-game/backend/internal/models"
	"github.com/mafia-game/backend/internal/storage"
	"github.com/mafia-game/backend/internal/storage/memory"
)

// DefaultInactivityThreshold is how long a player may go without a
// heartbeat before the reaper evicts them.
const DefaultInactivityThreshold = 30 * time.Minute

const tracerName = "github.com/mafia-game/backend/internal/game"

// User identifies someone joining a lobby. An empty ID gets a fresh one.
type User struct {
	ID          string
	DisplayName string
}

// Options configures a GameManager. Zero values fall back to an in-memory
// store, the local clock and a time-seeded rng.
type Options struct {
	Store               Store
	Clock               clock.Source
	Rand                *rand.Rand
	InactivityThreshold time.Duration
	Lobbies             []models.LobbyInfo // empty accepts any lobby id
}

// GameManager manages all game lobbies
type GameManager struct {
	store     Store
	clock     clock.Source
	tracer    trace.Tracer
	threshold time.Duration
	catalogue []models.LobbyInfo
	names     map[string]string

	rng   *rand.Rand
	rngMu sync.Mutex

	lobbies map[string]*Lobby
	members map[string]string // player id -> lobby id
	closed  bool
	mu      sync.RWMutex

	presence *presence
}

// NewGameManager creates a new game manager
func NewGameManager(opts Options) *GameManager {
	gm := &GameManager{
		store:     opts.Store,
		clock:     opts.Clock,
		tracer:    otel.Tracer(tracerName),
		threshold: opts.InactivityThreshold,
		catalogue: append([]models.LobbyInfo(nil), opts.Lobbies...),
		names:     make(map[string]string, len(opts.Lobbies)),
		rng:       opts.Rand,
		lobbies:   make(map[string]*Lobby),
		members:   make(map[string]string),
		presence:  newPresence(),
	}
	if gm.store == nil {
		gm.store = memory.New()
	}
	if gm.clock == nil {
		gm.clock = clock.Local{}
	}
	if gm.rng == nil {
		gm.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if gm.threshold <= 0 {
		gm.threshold = DefaultInactivityThreshold
	}
	for _, info := range gm.catalogue {
		gm.names[info.ID] = info.Name
	}
	return gm
}

// lobbyFor returns the actor owning lobbyID, starting it from the stored
// record when needed.
func (gm *GameManager) lobbyFor(ctx context.Context, lobbyID string) (*Lobby, error) {
	if lobbyID == "" {
		return nil, ErrNoLobby
	}
	if len(gm.catalogue) > 0 {
		if _, ok := gm.names[lobbyID]; !ok {
			return nil, ErrUnknownLobby
		}
	}

	gm.mu.RLock()
	l, ok := gm.lobbies[lobbyID]
	closed := gm.closed
	gm.mu.RUnlock()
	if ok {
		return l, nil
	}
	if closed {
		return nil, ErrLobbyClosed
	}

	stored, err := gm.store.Load(ctx, lobbyID)
	if errors.Is(err, storage.ErrNotFound) {
		stored, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load lobby %s: %w", lobbyID, err)
	}

	gm.mu.Lock()
	defer gm.mu.Unlock()
	if gm.closed {
		return nil, ErrLobbyClosed
	}
	if l, ok := gm.lobbies[lobbyID]; ok {
		return l, nil
	}
	l = gm.startLobbyLocked(lobbyID, stored)
	return l, nil
}

func (gm *GameManager) startLobbyLocked(lobbyID string, initial *models.Game) *Lobby {
	if initial != nil {
		now := gm.clock.Now()
		for id := range initial.Players {
			gm.members[id] = lobbyID
			gm.presence.touch(id, now)
		}
	}
	l := newLobby(lobbyID, initial, gm.store, gm.clock, gm.tracer, gm.indexMembers)
	gm.lobbies[lobbyID] = l
	return l
}

// indexMembers keeps the player -> lobby index in step with committed
// rosters. It runs on the lobby loop.
func (gm *GameManager) indexMembers(lobbyID string, prev, next *models.Game) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if prev != nil {
		for id := range prev.Players {
			if next != nil && next.Players[id] != nil {
				continue
			}
			if gm.members[id] == lobbyID {
				delete(gm.members, id)
				gm.presence.forget(id)
			}
		}
	}
	if next != nil {
		for id := range next.Players {
			if prev == nil || prev.Players[id] == nil {
				gm.members[id] = lobbyID
			}
		}
	}
}

// LobbyOf returns the lobby the player currently belongs to.
func (gm *GameManager) LobbyOf(playerID string) (string, bool) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	id, ok := gm.members[playerID]
	return id, ok
}

func (gm *GameManager) withRand(fn func(r *rand.Rand)) {
	gm.rngMu.Lock()
	defer gm.rngMu.Unlock()
	fn(gm.rng)
}

// JoinLobby adds a player to a lobby, creating the lobby on first join.
// Joining while a game runs or has ended makes the player a dead spectator.
// A player already on the roster gets their record back unchanged.
func (gm *GameManager) JoinLobby(ctx context.Context, lobbyID string, user User) (*models.Player, error) {
	name := strings.TrimSpace(user.DisplayName)
	if name == "" {
		return nil, ErrMissingName
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	l, err := gm.lobbyFor(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if prev, ok := gm.LobbyOf(user.ID); ok && prev != lobbyID {
		if err := gm.LeaveLobby(ctx, user.ID, prev); err != nil {
			return nil, fmt.Errorf("leave previous lobby: %w", err)
		}
	}

	var player models.Player
	err = l.mutate(ctx, "join", false, func(g *models.Game, now time.Time) (*models.Game, error) {
		if g == nil {
			g = models.NewGame(lobbyID, now)
		}
		if p, ok := g.Players[user.ID]; ok {
			player = *p
			return nil, errUnchanged
		}

		p := &models.Player{
			ID:          user.ID,
			DisplayName: name,
			IsAlive:     true,
			JoinedAt:    now,
		}
		gm.withRand(func(r *rand.Rand) {
			p.Color = pickColor(g.Players, r)
		})
		if g.Status == models.StatusPlaying || g.Status == models.StatusEnded {
			p.IsAlive = false
			p.IsSpectator = true
		}
		g.Players[p.ID] = p
		if _, ok := g.Players[g.HostID]; !ok {
			g.HostID = p.ID
		}
		player = *p
		return g, nil
	})
	if err != nil {
		return nil, err
	}

	gm.presence.touch(user.ID, gm.clock.Now())
	log.Info().Str("lobby", lobbyID).Str("player", user.ID).Bool("spectator", player.IsSpectator).Msg("player joined")
	return &player, nil
}

// LeaveLobby removes a player. During a game the player is marked dead
// instead so round bookkeeping stays intact.
func (gm *GameManager) LeaveLobby(ctx context.Context, playerID, lobbyID string) error {
	l, err := gm.lobbyFor(ctx, lobbyID)
	if err != nil {
		return err
	}
	return l.mutate(ctx, "leave", true, func(g *models.Game, now time.Time) (*models.Game, error) {
		if g == nil || g.Players[playerID] == nil {
			return nil, errUnchanged
		}
		return depart(g, playerID, now)
	})
}

// KickPlayer lets the host remove another player.
func (gm *GameManager) KickPlayer(ctx context.Context, hostID, targetID, lobbyID string) error {
	l, err := gm.lobbyFor(ctx, lobbyID)
	if err != nil {
		return err
	}
	return l.mutate(ctx, "kick", true, func(g *models.Game, now time.Time) (*models.Game, error) {
		if g == nil || g.HostID != hostID {
			return nil, ErrNotHost
		}
		if targetID == hostID {
			return nil, ErrCannotKickSelf
		}
		if g.Players[targetID] == nil {
			return nil, ErrPlayerNotFound
		}
		return depart(g, targetID, now)
	})
}

// depart applies a leave or kick. Players in a running game are marked
// dead; everyone else is removed. A nil game means the roster is empty and
// the record should be deleted.
func depart(g *models.Game, playerID string, now time.Time) (*models.Game, error) {
	p := g.Players[playerID]
	if g.Status != models.StatusPlaying || p.IsSpectator {
		removePlayer(g, playerID)
		if len(g.Players) == 0 {
			return nil, nil
		}
		return g, nil
	}

	if !p.IsAlive && g.HostID != playerID {
		return nil, errUnchanged
	}
	if p.IsAlive {
		p.Kill(g.Round, models.ReasonInactive)
	}
	dropSubmissions(g, playerID)
	if g.HostID == playerID {
		g.HostID = pickHost(g, map[string]bool{playerID: true})
	}
	settleWinner(g, now)
	return g, nil
}

func removePlayer(g *models.Game, playerID string) {
	delete(g.Players, playerID)
	delete(g.Settings.MafiaProbability, playerID)
	dropSubmissions(g, playerID)
	if g.HostID == playerID {
		g.HostID = pickHost(g, nil)
	}
}

// pickHost returns the lowest id outside skip, preferring alive players.
func pickHost(g *models.Game, skip map[string]bool) string {
	fallback := ""
	for _, id := range g.PlayerIDs() {
		if skip[id] {
			continue
		}
		if g.Players[id].IsAlive {
			return id
		}
		if fallback == "" {
			fallback = id
		}
	}
	return fallback
}

// UpdateSettings merges a partial settings update. Host only.
func (gm *GameManager) UpdateSettings(ctx context.Context, hostID string, patch models.SettingsPatch, lobbyID string) error {
	l, err := gm.lobbyFor(ctx, lobbyID)
	if err != nil {
		return err
	}
	return l.mutate(ctx, "settings", false, func(g *models.Game, now time.Time) (*models.Game, error) {
		if g == nil || g.HostID != hostID {
			return nil, ErrNotHost
		}
		if g.Status != models.StatusLobby {
			return nil, ErrGameAlreadyStarted
		}
		merged := g.Settings.Merge(patch)
		if err := validateSettings(merged); err != nil {
			return nil, err
		}
		g.Settings = merged
		return g, nil
	})
}

func validateSettings(s models.Settings) error {
	if s.MafiaCount < 1 {
		return invalidSettings("mafiaCount must be at least 1")
	}
	if s.DayTimerMinutes < 1 || s.NightTimerMinutes < 1 {
		return invalidSettings("timers must be at least 1 minute")
	}
	for id, w := range s.MafiaProbability {
		if w < 0 || w > 100 {
			return invalidSettings("mafia probability for " + id + " must be between 0 and 100")
		}
	}
	return nil
}

// StartGame assigns roles and starts the game
func (gm *GameManager) StartGame(ctx context.Context, hostID, lobbyID string) (StartResult, error) {
	l, err := gm.lobbyFor(ctx, lobbyID)
	if err != nil {
		return StartResult{}, err
	}

	var result StartResult
	err = l.mutate(ctx, "start", false, func(g *models.Game, now time.Time) (*models.Game, error) {
		if g == nil || g.HostID != hostID {
			return nil, ErrNotHost
		}
		if g.Status != models.StatusLobby {
			return nil, ErrGameAlreadyStarted
		}
		players := 0
		for _, p := range g.Players {
			if !p.IsSpectator {
				players++
			}
		}
		if players < MinPlayers {
			return nil, ErrNotEnoughPlayers
		}
		gm.withRand(func(r *rand.Rand) {
			result = beginGame(g, r, now)
		})
		return g, nil
	})
	if err != nil {
		return StartResult{}, err
	}

	if result.Clamped {
		log.Warn().
			Str("lobby", lobbyID).
			Int("requested", result.Requested).
			Int("mafia", result.MafiaCount).
			Msg("mafia count reduced to a third of the table")
	}
	return result, nil
}

// SubmitAction records a night action. A nil target abstains.
func (gm *GameManager) SubmitAction(ctx context.Context, playerID string, kind models.ActionKind, target *string, lobbyID string) error {
	return gm.submit(ctx, "action", playerID, kind, target, lobbyID)
}

// SubmitVote records a day vote. A nil target abstains.
func (gm *GameManager) SubmitVote(ctx context.Context, playerID string, target *string, lobbyID string) error {
	return gm.submit(ctx, "vote", playerID, models.ActionVote, target, lobbyID)
}

func (gm *GameManager) submit(ctx context.Context, name, playerID string, kind models.ActionKind, target *string, lobbyID string) error {
	l, err := gm.lobbyFor(ctx, lobbyID)
	if err != nil {
		return err
	}
	return l.mutate(ctx, name, true, func(g *models.Game, now time.Time) (*models.Game, error) {
		if err := RecordSubmission(g, playerID, kind, target, now); err != nil {
			return nil, err
		}
		return g, nil
	})
}

// ResetGame returns an ended or running game to the lobby. Host only.
// Players who have since joined another lobby are dropped from the roster.
func (gm *GameManager) ResetGame(ctx context.Context, hostID, lobbyID string) error {
	l, err := gm.lobbyFor(ctx, lobbyID)
	if err != nil {
		return err
	}
	return l.mutate(ctx, "reset", false, func(g *models.Game, now time.Time) (*models.Game, error) {
		if g == nil || g.HostID != hostID {
			return nil, ErrNotHost
		}
		if g.Status == models.StatusLobby {
			return nil, errUnchanged
		}
		for _, id := range g.PlayerIDs() {
			if other, ok := gm.LobbyOf(id); ok && other != lobbyID {
				removePlayer(g, id)
			}
		}
		if len(g.Players) == 0 {
			return nil, nil
		}
		resetToLobby(g)
		return g, nil
	})
}

// Advance asks the lobby to end its phase if the trigger condition holds.
// Concurrent calls commit at most one transition.
func (gm *GameManager) Advance(ctx context.Context, lobbyID string) error {
	l, err := gm.lobbyFor(ctx, lobbyID)
	if err != nil {
		return err
	}
	return l.Advance(ctx)
}

// SendHeartbeat records player activity for the lobby the player is in.
func (gm *GameManager) SendHeartbeat(playerID string) error {
	if _, ok := gm.LobbyOf(playerID); !ok {
		return ErrNoLobby
	}
	gm.presence.touch(playerID, gm.clock.Now())
	return nil
}

// View returns the lobby as viewerID may see it.
func (gm *GameManager) View(lobbyID, viewerID string) (*models.GameView, bool) {
	gm.mu.RLock()
	l, ok := gm.lobbies[lobbyID]
	gm.mu.RUnlock()
	if !ok {
		return nil, false
	}
	g := l.Snapshot()
	if g == nil {
		return nil, false
	}
	return models.NewGameView(g, viewerID), true
}

// Subscribe streams viewerID's snapshots of the lobby. The current state is
// delivered first.
func (gm *GameManager) Subscribe(lobbyID, viewerID string) (<-chan *models.GameView, func(), error) {
	l, err := gm.lobbyFor(context.Background(), lobbyID)
	if err != nil {
		return nil, nil, err
	}
	return l.Subscribe(viewerID)
}

// ListLobbies summarises every catalogue lobby, or every known lobby when
// no catalogue is configured.
func (gm *GameManager) ListLobbies() []models.LobbyStatus {
	infos := gm.catalogue
	if len(infos) == 0 {
		for _, l := range gm.activeLobbies() {
			if l.Snapshot() != nil {
				infos = append(infos, models.LobbyInfo{ID: l.ID(), Name: l.ID()})
			}
		}
	}

	gm.mu.RLock()
	defer gm.mu.RUnlock()
	out := make([]models.LobbyStatus, 0, len(infos))
	for _, info := range infos {
		st := models.LobbyStatus{ID: info.ID, Name: info.Name, Status: models.StatusEmpty}
		if l, ok := gm.lobbies[info.ID]; ok {
			if g := l.Snapshot(); g != nil {
				st.Status = g.Status
				st.PlayerCount = len(g.Players)
				if host, ok := g.Players[g.HostID]; ok {
					st.HostName = host.DisplayName
				}
			}
		}
		out = append(out, st)
	}
	return out
}

func (gm *GameManager) activeLobbies() []*Lobby {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	out := make([]*Lobby, 0, len(gm.lobbies))
	for _, l := range gm.lobbies {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Recover restarts an actor for every stored lobby. Deadline timers are
// re-armed from the stored deadlines and overdue phases advance at once.
// Recovered players get a fresh heartbeat so downtime does not count
// against them.
func (gm *GameManager) Recover(ctx context.Context) error {
	games, err := gm.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list stored lobbies: %w", err)
	}

	gm.mu.Lock()
	defer gm.mu.Unlock()
	recovered := 0
	for _, g := range games {
		if _, ok := gm.lobbies[g.LobbyID]; ok {
			continue
		}
		if len(gm.catalogue) > 0 {
			if _, ok := gm.names[g.LobbyID]; !ok {
				log.Warn().Str("lobby", g.LobbyID).Msg("stored lobby is not in the catalogue, skipping")
				continue
			}
		}
		gm.startLobbyLocked(g.LobbyID, g)
		recovered++
		log.Info().
			Str("lobby", g.LobbyID).
			Str("status", string(g.Status)).
			Str("phase", string(g.Phase)).
			Int("round", g.Round).
			Msg("lobby recovered")
	}
	log.Info().Int("count", recovered).Msg("lobby recovery complete")
	return nil
}

// Close stops every lobby actor. Later intents fail with ErrLobbyClosed.
func (gm *GameManager) Close() {
	gm.mu.Lock()
	gm.closed = true
	lobbies := make([]*Lobby, 0, len(gm.lobbies))
	for _, l := range gm.lobbies {
		lobbies = append(lobbies, l)
	}
	gm.mu.Unlock()

	for _, l := range lobbies {
		l.Close()
	}
}
