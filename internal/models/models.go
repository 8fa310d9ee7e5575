package models

import (
	"sort"
	"time"
)

// GameStatus represents the lifecycle state of a lobby's game
type GameStatus string

const (
	StatusEmpty   GameStatus = "empty" // no record exists for the lobby
	StatusLobby   GameStatus = "lobby"
	StatusPlaying GameStatus = "playing"
	StatusEnded   GameStatus = "ended"
)

// GamePhase represents the current phase of the game
type GamePhase string

const (
	PhaseNone  GamePhase = "none"
	PhaseNight GamePhase = "night"
	PhaseDay   GamePhase = "day"
	PhaseEnded GamePhase = "ended"
)

// Role represents player roles in the game
type Role string

const (
	RoleMafia     Role = "mafia"
	RoleDetective Role = "detective"
	RoleDoctor    Role = "doctor"
	RoleVillager  Role = "villager"
)

// Winner is the faction that won the game
type Winner string

const (
	WinnerVillagers Winner = "villagers"
	WinnerMafia     Winner = "mafia"
	WinnerNobody    Winner = "none" // every player died
)

// EliminationReason records why a player is no longer alive
type EliminationReason string

const (
	ReasonVote     EliminationReason = "vote"
	ReasonMafia    EliminationReason = "mafia"
	ReasonInactive EliminationReason = "inactive"
)

// ActionKind is the kind of intent stored in a ledger slot
type ActionKind string

const (
	ActionKill        ActionKind = "kill"        // mafia
	ActionInvestigate ActionKind = "investigate" // detective
	ActionHeal        ActionKind = "heal"        // doctor
	ActionDecoy       ActionKind = "decoy"       // villager, never resolved
	ActionVote        ActionKind = "vote"        // day
)

// Player represents a player in the game
type Player struct {
	ID               string            `json:"id"`
	DisplayName      string            `json:"displayName"`
	Color            string            `json:"color"`
	IsAlive          bool              `json:"isAlive"`
	Role             Role              `json:"role,omitempty"`
	IsSpectator      bool              `json:"isSpectator"`
	EliminatedRound  int               `json:"eliminatedRound,omitempty"`
	EliminatedReason EliminationReason `json:"eliminatedReason,omitempty"`
	JoinedAt         time.Time         `json:"joinedAt"`
}

// Kill marks the player dead for the given round and reason.
func (p *Player) Kill(round int, reason EliminationReason) {
	p.IsAlive = false
	p.EliminatedRound = round
	p.EliminatedReason = reason
}

// Action is one submitted intent. A nil TargetID means abstain.
type Action struct {
	ActorID     string     `json:"actorId"`
	Kind        ActionKind `json:"kind"`
	TargetID    *string    `json:"targetId"`
	SubmittedAt time.Time  `json:"submittedAt"`
}

// Target returns the target id, or "" for an abstain.
func (a *Action) Target() string {
	if a == nil || a.TargetID == nil {
		return ""
	}
	return *a.TargetID
}

func (a *Action) clone() *Action {
	if a == nil {
		return nil
	}
	c := *a
	if a.TargetID != nil {
		t := *a.TargetID
		c.TargetID = &t
	}
	return &c
}

// Ledger holds one action slot per player for the current phase
type Ledger map[string]*Action

// Put stores the action in the actor's slot, replacing any previous one.
func (l Ledger) Put(a *Action) {
	l[a.ActorID] = a
}

// Clear empties the player's slot.
func (l Ledger) Clear(playerID string) {
	delete(l, playerID)
}

// Has reports whether the player has an entry.
func (l Ledger) Has(playerID string) bool {
	_, ok := l[playerID]
	return ok
}

// Clone deep-copies the ledger. A nil ledger clones to an empty one.
func (l Ledger) Clone() Ledger {
	c := make(Ledger, len(l))
	for id, a := range l {
		c[id] = a.clone()
	}
	return c
}

// Investigation is a detective's result, shown only to that detective
type Investigation struct {
	TargetID string `json:"targetId"`
	Role     Role   `json:"role"`
}

// Game is the aggregate for one lobby
type Game struct {
	LobbyID            string                   `json:"lobbyId"`
	Status             GameStatus               `json:"status"`
	Phase              GamePhase                `json:"phase"`
	Round              int                      `json:"round"`
	Players            map[string]*Player       `json:"players"`
	Settings           Settings                 `json:"settings"`
	Actions            Ledger                   `json:"actions"`
	Votes              Ledger                   `json:"votes"`
	LastActions        Ledger                   `json:"lastActions"`
	LastVotes          Ledger                   `json:"lastVotes"`
	LastInvestigations map[string]Investigation `json:"lastInvestigations,omitempty"`
	HostID             string                   `json:"hostId"`
	Winner             Winner                   `json:"winner,omitempty"`
	RoundDeadline      time.Time                `json:"roundDeadline"`
	PhaseStartedAt     time.Time                `json:"phaseStartedAt"`
	LastKilledID       string                   `json:"lastKilledId,omitempty"`
	LastEliminatedID   string                   `json:"lastEliminatedId,omitempty"`
	Version            int64                    `json:"version"`
	CreatedAt          time.Time                `json:"createdAt"`
	StartedAt          time.Time                `json:"startedAt"`
}

// NewGame creates an empty lobby record
func NewGame(lobbyID string, now time.Time) *Game {
	return &Game{
		LobbyID:     lobbyID,
		Status:      StatusLobby,
		Phase:       PhaseNone,
		Players:     make(map[string]*Player),
		Settings:    DefaultSettings(),
		Actions:     make(Ledger),
		Votes:       make(Ledger),
		LastActions: make(Ledger),
		LastVotes:   make(Ledger),
		CreatedAt:   now,
	}
}

// Clone returns a deep copy that can be mutated without touching g.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	c.Players = make(map[string]*Player, len(g.Players))
	for id, p := range g.Players {
		cp := *p
		c.Players[id] = &cp
	}
	c.Settings = g.Settings.Clone()
	c.Actions = g.Actions.Clone()
	c.Votes = g.Votes.Clone()
	c.LastActions = g.LastActions.Clone()
	c.LastVotes = g.LastVotes.Clone()
	if g.LastInvestigations != nil {
		c.LastInvestigations = make(map[string]Investigation, len(g.LastInvestigations))
		for id, inv := range g.LastInvestigations {
			c.LastInvestigations[id] = inv
		}
	}
	return &c
}

// PlayerIDs returns every roster id in ascending order.
func (g *Game) PlayerIDs() []string {
	ids := make([]string, 0, len(g.Players))
	for id := range g.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AlivePlayers returns the alive players ordered by id.
func (g *Game) AlivePlayers() []*Player {
	alive := make([]*Player, 0, len(g.Players))
	for _, id := range g.PlayerIDs() {
		if p := g.Players[id]; p.IsAlive {
			alive = append(alive, p)
		}
	}
	return alive
}

// CurrentLedger returns the ledger collecting intents for the active phase.
func (g *Game) CurrentLedger() Ledger {
	if g.Phase == PhaseDay {
		return g.Votes
	}
	return g.Actions
}

// LobbyInfo is one entry of the fixed lobby catalogue
type LobbyInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LobbyStatus is the browse-list summary of a lobby
type LobbyStatus struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      GameStatus `json:"status"`
	PlayerCount int        `json:"playerCount"`
	HostName    string     `json:"hostName,omitempty"`
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Event types
const (
	EventHeartbeat       = "heartbeat"
	EventSubmitAction    = "submit_action"
	EventSubmitVote      = "submit_vote"
	EventAdvance         = "advance"
	EventGameStateUpdate = "game_state_update"
	EventLobbyDeleted    = "lobby_deleted"
	EventError           = "error"
)
