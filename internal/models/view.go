package models

import "time"

// PlayerView is a roster entry as seen by one viewer. Role is empty unless
// the viewer may see it.
type PlayerView struct {
	ID               string            `json:"id"`
	DisplayName      string            `json:"displayName"`
	Color            string            `json:"color"`
	IsAlive          bool              `json:"isAlive"`
	Role             Role              `json:"role,omitempty"`
	IsSpectator      bool              `json:"isSpectator"`
	IsHost           bool              `json:"isHost"`
	EliminatedRound  int               `json:"eliminatedRound,omitempty"`
	EliminatedReason EliminationReason `json:"eliminatedReason,omitempty"`
}

// GameView is the read model published to one subscriber
type GameView struct {
	LobbyID          string         `json:"lobbyId"`
	ViewerID         string         `json:"viewerId,omitempty"`
	Status           GameStatus     `json:"status"`
	Phase            GamePhase      `json:"phase"`
	Round            int            `json:"round"`
	HostID           string         `json:"hostId"`
	Players          []PlayerView   `json:"players"`
	Settings         Settings       `json:"settings"`
	Winner           Winner         `json:"winner,omitempty"`
	RoundDeadline    *time.Time     `json:"roundDeadline,omitempty"`
	Responded        []string       `json:"responded"`
	MyAction         *Action        `json:"myAction,omitempty"`
	MyLastAction     *Action        `json:"myLastAction,omitempty"`
	Investigation    *Investigation `json:"investigation,omitempty"`
	LastVotes        Ledger         `json:"lastVotes"`
	LastKilledID     string         `json:"lastKilledId,omitempty"`
	LastEliminatedID string         `json:"lastEliminatedId,omitempty"`
	Version          int64          `json:"version"`
}

// NewGameView builds the snapshot viewerID is allowed to see. A player's
// role is visible to that player, to everyone once the game has ended, to
// fellow mafia, and for dead players when the lobby reveals roles on death. Night actions and
// investigation results only reach their submitter.
func NewGameView(g *Game, viewerID string) *GameView {
	v := &GameView{
		LobbyID:          g.LobbyID,
		ViewerID:         viewerID,
		Status:           g.Status,
		Phase:            g.Phase,
		Round:            g.Round,
		HostID:           g.HostID,
		Players:          make([]PlayerView, 0, len(g.Players)),
		Settings:         g.Settings.Clone(),
		Winner:           g.Winner,
		Responded:        []string{},
		LastVotes:        g.LastVotes.Clone(),
		LastKilledID:     g.LastKilledID,
		LastEliminatedID: g.LastEliminatedID,
		Version:          g.Version,
	}
	if viewerID != g.HostID {
		v.Settings.MafiaProbability = map[string]int{}
	}
	if !g.RoundDeadline.IsZero() {
		d := g.RoundDeadline
		v.RoundDeadline = &d
	}

	for _, id := range g.PlayerIDs() {
		p := g.Players[id]
		pv := PlayerView{
			ID:               p.ID,
			DisplayName:      p.DisplayName,
			Color:            p.Color,
			IsAlive:          p.IsAlive,
			IsSpectator:      p.IsSpectator,
			IsHost:           p.ID == g.HostID,
			EliminatedRound:  p.EliminatedRound,
			EliminatedReason: p.EliminatedReason,
		}
		if roleVisible(g, p, viewerID) {
			pv.Role = p.Role
		}
		v.Players = append(v.Players, pv)
	}

	if g.Status == StatusPlaying {
		ledger := g.CurrentLedger()
		for _, p := range g.AlivePlayers() {
			if ledger.Has(p.ID) {
				v.Responded = append(v.Responded, p.ID)
			}
		}
		if a, ok := ledger[viewerID]; ok {
			v.MyAction = a.clone()
		}
	}
	if a, ok := g.LastActions[viewerID]; ok {
		v.MyLastAction = a.clone()
	}
	if inv, ok := g.LastInvestigations[viewerID]; ok {
		v.Investigation = &inv
	}
	return v
}

func roleVisible(g *Game, p *Player, viewerID string) bool {
	switch {
	case p.Role == "":
		return false
	case p.ID == viewerID:
		return true
	case g.Status == StatusEnded:
		return true
	case g.Settings.RevealOnDeath && !p.IsAlive && !p.IsSpectator:
		return true
	case p.Role == RoleMafia:
		// mafia know their team
		viewer, ok := g.Players[viewerID]
		return ok && viewer.Role == RoleMafia
	}
	return false
}
