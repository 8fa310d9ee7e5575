package game

import (
	"math/rand"
	"sort"
	"time"

	"github.com/mafia-game/backend/internal/models"
)

// NightResult represents the result of night actions
type NightResult struct {
	Target         string                          // player the mafia chose, if any
	Killed         string                          // empty when nobody died
	Saved          bool                            // the doctor healed the target
	Investigations map[string]models.Investigation // detective id -> result
}

// StartResult reports how many mafia were dealt when a game started
type StartResult struct {
	MafiaCount int  `json:"mafiaCount"`
	Requested  int  `json:"requested"`
	Clamped    bool `json:"clamped"`
}

// ResolveNight applies the night ledger to g. Only alive mafia votes count
// towards the kill; ties at the top go to the lowest player id. An alive
// doctor healing the chosen target cancels the kill.
func ResolveNight(g *models.Game) NightResult {
	tally := make(map[string]int)
	healed := make(map[string]bool)
	result := NightResult{Investigations: make(map[string]models.Investigation)}

	for actorID, a := range g.Actions {
		actor, ok := g.Players[actorID]
		if !ok || !actor.IsAlive {
			continue
		}
		target, ok := g.Players[a.Target()]
		if !ok {
			continue
		}
		switch {
		case actor.Role == models.RoleMafia && a.Kind == models.ActionKill:
			if target.IsAlive {
				tally[target.ID]++
			}
		case actor.Role == models.RoleDoctor && a.Kind == models.ActionHeal:
			healed[target.ID] = true
		case actor.Role == models.RoleDetective && a.Kind == models.ActionInvestigate:
			result.Investigations[actorID] = models.Investigation{TargetID: target.ID, Role: target.Role}
		}
	}

	result.Target = topTarget(tally, false)
	if result.Target == "" {
		return result
	}
	if healed[result.Target] {
		result.Saved = true
		return result
	}
	g.Players[result.Target].Kill(g.Round, models.ReasonMafia)
	result.Killed = result.Target
	return result
}

// ResolveDay applies the day votes to g and returns the eliminated player
// id. No votes or a tie at the top eliminate nobody.
func ResolveDay(g *models.Game) string {
	tally := make(map[string]int)
	for voterID, a := range g.Votes {
		voter, ok := g.Players[voterID]
		if !ok || !voter.IsAlive || a.Kind != models.ActionVote {
			continue
		}
		if target, ok := g.Players[a.Target()]; ok && target.IsAlive {
			tally[target.ID]++
		}
	}

	eliminated := topTarget(tally, true)
	if eliminated != "" {
		g.Players[eliminated].Kill(g.Round, models.ReasonVote)
	}
	return eliminated
}

// topTarget returns the id holding the highest tally. With uniqueOnly a tie
// yields "", otherwise the lowest tied id wins.
func topTarget(tally map[string]int, uniqueOnly bool) string {
	ids := make([]string, 0, len(tally))
	for id := range tally {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best, top, tied := "", 0, false
	for _, id := range ids {
		switch n := tally[id]; {
		case n > top:
			best, top, tied = id, n, false
		case n == top:
			tied = true
		}
	}
	if uniqueOnly && tied {
		return ""
	}
	return best
}

// phaseDue reports whether the active phase may end: everyone alive has
// responded or the deadline has passed.
func phaseDue(g *models.Game, now time.Time) bool {
	if allResponded(g) {
		return true
	}
	return !g.RoundDeadline.IsZero() && !now.Before(g.RoundDeadline)
}

// processPhase ends the active phase if it is due, resolves it and either
// finishes the game or starts the next phase. It returns false when there
// was nothing to do, which makes repeated calls harmless.
func processPhase(g *models.Game, now time.Time) bool {
	if g.Status != models.StatusPlaying {
		return false
	}
	if len(g.AlivePlayers()) == 0 {
		endGame(g, models.WinnerNobody, now)
		return true
	}
	if !phaseDue(g, now) {
		return false
	}

	switch g.Phase {
	case models.PhaseNight:
		res := ResolveNight(g)
		g.LastKilledID = res.Killed
		g.LastInvestigations = res.Investigations
		g.LastActions = g.Actions
		g.LastVotes = make(models.Ledger)
		if settleWinner(g, now) {
			return true
		}
		g.Actions = make(models.Ledger)
		g.Votes = make(models.Ledger)
		startPhase(g, models.PhaseDay, now)

	case models.PhaseDay:
		g.LastEliminatedID = ResolveDay(g)
		g.LastVotes = g.Votes
		if settleWinner(g, now) {
			return true
		}
		g.Round++
		g.Actions = make(models.Ledger)
		g.Votes = make(models.Ledger)
		g.LastActions = make(models.Ledger)
		g.LastInvestigations = nil
		startPhase(g, models.PhaseNight, now)

	default:
		return false
	}
	return true
}

// settleWinner ends the game when nobody is alive or a faction has won.
func settleWinner(g *models.Game, now time.Time) bool {
	if len(g.AlivePlayers()) == 0 {
		endGame(g, models.WinnerNobody, now)
		return true
	}
	if w := CheckWinner(g.Players); w != "" {
		endGame(g, w, now)
		return true
	}
	return false
}

func startPhase(g *models.Game, phase models.GamePhase, now time.Time) {
	minutes := g.Settings.NightTimerMinutes
	if phase == models.PhaseDay {
		minutes = g.Settings.DayTimerMinutes
	}
	g.Phase = phase
	g.PhaseStartedAt = now
	g.RoundDeadline = now.Add(time.Duration(minutes) * time.Minute)
}

func endGame(g *models.Game, winner models.Winner, now time.Time) {
	g.Status = models.StatusEnded
	g.Phase = models.PhaseEnded
	g.Winner = winner
	g.PhaseStartedAt = now
	g.RoundDeadline = time.Time{}
	g.Actions = make(models.Ledger)
	g.Votes = make(models.Ledger)
}

// beginGame deals roles to every non-spectator and opens the first night.
func beginGame(g *models.Game, rng *rand.Rand, now time.Time) StartResult {
	ids := make([]string, 0, len(g.Players))
	for _, id := range g.PlayerIDs() {
		if !g.Players[id].IsSpectator {
			ids = append(ids, id)
		}
	}

	roles := AssignRoles(ids, g.Settings, rng)
	result := StartResult{
		MafiaCount: MafiaSlots(len(ids), g.Settings.MafiaCount),
		Requested:  g.Settings.MafiaCount,
	}
	result.Clamped = result.MafiaCount < result.Requested

	for _, id := range ids {
		p := g.Players[id]
		p.Role = roles[id]
		p.IsAlive = true
		p.EliminatedRound = 0
		p.EliminatedReason = ""
	}

	g.Status = models.StatusPlaying
	g.Round = 1
	g.Winner = ""
	g.StartedAt = now
	g.Actions = make(models.Ledger)
	g.Votes = make(models.Ledger)
	g.LastActions = make(models.Ledger)
	g.LastVotes = make(models.Ledger)
	g.LastInvestigations = nil
	g.LastKilledID = ""
	g.LastEliminatedID = ""
	startPhase(g, models.PhaseNight, now)
	return result
}

// resetToLobby returns g to the lobby keeping roster and settings.
func resetToLobby(g *models.Game) {
	for _, p := range g.Players {
		p.Role = ""
		p.IsAlive = true
		p.IsSpectator = false
		p.EliminatedRound = 0
		p.EliminatedReason = ""
	}
	g.Status = models.StatusLobby
	g.Phase = models.PhaseNone
	g.Round = 0
	g.Winner = ""
	g.RoundDeadline = time.Time{}
	g.PhaseStartedAt = time.Time{}
	g.StartedAt = time.Time{}
	g.Actions = make(models.Ledger)
	g.Votes = make(models.Ledger)
	g.LastActions = make(models.Ledger)
	g.LastVotes = make(models.Ledger)
	g.LastInvestigations = nil
	g.LastKilledID = ""
	g.LastEliminatedID = ""
}
