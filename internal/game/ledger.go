package game

import (
	"time"

	"github.com/mafia-game/backend/internal/models"
)

// nightAction maps each role to the only night action it may submit.
var nightAction = map[models.Role]models.ActionKind{
	models.RoleMafia:     models.ActionKill,
	models.RoleDetective: models.ActionInvestigate,
	models.RoleDoctor:    models.ActionHeal,
	models.RoleVillager:  models.ActionDecoy,
}

// NightActionFor returns the action kind a role submits at night.
func NightActionFor(role models.Role) models.ActionKind {
	return nightAction[role]
}

// RecordSubmission validates one intent against g and writes it into the
// ledger of the active phase. A nil target is an abstain and clears the
// player's slot, so submitting it twice is harmless.
func RecordSubmission(g *models.Game, playerID string, kind models.ActionKind, target *string, now time.Time) error {
	if g == nil || g.Status != models.StatusPlaying {
		return ErrPlayerNotEligible
	}
	p, ok := g.Players[playerID]
	if !ok || !p.IsAlive || p.IsSpectator {
		return ErrPlayerNotEligible
	}

	switch g.Phase {
	case models.PhaseNight:
		if kind == models.ActionVote {
			return ErrWrongPhase
		}
		if nightAction[p.Role] != kind {
			return ErrActionNotAllowed
		}
	case models.PhaseDay:
		if kind != models.ActionVote {
			return ErrWrongPhase
		}
	default:
		return ErrWrongPhase
	}

	ledger := g.CurrentLedger()
	if target == nil {
		ledger.Clear(playerID)
		return nil
	}
	if t, ok := g.Players[*target]; !ok || !t.IsAlive {
		return ErrInvalidTarget
	}

	id := *target
	ledger.Put(&models.Action{
		ActorID:     playerID,
		Kind:        kind,
		TargetID:    &id,
		SubmittedAt: now,
	})
	return nil
}

// allResponded reports whether every alive player has a slot in the ledger
// of the active phase.
func allResponded(g *models.Game) bool {
	ledger := g.CurrentLedger()
	for _, p := range g.AlivePlayers() {
		if !ledger.Has(p.ID) {
			return false
		}
	}
	return true
}

// dropSubmissions removes the player's slots from both ledgers.
func dropSubmissions(g *models.Game, playerID string) {
	g.Actions.Clear(playerID)
	g.Votes.Clear(playerID)
}
