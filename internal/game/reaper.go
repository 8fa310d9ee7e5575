package game

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mafia-game/backend/internal/models"
)

// RunReaper evicts stale players every interval until ctx is done.
func (gm *GameManager) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gm.ReapStale(ctx)
		}
	}
}

// ReapStale runs one eviction pass over every lobby with a record.
func (gm *GameManager) ReapStale(ctx context.Context) {
	for _, l := range gm.activeLobbies() {
		if l.Snapshot() == nil {
			continue
		}
		if err := l.mutateSystem(ctx, "evict", true, gm.evictStale); err != nil {
			log.Warn().Err(err).Str("lobby", l.ID()).Msg("stale eviction failed")
		}
	}
}

// evictStale decides staleness against the aggregate it is applied to, so
// a player who became active or left in the meantime is judged correctly.
func (gm *GameManager) evictStale(g *models.Game, now time.Time) (*models.Game, error) {
	if g == nil {
		return nil, errUnchanged
	}

	cutoff := now.Add(-gm.threshold)
	stale := make(map[string]bool)
	for id, p := range g.Players {
		if gm.presence.lastSeen(id, p.JoinedAt).Before(cutoff) {
			stale[id] = true
		}
	}
	if len(stale) == 0 {
		return nil, errUnchanged
	}
	if len(stale) == len(g.Players) {
		log.Info().Str("lobby", g.LobbyID).Int("players", len(stale)).Msg("every player is inactive, deleting lobby")
		return nil, nil
	}

	if g.Status != models.StatusPlaying {
		for id := range stale {
			removePlayer(g, id)
		}
		log.Info().Str("lobby", g.LobbyID).Int("removed", len(stale)).Msg("inactive players removed")
		return g, nil
	}

	changed := false
	for id := range stale {
		p := g.Players[id]
		switch {
		case p.IsSpectator:
			removePlayer(g, id)
			changed = true
		case p.IsAlive:
			p.Kill(g.Round, models.ReasonInactive)
			dropSubmissions(g, id)
			changed = true
		}
	}
	if len(g.AlivePlayers()) == 0 {
		log.Info().Str("lobby", g.LobbyID).Int("round", g.Round).Msg("no active players left, deleting game")
		return nil, nil
	}
	if stale[g.HostID] {
		if host := pickHost(g, stale); host != "" && host != g.HostID {
			g.HostID = host
			changed = true
		}
	}
	if !changed {
		return nil, errUnchanged
	}
	log.Info().Str("lobby", g.LobbyID).Int("round", g.Round).Int("stale", len(stale)).Msg("inactive players marked dead")
	settleWinner(g, now)
	return g, nil
}
