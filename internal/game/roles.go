package game

import (
	"math/rand"
	"sort"

	"github.com/mafia-game/backend/internal/models"
)

// MinPlayers is the smallest roster that can start a game.
const MinPlayers = 4

// DefaultMafiaWeight applies to players without a configured probability.
const DefaultMafiaWeight = 50

// MafiaSlots returns how many mafia a roster of n gets: the requested count
// capped at a third of the table.
func MafiaSlots(n, requested int) int {
	slots := n / 3
	if requested < slots {
		slots = requested
	}
	if slots < 0 {
		slots = 0
	}
	return slots
}

// AssignRoles deals roles to the given players. Mafia are drawn one at a
// time without replacement, each draw proportional to the remaining
// players' weights; when every remaining weight is zero the draw is uniform.
// The rest are shuffled and get detective, then doctor, then villager.
// The result depends only on the player set, settings and rng state.
func AssignRoles(playerIDs []string, settings models.Settings, rng *rand.Rand) map[string]models.Role {
	remaining := append([]string(nil), playerIDs...)
	sort.Strings(remaining)

	roles := make(map[string]models.Role, len(remaining))
	mafia := MafiaSlots(len(remaining), settings.MafiaCount)
	for i := 0; i < mafia; i++ {
		idx := weightedPick(remaining, settings.MafiaProbability, rng)
		roles[remaining[idx]] = models.RoleMafia
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}

	rng.Shuffle(len(remaining), func(i, j int) {
		remaining[i], remaining[j] = remaining[j], remaining[i]
	})

	next := 0
	if settings.HasDetective && next < len(remaining) {
		roles[remaining[next]] = models.RoleDetective
		next++
	}
	if settings.HasDoctor && next < len(remaining) {
		roles[remaining[next]] = models.RoleDoctor
		next++
	}
	for _, id := range remaining[next:] {
		roles[id] = models.RoleVillager
	}
	return roles
}

func weightedPick(ids []string, weights map[string]int, rng *rand.Rand) int {
	total := 0
	for _, id := range ids {
		total += mafiaWeight(weights, id)
	}
	if total == 0 {
		return rng.Intn(len(ids))
	}

	r := rng.Intn(total)
	for i, id := range ids {
		r -= mafiaWeight(weights, id)
		if r < 0 {
			return i
		}
	}
	return len(ids) - 1
}

func mafiaWeight(weights map[string]int, id string) int {
	w, ok := weights[id]
	if !ok {
		return DefaultMafiaWeight
	}
	if w < 0 {
		return 0
	}
	if w > 100 {
		return 100
	}
	return w
}
