package game

import (
	"math/rand"

	"github.com/mafia-game/backend/internal/models"
)

// Palette holds the player colours, chosen to be far apart from each other.
var Palette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A", "#98D8C8",
	"#F7DC6F", "#BB8FCE", "#85C1E2", "#F8B739", "#E74C3C",
	"#3498DB", "#2ECC71", "#9B59B6", "#E67E22", "#1ABC9C",
	"#34495E", "#F39C12", "#E91E63", "#00BCD4", "#8BC34A",
}

// pickColor returns a random palette colour nobody on the roster uses.
// Once the palette is exhausted any colour is returned.
func pickColor(players map[string]*models.Player, rng *rand.Rand) string {
	used := make(map[string]bool, len(players))
	for _, p := range players {
		used[p.Color] = true
	}

	free := make([]string, 0, len(Palette))
	for _, c := range Palette {
		if !used[c] {
			free = append(free, c)
		}
	}
	if len(free) == 0 {
		return Palette[rng.Intn(len(Palette))]
	}
	return free[rng.Intn(len(free))]
}
