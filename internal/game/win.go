package game

import "github.com/mafia-game/backend/internal/models"

// CheckWinner evaluates the alive roster. Villagers win once no mafia is
// alive, mafia win when they equal or outnumber everyone else, otherwise
// the game goes on and the result is empty.
func CheckWinner(players map[string]*models.Player) models.Winner {
	aliveMafia, alive := 0, 0
	for _, p := range players {
		if !p.IsAlive {
			continue
		}
		alive++
		if p.Role == models.RoleMafia {
			aliveMafia++
		}
	}

	if aliveMafia == 0 {
		return models.WinnerVillagers
	}
	if aliveMafia >= alive-aliveMafia {
		return models.WinnerMafia
	}
	return ""
}
