package models

// Settings are the host-controlled options of a lobby
type Settings struct {
	MafiaCount        int            `json:"mafiaCount"`
	HasDetective      bool           `json:"hasDetective"`
	HasDoctor         bool           `json:"hasDoctor"`
	DayTimerMinutes   int            `json:"dayTimerMinutes"`
	NightTimerMinutes int            `json:"nightTimerMinutes"`
	RevealOnDeath     bool           `json:"revealOnDeath"`
	MafiaProbability  map[string]int `json:"mafiaProbability"` // player id -> weight in [0,100]
}

// DefaultSettings returns the settings a new lobby starts with
func DefaultSettings() Settings {
	return Settings{
		MafiaCount:        2,
		HasDetective:      true,
		HasDoctor:         true,
		DayTimerMinutes:   5,
		NightTimerMinutes: 1,
		RevealOnDeath:     false,
		MafiaProbability:  map[string]int{},
	}
}

// Clone copies the settings including the weight map.
func (s Settings) Clone() Settings {
	c := s
	c.MafiaProbability = make(map[string]int, len(s.MafiaProbability))
	for id, w := range s.MafiaProbability {
		c.MafiaProbability[id] = w
	}
	return c
}

// SettingsPatch is a partial update; nil fields are left untouched
type SettingsPatch struct {
	MafiaCount        *int           `json:"mafiaCount,omitempty"`
	HasDetective      *bool          `json:"hasDetective,omitempty"`
	HasDoctor         *bool          `json:"hasDoctor,omitempty"`
	DayTimerMinutes   *int           `json:"dayTimerMinutes,omitempty"`
	NightTimerMinutes *int           `json:"nightTimerMinutes,omitempty"`
	RevealOnDeath     *bool          `json:"revealOnDeath,omitempty"`
	MafiaProbability  map[string]int `json:"mafiaProbability,omitempty"`
}

// Merge applies the patch on top of s. Weights are merged per player.
func (s Settings) Merge(p SettingsPatch) Settings {
	c := s.Clone()
	if p.MafiaCount != nil {
		c.MafiaCount = *p.MafiaCount
	}
	if p.HasDetective != nil {
		c.HasDetective = *p.HasDetective
	}
	if p.HasDoctor != nil {
		c.HasDoctor = *p.HasDoctor
	}
	if p.DayTimerMinutes != nil {
		c.DayTimerMinutes = *p.DayTimerMinutes
	}
	if p.NightTimerMinutes != nil {
		c.NightTimerMinutes = *p.NightTimerMinutes
	}
	if p.RevealOnDeath != nil {
		c.RevealOnDeath = *p.RevealOnDeath
	}
	for id, w := range p.MafiaProbability {
		c.MafiaProbability[id] = w
	}
	return c
}
