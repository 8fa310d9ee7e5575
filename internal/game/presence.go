package game

import (
	"sync"
	"time"
)

// presence tracks the last heartbeat per player. It lives outside the game
// aggregate so heartbeats never contend with phase transitions.
type presence struct {
	seen map[string]time.Time
	mu   sync.RWMutex
}

func newPresence() *presence {
	return &presence{seen: make(map[string]time.Time)}
}

func (p *presence) touch(playerID string, now time.Time) {
	p.mu.Lock()
	p.seen[playerID] = now
	p.mu.Unlock()
}

// lastSeen returns the last heartbeat, or fallback when none was recorded.
func (p *presence) lastSeen(playerID string, fallback time.Time) time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if t, ok := p.seen[playerID]; ok {
		return t
	}
	return fallback
}

func (p *presence) forget(playerID string) {
	p.mu.Lock()
	delete(p.seen, playerID)
	p.mu.Unlock()
}
