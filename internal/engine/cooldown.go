package engine

import (
	"sync"
	"time"

	"trafficmon/internal/model"
)

// Cooldown tracks when each counter key last fired. A key inside its
// cooldown window is suppressed; last-fired advances only on a fire, so
// a sustained violation produces one alarm per window, not one per tick.
type Cooldown struct {
	mu   sync.Mutex
	last map[model.CounterKey]time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[model.CounterKey]time.Time)}
}

// Allow reports whether the key may fire at now, recording the fire
// time when it does.
func (c *Cooldown) Allow(key model.CounterKey, now time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.last[key]; ok {
		if now.Sub(ts) < cooldown {
			return false
		}
	}
	c.last[key] = now
	return true
}

// Reset forgets all fire times.
func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = make(map[model.CounterKey]time.Time)
}
