package engine

import (
	"fmt"
	"log/slog"
	"time"

	"trafficmon/internal/model"
	"trafficmon/internal/policy"
)

// Engine evaluates a counter snapshot against the active policy and
// emits violations for counters strictly above their limit.
type Engine struct {
	logger   *slog.Logger
	cooldown *Cooldown
	window   time.Duration
}

// New builds an engine with the given cooldown window between alarms
// for the same counter key.
func New(cooldownWindow time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		logger:   logger,
		cooldown: NewCooldown(),
		window:   cooldownWindow,
	}
}

// Evaluate walks lanes and classes in a fixed order so output order is
// reproducible. A counter key without a policy entry is skipped; a key
// at exactly its limit does not fire.
func (e *Engine) Evaluate(snap model.Snapshot, table *policy.Table, now time.Time) []model.Violation {
	if table == nil {
		return nil
	}
	var violations []model.Violation
	for _, lane := range model.Lanes() {
		counts := snap.In
		if lane == model.LaneOut {
			counts = snap.Out
		}
		for _, class := range model.VehicleClasses() {
			limit, ok := table.Get(lane, class)
			if !ok {
				if e.logger != nil {
					e.logger.Debug("no policy entry, skipping", "lane", lane, "class", class)
				}
				continue
			}
			count := counts[class]
			if count <= limit.MaxCount {
				continue
			}
			key := model.CounterKey{Lane: lane, Class: class}
			if !e.cooldown.Allow(key, now, e.window) {
				continue
			}
			violations = append(violations, model.Violation{
				Lane:       lane,
				Class:      class,
				Count:      count,
				MaxCount:   limit.MaxCount,
				WindowSec:  limit.WindowSec,
				Message:    fmt.Sprintf("%s count exceeded in %s lane: %d (limit: %d)", class, lane, count, limit.MaxCount),
				DetectedAt: now,
			})
		}
	}
	return violations
}

// Crossed lists every counter currently above its limit, ignoring
// cooldown. This feeds the snapshot's thresholds_crossed field, which
// reflects present state; cooldown only gates alarm emission.
func (e *Engine) Crossed(snap model.Snapshot, table *policy.Table, now time.Time) []model.Violation {
	if table == nil {
		return nil
	}
	var crossed []model.Violation
	for _, lane := range model.Lanes() {
		counts := snap.In
		if lane == model.LaneOut {
			counts = snap.Out
		}
		for _, class := range model.VehicleClasses() {
			limit, ok := table.Get(lane, class)
			if !ok {
				continue
			}
			count := counts[class]
			if count <= limit.MaxCount {
				continue
			}
			crossed = append(crossed, model.Violation{
				Lane:       lane,
				Class:      class,
				Count:      count,
				MaxCount:   limit.MaxCount,
				WindowSec:  limit.WindowSec,
				Message:    fmt.Sprintf("%s count exceeded in %s lane: %d (limit: %d)", class, lane, count, limit.MaxCount),
				DetectedAt: now,
			})
		}
	}
	return crossed
}

// Reset forgets cooldown state, typically alongside a counter reset.
func (e *Engine) Reset() {
	e.cooldown.Reset()
}
