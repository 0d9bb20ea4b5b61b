package alarm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"trafficmon/internal/model"
)

const idPrefix = "alarm_"

// TopicCreated is the broadcast topic for newly raised alarms.
const TopicCreated = "alarms.created"

// Storage is the durable sink for the full alarm collection.
type Storage interface {
	SaveAlarms(ctx context.Context, alarms []model.Alarm) error
	LoadAlarms(ctx context.Context) ([]model.Alarm, error)
}

// Sink receives every new alarm, best-effort.
type Sink interface {
	Publish(topic string, payload any)
}

// Ledger owns the alarm collection. All operations are serialized under
// one mutex so id assignment and persistence stay atomic with respect
// to each other. Persistence failures never fail the caller.
type Ledger struct {
	mu     sync.Mutex
	logger *slog.Logger
	store  Storage
	sink   Sink
	alarms []model.Alarm
	nextID int
}

// NewLedger restores the persisted collection and continues the id
// sequence past the highest id seen, so ids stay unique across restarts.
func NewLedger(ctx context.Context, store Storage, sink Sink, logger *slog.Logger) *Ledger {
	l := &Ledger{logger: logger, store: store, sink: sink, nextID: 1}
	if store == nil {
		return l
	}
	alarms, err := store.LoadAlarms(ctx)
	if err != nil {
		if logger != nil {
			logger.Warn("alarm history load failed, starting fresh", "err", err)
		}
		return l
	}
	l.alarms = alarms
	for _, a := range alarms {
		if n, ok := parseID(a.ID); ok && n >= l.nextID {
			l.nextID = n + 1
		}
	}
	if logger != nil {
		logger.Info("alarm history loaded", "count", len(alarms))
	}
	return l
}

// Add assigns a fresh id, stamps creation time and active status,
// appends, persists and broadcasts. The returned alarm is a copy.
func (l *Ledger) Add(ctx context.Context, spec model.AlarmSpec) model.Alarm {
	l.mu.Lock()
	message := spec.Message
	if message == "" {
		message = fmt.Sprintf("%s detected in %s lane", spec.Type, spec.Lane)
	}
	alarm := model.Alarm{
		ID:        idPrefix + strconv.Itoa(l.nextID),
		Type:      spec.Type,
		Lane:      spec.Lane,
		Class:     spec.Class,
		CreatedAt: time.Now().UTC(),
		Status:    model.AlarmActive,
		Message:   message,
		Count:     spec.Count,
		MaxCount:  spec.MaxCount,
		Speed:     spec.Speed,
		Duration:  spec.Duration,
		Extra:     spec.Extra,
	}
	l.nextID++
	l.alarms = append(l.alarms, cloneAlarm(alarm))
	l.persistLocked(ctx)
	l.mu.Unlock()

	if l.sink != nil {
		l.sink.Publish(TopicCreated, alarm)
	}
	if l.logger != nil {
		l.logger.Warn("alarm raised",
			"id", alarm.ID,
			"type", alarm.Type,
			"lane", alarm.Lane,
			"class", alarm.Class,
		)
	}
	return alarm
}

// ListAll returns a defensive copy in insertion order.
func (l *Ledger) ListAll() []model.Alarm {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Alarm, len(l.alarms))
	for i, a := range l.alarms {
		out[i] = cloneAlarm(a)
	}
	return out
}

// ListActive returns the active subset in insertion order.
func (l *Ledger) ListActive() []model.Alarm {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Alarm, 0)
	for _, a := range l.alarms {
		if a.Status == model.AlarmActive {
			out = append(out, cloneAlarm(a))
		}
	}
	return out
}

// cloneAlarm copies the pointer and map fields so callers cannot write
// through a listed alarm into ledger state.
func cloneAlarm(a model.Alarm) model.Alarm {
	if a.ClearedAt != nil {
		ts := *a.ClearedAt
		a.ClearedAt = &ts
	}
	if a.Extra != nil {
		extra := make(map[string]string, len(a.Extra))
		for k, v := range a.Extra {
			extra[k] = v
		}
		a.Extra = extra
	}
	return a
}

// ActiveCount returns the number of active alarms.
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, a := range l.alarms {
		if a.Status == model.AlarmActive {
			n++
		}
	}
	return n
}

// Clear flips the matching active alarms to cleared. Unknown or already
// cleared ids are ignored. Persists once per batch.
func (l *Ledger) Clear(ctx context.Context, ids []string) int {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cleared := 0
	now := time.Now().UTC()
	for i := range l.alarms {
		if _, ok := wanted[l.alarms[i].ID]; !ok {
			continue
		}
		if l.alarms[i].Status != model.AlarmActive {
			continue
		}
		l.alarms[i].Status = model.AlarmCleared
		ts := now
		l.alarms[i].ClearedAt = &ts
		cleared++
	}
	if cleared > 0 {
		l.persistLocked(ctx)
	}
	return cleared
}

// Delete removes one alarm permanently. Returns false when not found.
func (l *Ledger) Delete(ctx context.Context, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.alarms {
		if l.alarms[i].ID == id {
			l.alarms = append(l.alarms[:i], l.alarms[i+1:]...)
			l.persistLocked(ctx)
			return true
		}
	}
	return false
}

// DeleteAll removes every alarm and returns how many were dropped. The
// id sequence keeps counting so ids are never reused.
func (l *Ledger) DeleteAll(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.alarms)
	l.alarms = nil
	l.persistLocked(ctx)
	return n
}

// Reset drops the collection and restarts the id sequence.
func (l *Ledger) Reset(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alarms = nil
	l.nextID = 1
	l.persistLocked(ctx)
}

func (l *Ledger) persistLocked(ctx context.Context) {
	if l.store == nil {
		return
	}
	snapshot := make([]model.Alarm, len(l.alarms))
	copy(snapshot, l.alarms)
	if err := l.store.SaveAlarms(ctx, snapshot); err != nil && l.logger != nil {
		l.logger.Warn("alarm persist failed", "err", err)
	}
}

func parseID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}
