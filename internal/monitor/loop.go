package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"trafficmon/internal/alarm"
	"trafficmon/internal/counter"
	"trafficmon/internal/engine"
	"trafficmon/internal/ingest"
	"trafficmon/internal/metrics"
	"trafficmon/internal/model"
	"trafficmon/internal/policy"
)

// Tick interval bounds for operator-supplied values.
const (
	MinInterval = 5 * time.Second
	MaxInterval = 300 * time.Second
)

// TopicState is the broadcast topic for per-tick state snapshots.
const TopicState = "state"

// ErrAlreadyRunning is returned by Start when the loop is running.
var ErrAlreadyRunning = errors.New("monitor loop already running")

// ClampInterval forces an interval into the allowed range.
func ClampInterval(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	if d > MaxInterval {
		return MaxInterval
	}
	return d
}

// StatePayload is what subscribers receive after every tick: the full
// snapshot plus the interval the loop actually used.
type StatePayload struct {
	model.Snapshot
	IntervalSec int `json:"interval_sec"`
}

// Sink receives state snapshots, best-effort.
type Sink interface {
	Publish(topic string, payload any)
}

// Loop is the scheduler: one goroutine runs the tick sequence to
// completion, sleeps for the configured interval, and repeats. Ticks
// never overlap; all counter and ledger mutations happen inside the
// single-threaded tick body.
type Loop struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	interval atomic.Int64

	counters *counter.Store
	policies *policy.Holder
	engine   *engine.Engine
	ledger   *alarm.Ledger
	source   ingest.Source
	sink     Sink
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewLoop(
	counters *counter.Store,
	policies *policy.Holder,
	eng *engine.Engine,
	ledger *alarm.Ledger,
	source ingest.Source,
	sink Sink,
	m *metrics.Metrics,
	interval time.Duration,
	logger *slog.Logger,
) *Loop {
	l := &Loop{
		counters: counters,
		policies: policies,
		engine:   eng,
		ledger:   ledger,
		source:   source,
		sink:     sink,
		metrics:  m,
		logger:   logger,
	}
	l.interval.Store(int64(ClampInterval(interval)))
	return l
}

// Interval returns the interval the next tick will sleep for.
func (l *Loop) Interval() time.Duration {
	return time.Duration(l.interval.Load())
}

// SetInterval clamps and stores a new interval. It takes effect after
// the tick in flight, never interrupting one. Returns the value used.
func (l *Loop) SetInterval(d time.Duration) time.Duration {
	clamped := ClampInterval(d)
	l.interval.Store(int64(clamped))
	if l.logger != nil {
		l.logger.Info("monitor interval updated", "interval", clamped)
	}
	return clamped
}

// Start moves the loop to Running. Starting twice is an error.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true
	l.counters.SetStatus(counter.StatusProcessing)
	go l.run(ctx, l.done)
	if l.logger != nil {
		l.logger.Info("monitor loop started", "interval", l.Interval())
	}
	return nil
}

// Stop cancels the loop and waits for the goroutine to exit. A tick in
// flight finishes first, so shared state is never left half-updated.
// Safe to call when stopped.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	// Cancel while still holding the lock: a Start racing with Stop must
	// never observe running=false with the old goroutine not yet signalled.
	l.cancel()
	done := l.done
	l.running = false
	l.mu.Unlock()

	<-done
	l.counters.SetStatus(counter.StatusStopped)
	if l.logger != nil {
		l.logger.Info("monitor loop stopped")
	}
}

// Running reports the current lifecycle state.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(l.Interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		l.Tick(ctx)
		timer.Reset(l.Interval())
	}
}

// Tick runs one update-evaluate-publish sequence. Exported so tests and
// operator tooling can drive the loop synchronously.
func (l *Loop) Tick(ctx context.Context) {
	now := time.Now().UTC()
	batch, err := l.source.Pull(ctx)
	if err != nil {
		// No data this tick: counters stay unchanged, retry next tick.
		if l.logger != nil {
			l.logger.Warn("observation pull failed", "err", err)
		}
	} else {
		l.counters.Update(batch, now)
	}

	table := l.policies.Current()
	snap := l.counters.Snapshot(now)
	if crossed := l.engine.Crossed(snap, table, now); len(crossed) > 0 {
		snap.ThresholdsCrossed = crossed
	}

	for _, v := range l.engine.Evaluate(snap, table, now) {
		l.ledger.Add(ctx, model.AlarmSpec{
			Type:     model.AlarmTypeThresholdExceeded,
			Lane:     v.Lane,
			Class:    v.Class,
			Count:    v.Count,
			MaxCount: v.MaxCount,
			Message:  v.Message,
		})
		if l.metrics != nil {
			l.metrics.AlarmsRaised.Add(1)
		}
	}

	if l.sink != nil {
		l.sink.Publish(TopicState, StatePayload{
			Snapshot:    snap,
			IntervalSec: int(l.Interval().Seconds()),
		})
	}
	if l.metrics != nil {
		l.metrics.TicksRun.Add(1)
	}
}
