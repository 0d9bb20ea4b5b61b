package counter

import (
	"math"
	"sync"
	"time"

	"trafficmon/internal/model"
)

const (
	StatusWaiting    = "Waiting for monitoring to start..."
	StatusProcessing = "Processing observations..."
	StatusStopped    = "Monitoring stopped"
)

// Store aggregates per-lane, per-class vehicle counts and derived
// per-minute rates. Totals are throughput: total = in + out.
type Store struct {
	mu         sync.Mutex
	in         model.ClassCounts
	out        model.ClassCounts
	total      model.ClassCounts
	rates      map[model.VehicleClass]float64
	prevTotal  model.ClassCounts
	lastRateAt time.Time
	status     string
}

func NewStore(now time.Time) *Store {
	s := &Store{status: StatusWaiting}
	s.zero(now)
	return s
}

// Update applies non-negative increments and recomputes totals. Rates
// are resampled at most once per second to keep the divisor meaningful.
func (s *Store) Update(batch model.ObservationBatch, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, class := range model.VehicleClasses() {
		if n := batch.In[class]; n > 0 {
			s.in[class] += n
		}
		if n := batch.Out[class]; n > 0 {
			s.out[class] += n
		}
		s.total[class] = s.in[class] + s.out[class]
	}
	if elapsed := now.Sub(s.lastRateAt); elapsed >= time.Second {
		for _, class := range model.VehicleClasses() {
			delta := s.total[class] - s.prevTotal[class]
			s.rates[class] = math.Round(float64(delta)/elapsed.Seconds()*60*10) / 10
			s.prevTotal[class] = s.total[class]
		}
		s.lastRateAt = now
	}
}

// Count returns the current count for one counter key.
func (s *Store) Count(key model.CounterKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key.Lane == model.LaneIn {
		return s.in[key.Class]
	}
	return s.out[key.Class]
}

// Snapshot returns a deep copy of the counter state. ThresholdsCrossed
// is left empty; the monitor fills it after evaluation.
func (s *Store) Snapshot(now time.Time) model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	rates := make(map[model.VehicleClass]float64, len(s.rates))
	for class, r := range s.rates {
		rates[class] = r
	}
	return model.Snapshot{
		Total:             copyCounts(s.total),
		In:                copyCounts(s.in),
		Out:               copyCounts(s.out),
		Rates:             rates,
		ThresholdsCrossed: []model.Violation{},
		ProcessingStatus:  s.status,
		TakenAt:           now,
	}
}

// Reset zeroes all counts and rates and restarts rate sampling.
func (s *Store) Reset(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zero(now)
	s.status = StatusWaiting
}

func (s *Store) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Store) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Store) zero(now time.Time) {
	s.in = make(model.ClassCounts)
	s.out = make(model.ClassCounts)
	s.total = make(model.ClassCounts)
	s.prevTotal = make(model.ClassCounts)
	s.rates = make(map[model.VehicleClass]float64)
	for _, class := range model.VehicleClasses() {
		s.in[class] = 0
		s.out[class] = 0
		s.total[class] = 0
		s.prevTotal[class] = 0
		s.rates[class] = 0
	}
	s.lastRateAt = now
}

func copyCounts(src model.ClassCounts) model.ClassCounts {
	out := make(model.ClassCounts, len(src))
	for class, n := range src {
		out[class] = n
	}
	return out
}
