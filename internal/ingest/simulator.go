package ingest

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"trafficmon/internal/model"
)

// Simulator stands in for the detector, producing random per-class
// increments in the same ranges the production detector is tuned for.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulator(seed int64) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

func (s *Simulator) Pull(_ context.Context) (model.ObservationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.ObservationBatch{
		In: model.ClassCounts{
			model.ClassTwoWheeler:   s.rng.Intn(6),
			model.ClassLightVehicle: s.rng.Intn(4),
			model.ClassHeavyVehicle: s.rng.Intn(3),
		},
		Out: model.ClassCounts{
			model.ClassTwoWheeler:   s.rng.Intn(5),
			model.ClassLightVehicle: s.rng.Intn(3),
			model.ClassHeavyVehicle: s.rng.Intn(2),
		},
	}, nil
}
