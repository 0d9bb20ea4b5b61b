package counter

import (
	"testing"
	"time"

	"trafficmon/internal/model"
)

func TestUpdateAdditivity(t *testing.T) {
	base := time.Now().UTC()
	one := NewStore(base)
	many := NewStore(base)

	batch := model.ObservationBatch{
		In:  model.ClassCounts{model.ClassTwoWheeler: 2, model.ClassLightVehicle: 1},
		Out: model.ClassCounts{model.ClassLightVehicle: 3, model.ClassHeavyVehicle: 1},
	}
	total := model.ObservationBatch{
		In:  model.ClassCounts{model.ClassTwoWheeler: 10, model.ClassLightVehicle: 5},
		Out: model.ClassCounts{model.ClassLightVehicle: 15, model.ClassHeavyVehicle: 5},
	}

	for i := 0; i < 5; i++ {
		many.Update(batch, base.Add(time.Duration(i)*time.Millisecond))
	}
	one.Update(total, base.Add(time.Millisecond))

	a := one.Snapshot(base.Add(time.Second))
	b := many.Snapshot(base.Add(time.Second))
	for _, class := range model.VehicleClasses() {
		if a.In[class] != b.In[class] || a.Out[class] != b.Out[class] || a.Total[class] != b.Total[class] {
			t.Fatalf("batching changed totals for %s: %+v vs %+v", class, a, b)
		}
	}
	if b.Total[model.ClassLightVehicle] != 20 {
		t.Fatalf("expected LMV total 20, got %d", b.Total[model.ClassLightVehicle])
	}
}

func TestNegativeIncrementsIgnored(t *testing.T) {
	base := time.Now().UTC()
	s := NewStore(base)
	s.Update(model.ObservationBatch{
		In: model.ClassCounts{model.ClassTwoWheeler: -5},
	}, base.Add(time.Millisecond))
	if got := s.Count(model.CounterKey{Lane: model.LaneIn, Class: model.ClassTwoWheeler}); got != 0 {
		t.Fatalf("expected 0 after negative increment, got %d", got)
	}
}

func TestRateSampling(t *testing.T) {
	base := time.Now().UTC()
	s := NewStore(base)
	batch := model.ObservationBatch{In: model.ClassCounts{model.ClassLightVehicle: 5}}

	// Below the one second sampling floor: rate stays zero.
	s.Update(batch, base.Add(500*time.Millisecond))
	snap := s.Snapshot(base.Add(500 * time.Millisecond))
	if snap.Rates[model.ClassLightVehicle] != 0 {
		t.Fatalf("rate sampled too early: %v", snap.Rates[model.ClassLightVehicle])
	}

	// 10 vehicles over 2 seconds = 300/min.
	s.Update(batch, base.Add(2*time.Second))
	snap = s.Snapshot(base.Add(2 * time.Second))
	if snap.Rates[model.ClassLightVehicle] != 300 {
		t.Fatalf("expected rate 300, got %v", snap.Rates[model.ClassLightVehicle])
	}
}

func TestResetZeroesEverything(t *testing.T) {
	base := time.Now().UTC()
	s := NewStore(base)
	s.Update(model.ObservationBatch{
		In:  model.ClassCounts{model.ClassTwoWheeler: 7},
		Out: model.ClassCounts{model.ClassHeavyVehicle: 3},
	}, base.Add(2*time.Second))

	s.Reset(base.Add(3 * time.Second))
	snap := s.Snapshot(base.Add(3 * time.Second))
	for _, class := range model.VehicleClasses() {
		if snap.In[class] != 0 || snap.Out[class] != 0 || snap.Total[class] != 0 {
			t.Fatalf("counts not zeroed for %s", class)
		}
		if snap.Rates[class] != 0 {
			t.Fatalf("rates not zeroed for %s", class)
		}
	}
	if len(snap.ThresholdsCrossed) != 0 {
		t.Fatalf("expected empty thresholds_crossed after reset")
	}
	if snap.ProcessingStatus != StatusWaiting {
		t.Fatalf("expected waiting status after reset, got %q", snap.ProcessingStatus)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	base := time.Now().UTC()
	s := NewStore(base)
	snap := s.Snapshot(base)
	snap.In[model.ClassTwoWheeler] = 99
	if got := s.Count(model.CounterKey{Lane: model.LaneIn, Class: model.ClassTwoWheeler}); got != 0 {
		t.Fatalf("snapshot mutation leaked into store: %d", got)
	}
}
