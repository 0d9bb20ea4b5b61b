package engine

import (
	"testing"
	"time"

	"trafficmon/internal/model"
	"trafficmon/internal/policy"
)

func outOnlyTable(maxCount int) *policy.Table {
	return policy.NewTable(policy.Spec{
		Out: map[model.VehicleClass]policy.Limit{
			model.ClassLightVehicle: {MaxCount: maxCount, WindowSec: 5},
		},
	}, 1)
}

func snapshotWithOut(class model.VehicleClass, count int) model.Snapshot {
	return model.Snapshot{
		In:  model.ClassCounts{},
		Out: model.ClassCounts{class: count},
	}
}

func TestAtLimitDoesNotFire(t *testing.T) {
	eng := New(60*time.Second, nil)
	snap := snapshotWithOut(model.ClassLightVehicle, 80)
	if got := eng.Evaluate(snap, outOnlyTable(80), time.Now()); len(got) != 0 {
		t.Fatalf("count == max_count must not fire, got %d violations", len(got))
	}
}

func TestFirstCrossingFiresOnce(t *testing.T) {
	eng := New(60*time.Second, nil)
	now := time.Now().UTC()
	snap := snapshotWithOut(model.ClassLightVehicle, 81)

	got := eng.Evaluate(snap, outOnlyTable(80), now)
	if len(got) != 1 {
		t.Fatalf("expected exactly one violation, got %d", len(got))
	}
	v := got[0]
	if v.Lane != model.LaneOut || v.Class != model.ClassLightVehicle || v.Count != 81 || v.MaxCount != 80 {
		t.Fatalf("unexpected violation: %+v", v)
	}
}

func TestCooldownSuppressesSustainedViolation(t *testing.T) {
	eng := New(60*time.Second, nil)
	now := time.Now().UTC()
	table := outOnlyTable(80)
	snap := snapshotWithOut(model.ClassLightVehicle, 81)

	fired := 0
	// Twelve consecutive ticks at 5s spacing, all inside one cooldown window.
	for i := 0; i < 12; i++ {
		fired += len(eng.Evaluate(snap, table, now.Add(time.Duration(i)*5*time.Second)))
	}
	if fired != 1 {
		t.Fatalf("expected 1 alarm per cooldown window, got %d", fired)
	}

	// Past the window the key may fire again.
	if got := eng.Evaluate(snap, table, now.Add(61*time.Second)); len(got) != 1 {
		t.Fatalf("expected refire after cooldown, got %d", len(got))
	}
}

func TestCooldownAdvancesOnlyOnFire(t *testing.T) {
	c := NewCooldown()
	key := model.CounterKey{Lane: model.LaneOut, Class: model.ClassLightVehicle}
	now := time.Now().UTC()
	if !c.Allow(key, now, time.Minute) {
		t.Fatalf("first fire must be allowed")
	}
	// Suppressed attempts must not push the window forward.
	for i := 1; i <= 11; i++ {
		c.Allow(key, now.Add(time.Duration(i)*5*time.Second), time.Minute)
	}
	if !c.Allow(key, now.Add(60*time.Second), time.Minute) {
		t.Fatalf("window measured from last fire, not last attempt")
	}
}

func TestMissingPolicyEntrySkipped(t *testing.T) {
	eng := New(0, nil)
	snap := model.Snapshot{
		In:  model.ClassCounts{model.ClassTwoWheeler: 1000},
		Out: model.ClassCounts{model.ClassLightVehicle: 81},
	}
	got := eng.Evaluate(snap, outOnlyTable(80), time.Now())
	if len(got) != 1 {
		t.Fatalf("expected only the OUT/LMV violation, got %d", len(got))
	}
}

func TestDeterministicOrder(t *testing.T) {
	eng := New(0, nil)
	spec := policy.DefaultSpec()
	for class := range spec.In {
		spec.In[class] = policy.Limit{MaxCount: 1, WindowSec: 5}
	}
	for class := range spec.Out {
		spec.Out[class] = policy.Limit{MaxCount: 1, WindowSec: 5}
	}
	table := policy.NewTable(spec, 1)
	snap := model.Snapshot{
		In:  model.ClassCounts{model.ClassTwoWheeler: 5, model.ClassLightVehicle: 5, model.ClassHeavyVehicle: 5},
		Out: model.ClassCounts{model.ClassTwoWheeler: 5, model.ClassLightVehicle: 5, model.ClassHeavyVehicle: 5},
	}
	got := eng.Evaluate(snap, table, time.Now())
	want := []model.CounterKey{
		{Lane: model.LaneIn, Class: model.ClassTwoWheeler},
		{Lane: model.LaneIn, Class: model.ClassLightVehicle},
		{Lane: model.LaneIn, Class: model.ClassHeavyVehicle},
		{Lane: model.LaneOut, Class: model.ClassTwoWheeler},
		{Lane: model.LaneOut, Class: model.ClassLightVehicle},
		{Lane: model.LaneOut, Class: model.ClassHeavyVehicle},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d violations, got %d", len(want), len(got))
	}
	for i, v := range got {
		if v.Lane != want[i].Lane || v.Class != want[i].Class {
			t.Fatalf("position %d: expected %v, got %s/%s", i, want[i], v.Lane, v.Class)
		}
	}
}

func TestCrossedIgnoresCooldown(t *testing.T) {
	eng := New(60*time.Second, nil)
	now := time.Now().UTC()
	table := outOnlyTable(80)
	snap := snapshotWithOut(model.ClassLightVehicle, 81)

	eng.Evaluate(snap, table, now)
	// Alarm suppressed, but the crossing is still present state.
	if got := eng.Evaluate(snap, table, now.Add(5*time.Second)); len(got) != 0 {
		t.Fatalf("expected cooldown suppression")
	}
	if got := eng.Crossed(snap, table, now.Add(5*time.Second)); len(got) != 1 {
		t.Fatalf("crossed must report the sustained violation, got %d", len(got))
	}
}

func TestResetClearsCooldown(t *testing.T) {
	eng := New(60*time.Second, nil)
	now := time.Now().UTC()
	table := outOnlyTable(80)
	snap := snapshotWithOut(model.ClassLightVehicle, 81)

	eng.Evaluate(snap, table, now)
	eng.Reset()
	if got := eng.Evaluate(snap, table, now.Add(time.Second)); len(got) != 1 {
		t.Fatalf("expected fire after reset, got %d", len(got))
	}
}
