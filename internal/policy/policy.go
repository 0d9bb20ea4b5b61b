package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"trafficmon/internal/model"
)

// Limit is the configured ceiling for one (lane, class) counter.
type Limit struct {
	MaxCount  int `json:"max_count" yaml:"max_count"`
	WindowSec int `json:"time_period" yaml:"time_period"`
}

// Spec is the wire form of a full policy, replaced wholesale.
type Spec struct {
	In  map[model.VehicleClass]Limit `json:"in" yaml:"in"`
	Out map[model.VehicleClass]Limit `json:"out" yaml:"out"`
}

// DefaultSpec is the built-in policy used when nothing is persisted.
func DefaultSpec() Spec {
	in := map[model.VehicleClass]Limit{
		model.ClassTwoWheeler:   {MaxCount: 150, WindowSec: 300},
		model.ClassLightVehicle: {MaxCount: 100, WindowSec: 300},
		model.ClassHeavyVehicle: {MaxCount: 50, WindowSec: 300},
	}
	out := map[model.VehicleClass]Limit{
		model.ClassTwoWheeler:   {MaxCount: 120, WindowSec: 300},
		model.ClassLightVehicle: {MaxCount: 80, WindowSec: 300},
		model.ClassHeavyVehicle: {MaxCount: 40, WindowSec: 300},
	}
	return Spec{In: in, Out: out}
}

// Validate rejects a spec unless every (lane, class) combination is
// present with a positive limit and window.
func Validate(spec Spec) error {
	for _, lane := range model.Lanes() {
		limits := spec.In
		if lane == model.LaneOut {
			limits = spec.Out
		}
		for _, class := range model.VehicleClasses() {
			limit, ok := limits[class]
			if !ok {
				return fmt.Errorf("policy missing entry for %s/%s", lane, class)
			}
			if limit.MaxCount <= 0 {
				return fmt.Errorf("policy %s/%s: max_count must be > 0", lane, class)
			}
			if limit.WindowSec <= 0 {
				return fmt.Errorf("policy %s/%s: time_period must be > 0", lane, class)
			}
		}
	}
	return nil
}

// Table is one immutable policy version.
type Table struct {
	version int
	limits  map[model.CounterKey]Limit
}

// NewTable builds a table from a spec. Partial specs are allowed here;
// the engine skips counter keys without an entry. Completeness is
// enforced only on the operator Replace path.
func NewTable(spec Spec, version int) *Table {
	limits := make(map[model.CounterKey]Limit)
	for class, limit := range spec.In {
		limits[model.CounterKey{Lane: model.LaneIn, Class: class}] = limit
	}
	for class, limit := range spec.Out {
		limits[model.CounterKey{Lane: model.LaneOut, Class: class}] = limit
	}
	return &Table{version: version, limits: limits}
}

func (t *Table) Get(lane model.Lane, class model.VehicleClass) (Limit, bool) {
	limit, ok := t.limits[model.CounterKey{Lane: lane, Class: class}]
	return limit, ok
}

func (t *Table) Version() int {
	return t.version
}

// Spec reconstructs the wire form of the table.
func (t *Table) Spec() Spec {
	spec := Spec{
		In:  make(map[model.VehicleClass]Limit),
		Out: make(map[model.VehicleClass]Limit),
	}
	for key, limit := range t.limits {
		if key.Lane == model.LaneIn {
			spec.In[key.Class] = limit
		} else {
			spec.Out[key.Class] = limit
		}
	}
	return spec
}

// Storage persists the accepted policy across restarts.
type Storage interface {
	SavePolicy(ctx context.Context, spec Spec) error
	LoadPolicy(ctx context.Context) (Spec, bool, error)
}

// Holder owns the active policy version. Readers load the current table
// through an atomic pointer and never take a lock; an in-flight
// evaluation keeps using the table it loaded until it finishes.
type Holder struct {
	cur    atomic.Pointer[Table]
	store  Storage
	logger *slog.Logger
}

// NewHolder starts from the persisted policy when one exists, otherwise
// from the built-in default.
func NewHolder(ctx context.Context, store Storage, logger *slog.Logger) *Holder {
	h := &Holder{store: store, logger: logger}
	spec := DefaultSpec()
	if store != nil {
		persisted, ok, err := store.LoadPolicy(ctx)
		if err != nil {
			if logger != nil {
				logger.Warn("policy load failed, using defaults", "err", err)
			}
		} else if ok {
			if err := Validate(persisted); err != nil {
				if logger != nil {
					logger.Warn("persisted policy invalid, using defaults", "err", err)
				}
			} else {
				spec = persisted
			}
		}
	}
	h.cur.Store(NewTable(spec, 1))
	return h
}

func (h *Holder) Current() *Table {
	return h.cur.Load()
}

// Replace validates the new spec, persists it, and atomically swaps the
// active table. Invalid input leaves the current version untouched.
// Persistence failure is recoverable: logged, swap proceeds in memory.
func (h *Holder) Replace(ctx context.Context, spec Spec) error {
	if err := Validate(spec); err != nil {
		return err
	}
	if h.store != nil {
		if err := h.store.SavePolicy(ctx, spec); err != nil && h.logger != nil {
			h.logger.Warn("policy persist failed", "err", err)
		}
	}
	next := NewTable(spec, h.Current().Version()+1)
	h.cur.Store(next)
	return nil
}
