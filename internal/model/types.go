package model

import "time"

type Lane string

const (
	LaneIn  Lane = "IN"
	LaneOut Lane = "OUT"
)

// Lanes returns all lanes in evaluation order.
func Lanes() []Lane {
	return []Lane{LaneIn, LaneOut}
}

type VehicleClass string

const (
	ClassTwoWheeler   VehicleClass = "2WHLR"
	ClassLightVehicle VehicleClass = "LMV"
	ClassHeavyVehicle VehicleClass = "HMV"
)

// VehicleClasses returns all detector classes in evaluation order.
func VehicleClasses() []VehicleClass {
	return []VehicleClass{ClassTwoWheeler, ClassLightVehicle, ClassHeavyVehicle}
}

// CounterKey identifies one monitored counter.
type CounterKey struct {
	Lane  Lane
	Class VehicleClass
}

// ClassCounts maps a vehicle class to a count.
type ClassCounts map[VehicleClass]int

// ObservationBatch carries non-negative per-class increments for one tick.
// A missing class means a zero increment.
type ObservationBatch struct {
	In  ClassCounts `json:"in"`
	Out ClassCounts `json:"out"`
}

// Empty reports whether the batch carries no increments.
func (b ObservationBatch) Empty() bool {
	for _, n := range b.In {
		if n > 0 {
			return false
		}
	}
	for _, n := range b.Out {
		if n > 0 {
			return false
		}
	}
	return true
}

// Snapshot is an immutable copy of the counter state, safe to share
// across goroutines once returned.
type Snapshot struct {
	Total             ClassCounts              `json:"total"`
	In                ClassCounts              `json:"in"`
	Out               ClassCounts              `json:"out"`
	Rates             map[VehicleClass]float64 `json:"rates"`
	ThresholdsCrossed []Violation              `json:"thresholds_crossed"`
	ProcessingStatus  string                   `json:"processing_status"`
	TakenAt           time.Time                `json:"taken_at"`
}

// Violation is the ephemeral fact that a counter exceeds its limit at
// evaluation time. Only the alarm generated from it is durable.
type Violation struct {
	Lane       Lane         `json:"lane"`
	Class      VehicleClass `json:"vehicle_type"`
	Count      int          `json:"count"`
	MaxCount   int          `json:"max_count"`
	WindowSec  int          `json:"time_period"`
	Message    string       `json:"message"`
	DetectedAt time.Time    `json:"detected_at"`
}

type AlarmStatus string

const (
	AlarmActive  AlarmStatus = "active"
	AlarmCleared AlarmStatus = "cleared"
)

const AlarmTypeThresholdExceeded = "threshold_exceeded"

// Alarm is the durable record generated from a violation or an external
// trigger. Mutated only through the ledger's clear and delete operations.
type Alarm struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Lane      Lane              `json:"lane"`
	Class     VehicleClass      `json:"vehicle_type,omitempty"`
	CreatedAt time.Time         `json:"timestamp"`
	Status    AlarmStatus       `json:"status"`
	ClearedAt *time.Time        `json:"cleared_at,omitempty"`
	Message   string            `json:"message"`
	Count     int               `json:"count,omitempty"`
	MaxCount  int               `json:"max_count,omitempty"`
	Speed     int               `json:"speed,omitempty"`
	Duration  string            `json:"duration,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// AlarmSpec is the caller-supplied part of an alarm. The ledger assigns
// id, timestamp and status.
type AlarmSpec struct {
	Type     string
	Lane     Lane
	Class    VehicleClass
	Message  string
	Count    int
	MaxCount int
	Speed    int
	Duration string
	Extra    map[string]string
}
