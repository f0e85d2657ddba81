// Package traffic defines the shared vocabulary of the signal control
// system: signal states, operating modes, lane snapshots, and the
// timing plan used by the controller.
package traffic

import (
	"encoding/json"
	"fmt"
	"time"
)

// SignalState is the state of a single lane's signal head.
type SignalState int

const (
	Red SignalState = iota
	Yellow
	Green
)

func (s SignalState) String() string {
	switch s {
	case Red:
		return "RED"
	case Yellow:
		return "YELLOW"
	case Green:
		return "GREEN"
	default:
		return fmt.Sprintf("SignalState(%d)", int(s))
	}
}

// MarshalJSON encodes the state as its name, matching the persisted log
// format and the API surface.
func (s SignalState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *SignalState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "RED":
		*s = Red
	case "YELLOW":
		*s = Yellow
	case "GREEN":
		*s = Green
	default:
		return fmt.Errorf("unknown signal state %q", name)
	}
	return nil
}

// SignalMode says why the currently active lane is active.
type SignalMode int

const (
	ModeNormal SignalMode = iota
	ModeEmergency
)

func (m SignalMode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModeEmergency:
		return "EMERGENCY"
	default:
		return fmt.Sprintf("SignalMode(%d)", int(m))
	}
}

// MarshalJSON encodes the mode as its name.
func (m SignalMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes a mode name.
func (m *SignalMode) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "NORMAL":
		*m = ModeNormal
	case "EMERGENCY":
		*m = ModeEmergency
	default:
		return fmt.Errorf("unknown signal mode %q", name)
	}
	return nil
}

// LaneSnapshot is the most recent detection result for one lane. A new
// snapshot fully replaces the previous one; snapshots are never merged
// or mutated after publication.
type LaneSnapshot struct {
	LaneID     int            `json:"lane_id"`
	Counts     map[string]int `json:"counts"`
	Ambulance  bool           `json:"ambulance"`
	CapturedAt time.Time      `json:"captured_at"`
}

// Total returns the total vehicle count across all classes.
func (s LaneSnapshot) Total() int {
	total := 0
	for _, n := range s.Counts {
		total += n
	}
	return total
}

// Statistics is the controller's cumulative performance view.
type Statistics struct {
	Cycles               int64         `json:"cycles"`
	EmergencyEvents      int64         `json:"emergency_events"`
	WaitSaved            time.Duration `json:"-"`
	WaitSavedSeconds     float64       `json:"wait_saved_seconds"`
	AvgWaitSavedPerCycle float64       `json:"avg_wait_saved_per_cycle"`
	DroppedLogs          int64         `json:"dropped_logs"`
	Mode                 SignalMode    `json:"mode"`
	CurrentLane          int           `json:"current_lane"`
}
