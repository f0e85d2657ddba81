package db

import (
	"encoding/json"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LaneReport aggregates one lane's activity over a query window.
type LaneReport struct {
	LaneID          int     `json:"lane_id"`
	Cycles          int     `json:"cycles"`
	TotalVehicles   int     `json:"total_vehicles"`
	MeanVehicles    float64 `json:"mean_vehicles"`
	EmergencyEvents int     `json:"emergency_events"`
	MeanGreen       float64 `json:"mean_green_seconds"`
}

// LaneAnalytics returns per-lane aggregates for cycles recorded in the
// trailing window, ordered by lane id.
func (db *DB) LaneAnalytics(window time.Duration) ([]LaneReport, error) {
	since := time.Now().Add(-window)

	rows, err := db.Query(
		`SELECT lane_id, vehicle_counts, ambulance, green_seconds, mode
		 FROM traffic_cycles WHERE recorded_at >= ?`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type acc struct {
		vehicles []float64
		greens   []float64
		emergies int
	}
	perLane := make(map[int]*acc)

	for rows.Next() {
		var laneID int
		var counts string
		var ambulance bool
		var green float64
		var mode string
		if err := rows.Scan(&laneID, &counts, &ambulance, &green, &mode); err != nil {
			return nil, err
		}

		a := perLane[laneID]
		if a == nil {
			a = &acc{}
			perLane[laneID] = a
		}

		total := 0
		var byClass map[string]int
		if err := json.Unmarshal([]byte(counts), &byClass); err == nil {
			for _, n := range byClass {
				total += n
			}
		}
		a.vehicles = append(a.vehicles, float64(total))
		a.greens = append(a.greens, green)
		if mode == "EMERGENCY" {
			a.emergies++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lanes := make([]int, 0, len(perLane))
	for lane := range perLane {
		lanes = append(lanes, lane)
	}
	sort.Ints(lanes)

	reports := make([]LaneReport, 0, len(lanes))
	for _, lane := range lanes {
		a := perLane[lane]
		total := 0
		for _, v := range a.vehicles {
			total += int(v)
		}
		reports = append(reports, LaneReport{
			LaneID:          lane,
			Cycles:          len(a.vehicles),
			TotalVehicles:   total,
			MeanVehicles:    stat.Mean(a.vehicles, nil),
			EmergencyEvents: a.emergies,
			MeanGreen:       stat.Mean(a.greens, nil),
		})
	}
	return reports, nil
}
