// Package db persists completed signal phases to SQLite and answers
// the historical queries behind the analytics API.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies pragmas
// suited to a single-writer append-mostly workload. It does not touch
// the schema; call MigrateUp for that.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	return &DB{conn}, nil
}

// Cycle is one persisted signal phase.
type Cycle struct {
	ID           int64          `json:"id"`
	RecordedAt   time.Time      `json:"recorded_at"`
	LaneID       int            `json:"lane_id"`
	Counts       map[string]int `json:"counts"`
	Ambulance    bool           `json:"ambulance"`
	GreenSeconds float64        `json:"green_seconds"`
	Mode         string         `json:"mode"`
}

// TotalVehicles returns the summed vehicle count for the cycle.
func (c Cycle) TotalVehicles() int {
	total := 0
	for _, n := range c.Counts {
		total += n
	}
	return total
}

// RecordCycle inserts a completed phase. Counts are stored as JSON to
// keep the per-class breakdown queryable without schema churn.
func (db *DB) RecordCycle(c Cycle) error {
	counts, err := json.Marshal(c.Counts)
	if err != nil {
		return fmt.Errorf("marshal vehicle counts: %w", err)
	}

	recordedAt := c.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err = db.Exec(
		`INSERT INTO traffic_cycles
			(recorded_at, lane_id, vehicle_counts, ambulance, green_seconds, mode)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		recordedAt.UTC(), c.LaneID, string(counts), c.Ambulance, c.GreenSeconds, c.Mode,
	)
	if err != nil {
		return fmt.Errorf("insert traffic cycle: %w", err)
	}
	return nil
}

// RecentCycles returns the latest cycles, newest first.
func (db *DB) RecentCycles(limit int) ([]Cycle, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT id, recorded_at, lane_id, vehicle_counts, ambulance, green_seconds, mode
		 FROM traffic_cycles ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

func scanCycle(rows *sql.Rows) (Cycle, error) {
	var c Cycle
	var counts string
	if err := rows.Scan(&c.ID, &c.RecordedAt, &c.LaneID, &counts, &c.Ambulance, &c.GreenSeconds, &c.Mode); err != nil {
		return Cycle{}, err
	}
	if err := json.Unmarshal([]byte(counts), &c.Counts); err != nil {
		return Cycle{}, fmt.Errorf("decode vehicle counts for cycle %d: %w", c.ID, err)
	}
	return c, nil
}

// DayStats aggregates activity since local midnight.
type DayStats struct {
	Cycles           int     `json:"cycles"`
	Vehicles         int     `json:"vehicles"`
	EmergencyEvents  int     `json:"emergency_events"`
	WaitSavedSeconds float64 `json:"wait_saved_seconds"`
}

// TodayStats returns aggregates for cycles recorded since local
// midnight. Wait saved is recomputed against the fixed 60s baseline.
func (db *DB) TodayStats() (DayStats, error) {
	year, month, day := time.Now().Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, time.Local)

	rows, err := db.Query(
		`SELECT vehicle_counts, green_seconds, mode
		 FROM traffic_cycles WHERE recorded_at >= ?`, midnight.UTC())
	if err != nil {
		return DayStats{}, err
	}
	defer rows.Close()

	var stats DayStats
	for rows.Next() {
		var counts string
		var green float64
		var mode string
		if err := rows.Scan(&counts, &green, &mode); err != nil {
			return DayStats{}, err
		}

		stats.Cycles++
		var byClass map[string]int
		if err := json.Unmarshal([]byte(counts), &byClass); err == nil {
			for _, n := range byClass {
				stats.Vehicles += n
			}
		}
		if mode == "EMERGENCY" {
			stats.EmergencyEvents++
		}
		if saved := 60 - green; saved > 0 {
			stats.WaitSavedSeconds += saved
		}
	}
	return stats, rows.Err()
}
