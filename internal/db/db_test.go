package db

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "traffic.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	return db
}

func TestMigrateUp(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if version == 0 || dirty {
		t.Errorf("version = %d dirty = %v after MigrateUp", version, dirty)
	}

	// applying again is a no-op, not an error
	if err := db.MigrateUp(); err != nil {
		t.Errorf("second MigrateUp: %v", err)
	}
}

func TestRecordAndRecentCycles(t *testing.T) {
	db := openTestDB(t)

	base := time.Now().Add(-time.Minute)
	cycles := []Cycle{
		{RecordedAt: base, LaneID: 1, Counts: map[string]int{"car": 4}, GreenSeconds: 15, Mode: "NORMAL"},
		{RecordedAt: base.Add(20 * time.Second), LaneID: 2, Counts: map[string]int{"car": 9, "bus": 2}, GreenSeconds: 30, Mode: "NORMAL"},
		{RecordedAt: base.Add(40 * time.Second), LaneID: 3, Counts: map[string]int{"car": 1}, Ambulance: true, GreenSeconds: 45, Mode: "EMERGENCY"},
	}
	for _, c := range cycles {
		if err := db.RecordCycle(c); err != nil {
			t.Fatalf("RecordCycle(lane %d): %v", c.LaneID, err)
		}
	}

	got, err := db.RecentCycles(10)
	if err != nil {
		t.Fatalf("RecentCycles: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	// newest first
	if got[0].LaneID != 3 || got[2].LaneID != 1 {
		t.Errorf("order = [%d %d %d], want [3 2 1]", got[0].LaneID, got[1].LaneID, got[2].LaneID)
	}
	if !got[0].Ambulance || got[0].Mode != "EMERGENCY" {
		t.Errorf("emergency cycle = %+v", got[0])
	}
	if got[1].Counts["bus"] != 2 {
		t.Errorf("counts = %v, want bus:2", got[1].Counts)
	}
	if got[1].TotalVehicles() != 11 {
		t.Errorf("TotalVehicles() = %d, want 11", got[1].TotalVehicles())
	}

	// limit applies
	got, err = db.RecentCycles(2)
	if err != nil {
		t.Fatalf("RecentCycles(2): %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestRecentCyclesDefaultLimit(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.RecentCycles(0); err != nil {
		t.Fatalf("RecentCycles(0): %v", err)
	}
}

func TestRecordCycleDefaultsTimestamp(t *testing.T) {
	db := openTestDB(t)
	if err := db.RecordCycle(Cycle{LaneID: 1, Counts: map[string]int{}, GreenSeconds: 15, Mode: "NORMAL"}); err != nil {
		t.Fatalf("RecordCycle: %v", err)
	}

	got, err := db.RecentCycles(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].RecordedAt.IsZero() {
		t.Errorf("expected a defaulted timestamp, got %+v", got)
	}
}

func TestTodayStats(t *testing.T) {
	db := openTestDB(t)

	now := time.Now()
	records := []Cycle{
		{RecordedAt: now.Add(-time.Hour), LaneID: 1, Counts: map[string]int{"car": 10}, GreenSeconds: 30, Mode: "NORMAL"},
		{RecordedAt: now.Add(-time.Minute), LaneID: 2, Counts: map[string]int{"car": 5}, GreenSeconds: 45, Mode: "EMERGENCY"},
		// yesterday, must be excluded
		{RecordedAt: now.Add(-30 * time.Hour), LaneID: 1, Counts: map[string]int{"car": 99}, GreenSeconds: 15, Mode: "NORMAL"},
	}
	for _, c := range records {
		if err := db.RecordCycle(c); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := db.TodayStats()
	if err != nil {
		t.Fatalf("TodayStats: %v", err)
	}
	// the two recent records may straddle midnight on a freshly started
	// day, but one minute ago is always today
	if stats.Cycles < 1 || stats.Cycles > 2 {
		t.Errorf("cycles = %d, want 1 or 2", stats.Cycles)
	}
	if stats.Vehicles >= 99 {
		t.Errorf("vehicles = %d, yesterday's record leaked in", stats.Vehicles)
	}
	if stats.EmergencyEvents != 1 {
		t.Errorf("emergencies = %d, want 1", stats.EmergencyEvents)
	}
	if stats.WaitSavedSeconds < 15 {
		t.Errorf("wait saved = %v, want at least 15", stats.WaitSavedSeconds)
	}
}

func TestLaneAnalytics(t *testing.T) {
	db := openTestDB(t)

	now := time.Now()
	records := []Cycle{
		{RecordedAt: now.Add(-10 * time.Minute), LaneID: 1, Counts: map[string]int{"car": 4}, GreenSeconds: 15, Mode: "NORMAL"},
		{RecordedAt: now.Add(-5 * time.Minute), LaneID: 1, Counts: map[string]int{"car": 8}, GreenSeconds: 30, Mode: "NORMAL"},
		{RecordedAt: now.Add(-2 * time.Minute), LaneID: 2, Counts: map[string]int{"car": 3}, Ambulance: true, GreenSeconds: 45, Mode: "EMERGENCY"},
		// outside the window
		{RecordedAt: now.Add(-3 * time.Hour), LaneID: 1, Counts: map[string]int{"car": 50}, GreenSeconds: 60, Mode: "NORMAL"},
	}
	for _, c := range records {
		if err := db.RecordCycle(c); err != nil {
			t.Fatal(err)
		}
	}

	reports, err := db.LaneAnalytics(time.Hour)
	if err != nil {
		t.Fatalf("LaneAnalytics: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("len = %d, want 2", len(reports))
	}

	lane1 := reports[0]
	if lane1.LaneID != 1 || lane1.Cycles != 2 || lane1.TotalVehicles != 12 {
		t.Errorf("lane 1 report = %+v", lane1)
	}
	if math.Abs(lane1.MeanVehicles-6) > 1e-9 {
		t.Errorf("lane 1 mean vehicles = %v, want 6", lane1.MeanVehicles)
	}
	if math.Abs(lane1.MeanGreen-22.5) > 1e-9 {
		t.Errorf("lane 1 mean green = %v, want 22.5", lane1.MeanGreen)
	}

	lane2 := reports[1]
	if lane2.LaneID != 2 || lane2.EmergencyEvents != 1 {
		t.Errorf("lane 2 report = %+v", lane2)
	}
}

func TestLaneAnalyticsEmpty(t *testing.T) {
	db := openTestDB(t)
	reports, err := db.LaneAnalytics(time.Hour)
	if err != nil {
		t.Fatalf("LaneAnalytics: %v", err)
	}
	if len(reports) != 0 {
		t.Errorf("len = %d, want 0", len(reports))
	}
}
