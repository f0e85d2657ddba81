// Package lanestate holds the shared table of per-lane detection
// results. Lane monitors are the only writers, one writer per slot; the
// controller and the API read concurrently. Each slot carries its own
// lock so one lane's publish never blocks another lane's publish or a
// read of a different lane.
package lanestate

import (
	"fmt"
	"sync"

	"github.com/Sujal0507/ai-powered-smart-signals/internal/traffic"
)

// Table is a fixed-size arena of lane slots indexed by lane id (1..N).
type Table struct {
	slots []slot
	wake  chan struct{}
}

type slot struct {
	mu   sync.RWMutex
	snap *traffic.LaneSnapshot
}

// New returns a table with capacity for laneCount lanes. Lane ids run
// from 1 to laneCount.
func New(laneCount int) *Table {
	if laneCount < 1 {
		panic(fmt.Sprintf("lanestate: invalid lane count %d", laneCount))
	}
	return &Table{
		slots: make([]slot, laneCount),
		wake:  make(chan struct{}, 1),
	}
}

// LaneCount returns the number of lanes the table was sized for.
func (t *Table) LaneCount() int { return len(t.slots) }

func (t *Table) slotFor(laneID int) *slot {
	if laneID < 1 || laneID > len(t.slots) {
		return nil
	}
	return &t.slots[laneID-1]
}

// Publish replaces the snapshot for the given lane. Readers observe
// either the previous snapshot or the new one, never a partial write.
// A publish that raises a lane's ambulance flag pulses the wake
// channel.
func (t *Table) Publish(laneID int, snap traffic.LaneSnapshot) {
	s := t.slotFor(laneID)
	if s == nil {
		return
	}

	s.mu.Lock()
	raised := snap.Ambulance && (s.snap == nil || !s.snap.Ambulance)
	copied := snap
	s.snap = &copied
	s.mu.Unlock()

	if raised {
		select {
		case t.wake <- struct{}{}:
		default:
		}
	}
}

// Get returns the latest snapshot for the lane, if any.
func (t *Table) Get(laneID int) (traffic.LaneSnapshot, bool) {
	s := t.slotFor(laneID)
	if s == nil {
		return traffic.LaneSnapshot{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return traffic.LaneSnapshot{}, false
	}
	return *s.snap, true
}

// Clear reverts the lane's slot to "no data". Monitors call this on
// exit.
func (t *Table) Clear(laneID int) {
	s := t.slotFor(laneID)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.snap = nil
	s.mu.Unlock()
}

// All returns a point-in-time copy of every populated slot. Callers may
// hold the result as long as they like without blocking writers.
func (t *Table) All() map[int]traffic.LaneSnapshot {
	out := make(map[int]traffic.LaneSnapshot, len(t.slots))
	for i := range t.slots {
		s := &t.slots[i]
		s.mu.RLock()
		if s.snap != nil {
			out[i+1] = *s.snap
		}
		s.mu.RUnlock()
	}
	return out
}

// Wake returns the channel pulsed when any lane newly reports an
// ambulance. The channel is buffered with capacity one: a pulse is a
// hint to re-check the table, not a message stream.
func (t *Table) Wake() <-chan struct{} { return t.wake }
