// Package controller implements the signal state machine: round-robin
// cycling with load-proportional green time, emergency preemption, and
// statistics accounting. A single control goroutine owns all signal
// state; external callers interact only through ForceEmergency and the
// read-only query methods.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sujal0507/ai-powered-smart-signals/internal/lanestate"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/monitoring"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/timeutil"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/traffic"
)

// ErrInvalidLane reports a lane id outside the configured range.
var ErrInvalidLane = fmt.Errorf("invalid lane id")

// CycleRecord describes one completed signal phase for persistence.
type CycleRecord struct {
	RecordedAt time.Time
	LaneID     int
	Counts     map[string]int
	Ambulance  bool
	Green      time.Duration
	Mode       traffic.SignalMode
}

// CycleLogger persists completed phases. Implementations must be safe
// for use from a single goroutine; errors are counted and swallowed by
// the controller, never allowed to delay phase timing.
type CycleLogger interface {
	LogCycle(rec CycleRecord) error
}

// CycleLoggerFunc adapts a function to the CycleLogger interface.
type CycleLoggerFunc func(rec CycleRecord) error

// LogCycle calls f.
func (f CycleLoggerFunc) LogCycle(rec CycleRecord) error { return f(rec) }

// logBuffer is the depth of the asynchronous logging queue. Records
// beyond this are dropped rather than delaying the signal.
const logBuffer = 64

// Controller drives the signal heads for a fixed set of lanes.
type Controller struct {
	states  *lanestate.Table
	logger  CycleLogger
	clock   timeutil.Clock
	timings traffic.Timings
	lanes   int

	// overrideWake is pulsed by ForceEmergency so a green hold ends
	// without waiting for the next poll tick.
	overrideWake chan struct{}
	logCh        chan CycleRecord

	// mu guards everything below. It is never held across a timed
	// wait.
	mu          sync.Mutex
	signal      []traffic.SignalState
	currentLane int
	mode        traffic.SignalMode
	override    *int
	cycles      int64
	emergencies int64
	waitSaved   time.Duration
	droppedLogs int64
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock substitutes the time source. Tests drive a MockClock.
func WithClock(clock timeutil.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithTimings substitutes the timing plan.
func WithTimings(t traffic.Timings) Option {
	return func(c *Controller) { c.timings = t }
}

// New returns a controller for the lanes covered by states. The logger
// may be nil, in which case completed phases are not persisted.
func New(states *lanestate.Table, logger CycleLogger, opts ...Option) *Controller {
	c := &Controller{
		states:       states,
		logger:       logger,
		clock:        timeutil.RealClock{},
		timings:      traffic.DefaultTimings(),
		lanes:        states.LaneCount(),
		overrideWake: make(chan struct{}, 1),
		logCh:        make(chan CycleRecord, logBuffer),
		signal:       make([]traffic.SignalState, states.LaneCount()),
		currentLane:  1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForceEmergency registers a manual emergency override for the lane.
// The pending slot holds at most one lane: a second call overwrites the
// first, it does not queue. The override is consumed exactly once by
// the control loop.
func (c *Controller) ForceEmergency(laneID int) error {
	if laneID < 1 || laneID > c.lanes {
		return fmt.Errorf("%w: %d (have %d lanes)", ErrInvalidLane, laneID, c.lanes)
	}

	c.mu.Lock()
	lane := laneID
	c.override = &lane
	c.mu.Unlock()

	monitoring.Logf("manual override: emergency requested for lane %d", laneID)

	select {
	case c.overrideWake <- struct{}{}:
	default:
	}
	return nil
}

// LaneState returns the signal state for one lane. Unknown lanes read
// as red.
func (c *Controller) LaneState(laneID int) traffic.SignalState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if laneID < 1 || laneID > c.lanes {
		return traffic.Red
	}
	return c.signal[laneID-1]
}

// AllStates returns a copy of the signal-state table.
func (c *Controller) AllStates() map[int]traffic.SignalState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]traffic.SignalState, c.lanes)
	for i, s := range c.signal {
		out[i+1] = s
	}
	return out
}

// Stats returns the controller's cumulative statistics.
func (c *Controller) Stats() traffic.Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := traffic.Statistics{
		Cycles:           c.cycles,
		EmergencyEvents:  c.emergencies,
		WaitSaved:        c.waitSaved,
		WaitSavedSeconds: c.waitSaved.Seconds(),
		DroppedLogs:      c.droppedLogs,
		Mode:             c.mode,
		CurrentLane:      c.currentLane,
	}
	if c.cycles > 0 {
		stats.AvgWaitSavedPerCycle = stats.WaitSavedSeconds / float64(c.cycles)
	}
	return stats
}

// Run executes the control loop until ctx is cancelled. Initial
// condition: lane 1 green, all others red, mode normal. Unexpected
// cycle errors are logged and followed by a cancellable backoff; only
// cancellation ends the loop.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	for i := range c.signal {
		c.signal[i] = traffic.Red
	}
	c.signal[0] = traffic.Green
	c.currentLane = 1
	c.mode = traffic.ModeNormal
	c.mu.Unlock()

	go c.logPump(ctx)

	monitoring.Logf("controller started: %d lanes, lane 1 green", c.lanes)

	for {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("controller stopped")
			return err
		}

		var err error
		if lane, ok := c.takeEmergency(); ok {
			err = c.runEmergency(ctx, lane)
		} else {
			err = c.runNormalCycle(ctx)
		}

		if err != nil {
			if ctx.Err() != nil {
				monitoring.Logf("controller stopped")
				return ctx.Err()
			}
			monitoring.Logf("controller cycle error, backing off: %v", err)
			if werr := c.wait(ctx, c.timings.ErrorBackoff); werr != nil {
				monitoring.Logf("controller stopped")
				return werr
			}
		}
	}
}

// takeEmergency resolves the next emergency lane, if any. A pending
// manual override wins and is consumed here, exactly once. Otherwise
// the lowest-numbered lane reporting an ambulance is chosen; ties are
// broken by lane id, not arrival order. An emergency in the active lane
// is not returned: the normal cycle handles it as a green extension.
func (c *Controller) takeEmergency() (int, bool) {
	c.mu.Lock()
	current := c.currentLane
	if c.override != nil {
		lane := *c.override
		c.override = nil
		c.mu.Unlock()
		if lane == current {
			return 0, false
		}
		return lane, true
	}
	c.mu.Unlock()

	if lane, ok := c.lowestAmbulanceLane(current); ok {
		return lane, true
	}
	return 0, false
}

// peekEmergency reports whether an emergency other than excludeLane is
// waiting, without consuming a pending override.
func (c *Controller) peekEmergency(excludeLane int) bool {
	c.mu.Lock()
	if c.override != nil && *c.override != excludeLane {
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	_, ok := c.lowestAmbulanceLane(excludeLane)
	return ok
}

// lowestAmbulanceLane scans the lane table for the lowest-numbered lane
// other than excludeLane reporting an ambulance.
func (c *Controller) lowestAmbulanceLane(excludeLane int) (int, bool) {
	snapshots := c.states.All()
	for lane := 1; lane <= c.lanes; lane++ {
		if lane == excludeLane {
			continue
		}
		if snap, ok := snapshots[lane]; ok && snap.Ambulance {
			return lane, true
		}
	}
	return 0, false
}

// runNormalCycle serves the active lane once: compute the green tier
// from its latest snapshot, hold green (preemptibly), then hand over to
// the next lane in round-robin order.
func (c *Controller) runNormalCycle(ctx context.Context) error {
	c.mu.Lock()
	lane := c.currentLane
	c.mu.Unlock()

	// A missing snapshot reads as zero vehicles, not an error: the
	// cycle must not block on a lane with no data yet.
	snap, ok := c.states.Get(lane)
	var counts map[string]int
	if ok {
		counts = snap.Counts
	} else {
		counts = map[string]int{}
	}
	total := snap.Total()

	mode := traffic.ModeNormal
	if ok && snap.Ambulance {
		// Ambulance already in the served lane: stay the course in
		// emergency mode rather than redirecting.
		mode = traffic.ModeEmergency
	}

	green := c.timings.GreenDuration(total)
	saved := traffic.WaitSaved(green)

	c.mu.Lock()
	c.mode = mode
	if mode == traffic.ModeEmergency {
		c.emergencies++
	}
	c.waitSaved += saved
	c.mu.Unlock()

	monitoring.Logf("cycle: lane %d %s, %d vehicles, green %s (saved %s)",
		lane, mode, total, green, saved)

	c.enqueueLog(CycleRecord{
		RecordedAt: c.clock.Now(),
		LaneID:     lane,
		Counts:     counts,
		Ambulance:  ok && snap.Ambulance,
		Green:      green,
		Mode:       mode,
	})

	preempted, err := c.holdGreen(ctx, green, lane)
	if err != nil {
		return err
	}
	if preempted {
		// Leave the wait early; the loop re-checks and runs the
		// emergency handler, which performs the transition itself.
		monitoring.Logf("cycle: lane %d green preempted", lane)
		return nil
	}

	next := lane%c.lanes + 1
	if err := c.transition(ctx, lane, next); err != nil {
		return err
	}

	c.mu.Lock()
	c.cycles++
	c.mode = traffic.ModeNormal
	c.mu.Unlock()
	return nil
}

// runEmergency services an emergency lane: drive the active lane
// through yellow and red, grant the emergency lane its fixed green,
// then resume round-robin from the lane after it. The initial
// transition is not preemptible; the emergency green is, but only by a
// different emergency.
func (c *Controller) runEmergency(ctx context.Context, lane int) error {
	c.mu.Lock()
	from := c.currentLane
	c.mode = traffic.ModeEmergency
	c.emergencies++
	c.mu.Unlock()

	monitoring.Logf("emergency: preempting lane %d for lane %d", from, lane)

	if err := c.transition(ctx, from, lane); err != nil {
		return err
	}

	var counts map[string]int
	if snap, ok := c.states.Get(lane); ok {
		counts = snap.Counts
	} else {
		counts = map[string]int{}
	}

	c.enqueueLog(CycleRecord{
		RecordedAt: c.clock.Now(),
		LaneID:     lane,
		Counts:     counts,
		Ambulance:  true,
		Green:      c.timings.EmergencyGreen,
		Mode:       traffic.ModeEmergency,
	})

	preempted, err := c.holdGreen(ctx, c.timings.EmergencyGreen, lane)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.cycles++
	c.mu.Unlock()

	if preempted {
		// A different emergency takes over; its handler transitions
		// away from this lane.
		monitoring.Logf("emergency: lane %d green preempted by another emergency", lane)
		return nil
	}

	next := lane%c.lanes + 1
	if err := c.transition(ctx, lane, next); err != nil {
		return err
	}

	c.mu.Lock()
	c.mode = traffic.ModeNormal
	c.mu.Unlock()
	return nil
}

// transition drives from's head through yellow then red, waits out the
// all-red delay, and turns to green. The sequence is cancellable but
// not preemptible: once started it always completes or the controller
// shuts down, so the road never sees an ambiguous signal.
func (c *Controller) transition(ctx context.Context, from, to int) error {
	c.setSignal(from, traffic.Yellow)
	if err := c.wait(ctx, c.timings.Yellow); err != nil {
		return err
	}

	c.setSignal(from, traffic.Red)
	if err := c.wait(ctx, c.timings.Transition); err != nil {
		return err
	}

	c.mu.Lock()
	c.signal[to-1] = traffic.Green
	c.currentLane = to
	c.mu.Unlock()

	monitoring.Logf("transition: lane %d -> lane %d", from, to)
	return nil
}

func (c *Controller) setSignal(lane int, state traffic.SignalState) {
	c.mu.Lock()
	c.signal[lane-1] = state
	c.mu.Unlock()
}

// holdGreen waits out a green phase on the given lane. The wait races
// the phase timer against the lane table's ambulance wake channel, the
// manual-override pulse, and a poll tick that bounds preemption latency
// even if a pulse is missed. It returns preempted=true as soon as an
// emergency for a different lane is visible.
func (c *Controller) holdGreen(ctx context.Context, d time.Duration, lane int) (preempted bool, err error) {
	timer := c.clock.NewTimer(d)
	defer timer.Stop()
	poll := c.clock.NewTicker(c.timings.PreemptPoll)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C():
			return false, nil
		case <-c.states.Wake():
		case <-c.overrideWake:
		case <-poll.C():
		}

		if c.peekEmergency(lane) {
			return true, nil
		}
	}
}

// wait blocks for d or until cancellation. Used for the yellow and
// all-red phases and the error backoff, none of which are preemptible.
func (c *Controller) wait(ctx context.Context, d time.Duration) error {
	timer := c.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

// enqueueLog hands a record to the logging goroutine without blocking.
// A full queue drops the record and counts it.
func (c *Controller) enqueueLog(rec CycleRecord) {
	if c.logger == nil {
		return
	}
	select {
	case c.logCh <- rec:
	default:
		c.mu.Lock()
		c.droppedLogs++
		c.mu.Unlock()
		monitoring.Logf("cycle log queue full, dropping record for lane %d", rec.LaneID)
	}
}

// logPump drains the log queue until cancellation, then flushes
// whatever is already queued.
func (c *Controller) logPump(ctx context.Context) {
	for {
		select {
		case rec := <-c.logCh:
			c.logOne(rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-c.logCh:
					c.logOne(rec)
				default:
					return
				}
			}
		}
	}
}

func (c *Controller) logOne(rec CycleRecord) {
	if err := c.logger.LogCycle(rec); err != nil {
		c.mu.Lock()
		c.droppedLogs++
		c.mu.Unlock()
		monitoring.Logf("cycle log failed for lane %d: %v", rec.LaneID, err)
	}
}
