// Package monitor runs one detection loop per lane. Each monitor owns a
// video source, feeds frames to the detector, and publishes the latest
// result into the shared lane table. Monitors never coordinate with
// each other: a slow detection in one lane cannot delay another lane's
// publish rate.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sujal0507/ai-powered-smart-signals/internal/detect"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/lanestate"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/monitoring"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/timeutil"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/traffic"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/video"
)

// DefaultInterval is the minimum pause between loop iterations. It
// bounds CPU and detector load when inference is fast; it is not a
// frame-rate target.
const DefaultInterval = 30 * time.Millisecond

// Monitor is the detection loop for a single lane.
type Monitor struct {
	LaneID   int
	Source   video.Source
	Detector detect.Detector
	States   *lanestate.Table

	// Clock defaults to the real clock.
	Clock timeutil.Clock

	// Interval is the minimum inter-iteration delay. Zero means
	// DefaultInterval; negative disables the delay entirely.
	Interval time.Duration
}

// Run executes the detection loop until ctx is cancelled. It always
// closes the video source and clears the lane's slot on the way out,
// whatever the exit path. The returned error is ctx.Err() on a normal
// shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	if m.Source == nil || m.Detector == nil || m.States == nil {
		return fmt.Errorf("lane %d monitor: missing source, detector, or state table", m.LaneID)
	}
	clock := m.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	interval := m.Interval
	if interval == 0 {
		interval = DefaultInterval
	}

	defer func() {
		if err := m.Source.Close(); err != nil {
			monitoring.Logf("lane %d: closing video source: %v", m.LaneID, err)
		}
		m.States.Clear(m.LaneID)
	}()

	monitoring.Logf("lane %d: monitor started", m.LaneID)

	for {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("lane %d: monitor stopped", m.LaneID)
			return err
		}

		m.step(ctx, clock)

		if interval > 0 {
			if err := waitOrCancel(ctx, clock, interval); err != nil {
				monitoring.Logf("lane %d: monitor stopped", m.LaneID)
				return err
			}
		}
	}
}

// step runs a single read-detect-publish iteration. Transient failures
// are logged and the frame dropped; the loop itself never fails.
func (m *Monitor) step(ctx context.Context, clock timeutil.Clock) {
	frame, err := m.Source.Next()
	if errors.Is(err, video.ErrEndOfStream) {
		// source has rewound; pick up the first frame next iteration
		return
	}
	if err != nil {
		monitoring.Logf("lane %d: frame read failed, skipping: %v", m.LaneID, err)
		return
	}

	result, err := m.Detector.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() == nil {
			monitoring.Logf("lane %d: detection failed, skipping frame: %v", m.LaneID, err)
		}
		return
	}

	m.States.Publish(m.LaneID, traffic.LaneSnapshot{
		LaneID:     m.LaneID,
		Counts:     result.Counts,
		Ambulance:  result.Ambulance,
		CapturedAt: clock.Now(),
	})
}

// waitOrCancel pauses for d or until ctx is cancelled.
func waitOrCancel(ctx context.Context, clock timeutil.Clock, d time.Duration) error {
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
