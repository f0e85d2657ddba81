// Command simulate runs the full signal pipeline against scripted
// detectors and synthetic video for a fixed duration, printing state
// transitions. Useful for demos and manual soak testing without
// cameras, a model server, or a broker.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/Sujal0507/ai-powered-smart-signals/internal/controller"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/detect"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/lanestate"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/monitor"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/system"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/traffic"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/video"
)

var (
	lanes     = flag.Int("lanes", 4, "Number of lanes to simulate")
	duration  = flag.Duration("duration", 2*time.Minute, "How long to run")
	emergency = flag.Duration("emergency-after", 30*time.Second, "Fire a manual override this long in (0 disables)")
	compress  = flag.Bool("fast", true, "Compress phase timings so cycles complete quickly")
)

func main() {
	flag.Parse()

	states := lanestate.New(*lanes)

	monitors := make([]*monitor.Monitor, 0, *lanes)
	for lane := 1; lane <= *lanes; lane++ {
		det := detect.NewScriptedDetector(
			detect.Result{Counts: map[string]int{"car": 3 * lane}},
			detect.Result{Counts: map[string]int{"car": 3*lane + 2, "bus": 1}},
			detect.Result{Counts: map[string]int{"car": 2}},
		)
		det.Loop = true
		monitors = append(monitors, &monitor.Monitor{
			LaneID:   lane,
			Source:   video.NewLoopSource([]byte("frame")),
			Detector: det,
			States:   states,
			Interval: 50 * time.Millisecond,
		})
	}

	timings := traffic.DefaultTimings()
	if *compress {
		timings.Yellow = 300 * time.Millisecond
		timings.Transition = 200 * time.Millisecond
		timings.EmergencyGreen = 2 * time.Second
		timings.LongGreen = 3 * time.Second
		timings.MediumGreen = 1500 * time.Millisecond
		timings.ShortGreen = 750 * time.Millisecond
		timings.PreemptPoll = 50 * time.Millisecond
	}

	logger := controller.CycleLoggerFunc(func(rec controller.CycleRecord) error {
		log.Printf("phase: lane=%d vehicles=%v ambulance=%v green=%s mode=%s",
			rec.LaneID, rec.Counts, rec.Ambulance, rec.Green, rec.Mode)
		return nil
	})

	ctrl := controller.New(states, logger, controller.WithTimings(timings))
	sys := &system.System{Monitors: monitors, Controller: ctrl}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	if err := sys.Start(ctx); err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	if *emergency > 0 {
		go func() {
			timer := time.NewTimer(*emergency)
			defer timer.Stop()
			select {
			case <-timer.C:
				if err := ctrl.ForceEmergency(*lanes); err != nil {
					log.Printf("override failed: %v", err)
				}
			case <-ctx.Done():
			}
		}()
	}

	<-ctx.Done()
	if err := sys.Stop(); err != nil {
		log.Printf("stop: %v", err)
	}

	stats := ctrl.Stats()
	log.Printf("done: cycles=%d emergencies=%d wait_saved=%s",
		stats.Cycles, stats.EmergencyEvents, stats.WaitSaved)
}
