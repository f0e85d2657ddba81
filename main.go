// Command smart-signals runs the intelligent traffic signal service:
// one detection monitor per lane, the signal controller, the SQLite
// cycle log, the optional MQTT dispatch feed, and the HTTP/websocket
// API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sujal0507/ai-powered-smart-signals/internal/api"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/config"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/controller"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/db"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/detect"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/dispatch"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/lanestate"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/monitor"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/system"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/traffic"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/version"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/video"
)

var (
	configPath = flag.String("config", "", "Path to JSON config file")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	devMode    = flag.Bool("dev", false, "Run with scripted detectors instead of a model server")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	states := lanestate.New(cfg.LaneCount)

	var detector detect.Detector
	var confSetter api.ConfidenceSetter
	if *devMode {
		detector = devDetector()
	} else {
		d := detect.NewHTTPDetector(cfg.DetectorURL, cfg.Confidence, nil)
		detector = d
		confSetter = d
	}

	monitors, failed := buildMonitors(cfg, states, detector)
	if len(failed) > 0 {
		for lane, err := range failed {
			log.Printf("lane %d will run without data: %v", lane, err)
		}
	}
	if len(monitors) < 2 {
		log.Fatalf("only %d lane monitors could be started, need at least 2", len(monitors))
	}

	ctrl := controller.New(states, cycleLogger(database), controller.WithTimings(timingsFromConfig(cfg)))

	sys := &system.System{
		Monitors:    monitors,
		Controller:  ctrl,
		StopTimeout: cfg.ShutdownTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sys.Start(ctx); err != nil {
		log.Fatalf("failed to start system: %v", err)
	}

	if cfg.BrokerURL != "" {
		listener, err := dispatch.Connect(cfg.BrokerURL, ctrl)
		if err != nil {
			log.Fatalf("failed to connect dispatch listener: %v", err)
		}
		defer listener.Close()
	}

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.NewServer(ctrl, states, database, confSetter, nil).Router(),
	}
	go func() {
		log.Printf("API listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := sys.Stop(); err != nil {
		log.Printf("shutdown incomplete: %v", err)
	} else {
		log.Println("graceful shutdown complete")
	}
}

// buildMonitors opens each lane's video source and constructs its
// monitor. A source that fails to open costs only its own lane; the
// error is returned per lane so the caller can report a partial start.
func buildMonitors(cfg config.Config, states *lanestate.Table, detector detect.Detector) ([]*monitor.Monitor, map[int]error) {
	monitors := make([]*monitor.Monitor, 0, cfg.LaneCount)
	failed := make(map[int]error)

	for lane := 1; lane <= cfg.LaneCount; lane++ {
		var src video.Source
		if lane-1 < len(cfg.VideoPaths) {
			fileSrc, err := video.OpenFile(cfg.VideoPaths[lane-1])
			if err != nil {
				failed[lane] = err
				continue
			}
			src = fileSrc
		} else {
			// no footage configured for this lane; loop a blank frame
			// so the detector still paces the monitor
			src = video.NewLoopSource([]byte{})
		}

		monitors = append(monitors, &monitor.Monitor{
			LaneID:   lane,
			Source:   src,
			Detector: detector,
			States:   states,
			Interval: cfg.MonitorInterval,
		})
	}
	return monitors, failed
}

// cycleLogger adapts the database to the controller's logger contract.
func cycleLogger(database *db.DB) controller.CycleLogger {
	return controller.CycleLoggerFunc(func(rec controller.CycleRecord) error {
		return database.RecordCycle(db.Cycle{
			RecordedAt:   rec.RecordedAt,
			LaneID:       rec.LaneID,
			Counts:       rec.Counts,
			Ambulance:    rec.Ambulance,
			GreenSeconds: rec.Green.Seconds(),
			Mode:         rec.Mode.String(),
		})
	})
}

func timingsFromConfig(cfg config.Config) traffic.Timings {
	t := traffic.DefaultTimings()
	t.Yellow = secondsToDuration(cfg.YellowSeconds)
	t.Transition = secondsToDuration(cfg.TransitionSeconds)
	t.EmergencyGreen = secondsToDuration(cfg.EmergencyGreenSeconds)
	t.PreemptPoll = time.Duration(cfg.PreemptPollMillis) * time.Millisecond
	return t
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// devDetector returns a scripted detector that exercises all three
// green tiers and an occasional ambulance, so dev mode shows the full
// state machine without a model server.
func devDetector() detect.Detector {
	d := detect.NewScriptedDetector(
		detect.Result{Counts: map[string]int{"car": 18, "truck": 3}},
		detect.Result{Counts: map[string]int{"car": 7, "bus": 1}},
		detect.Result{Counts: map[string]int{"car": 2}},
		detect.Result{Counts: map[string]int{"car": 9}, Ambulance: true},
		detect.Result{Counts: map[string]int{"car": 4, "motorcycle": 2}},
	)
	d.Loop = true
	return d
}
