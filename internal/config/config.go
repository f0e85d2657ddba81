// Package config loads the service configuration. A JSON file overlays
// the defaults; fields omitted from the file keep their default values,
// so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the resolved service configuration.
type Config struct {
	Listen          string
	DBPath          string
	LaneCount       int
	VideoPaths      []string
	DetectorURL     string
	Confidence      float64
	BrokerURL       string
	MonitorInterval time.Duration
	ShutdownTimeout time.Duration

	YellowSeconds         float64
	TransitionSeconds     float64
	EmergencyGreenSeconds float64
	PreemptPollMillis     int
}

// Default returns the standard configuration: four lanes, local model
// server, no MQTT broker.
func Default() Config {
	return Config{
		Listen:                ":8080",
		DBPath:                "traffic_data.db",
		LaneCount:             4,
		DetectorURL:           "http://localhost:9000",
		Confidence:            0.5,
		MonitorInterval:       30 * time.Millisecond,
		ShutdownTimeout:       5 * time.Second,
		YellowSeconds:         3,
		TransitionSeconds:     2,
		EmergencyGreenSeconds: 45,
		PreemptPollMillis:     200,
	}
}

// fileConfig mirrors Config with pointer fields so the JSON file can
// override any subset of values.
type fileConfig struct {
	Listen                *string  `json:"listen,omitempty"`
	DBPath                *string  `json:"db_path,omitempty"`
	LaneCount             *int     `json:"lane_count,omitempty"`
	VideoPaths            []string `json:"video_paths,omitempty"`
	DetectorURL           *string  `json:"detector_url,omitempty"`
	Confidence            *float64 `json:"confidence,omitempty"`
	BrokerURL             *string  `json:"broker_url,omitempty"`
	MonitorIntervalMillis *int     `json:"monitor_interval_millis,omitempty"`
	ShutdownTimeoutSecs   *float64 `json:"shutdown_timeout_seconds,omitempty"`
	YellowSeconds         *float64 `json:"yellow_seconds,omitempty"`
	TransitionSeconds     *float64 `json:"transition_seconds,omitempty"`
	EmergencyGreenSeconds *float64 `json:"emergency_green_seconds,omitempty"`
	PreemptPollMillis     *int     `json:"preempt_poll_millis,omitempty"`
}

const maxConfigSize = 1 << 20 // 1MB

// Load reads a JSON config file and overlays it onto the defaults. An
// empty path returns the pure defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	if fc.Listen != nil {
		cfg.Listen = *fc.Listen
	}
	if fc.DBPath != nil {
		cfg.DBPath = *fc.DBPath
	}
	if fc.LaneCount != nil {
		cfg.LaneCount = *fc.LaneCount
	}
	if fc.VideoPaths != nil {
		cfg.VideoPaths = fc.VideoPaths
	}
	if fc.DetectorURL != nil {
		cfg.DetectorURL = *fc.DetectorURL
	}
	if fc.Confidence != nil {
		cfg.Confidence = *fc.Confidence
	}
	if fc.BrokerURL != nil {
		cfg.BrokerURL = *fc.BrokerURL
	}
	if fc.MonitorIntervalMillis != nil {
		cfg.MonitorInterval = time.Duration(*fc.MonitorIntervalMillis) * time.Millisecond
	}
	if fc.ShutdownTimeoutSecs != nil {
		cfg.ShutdownTimeout = time.Duration(*fc.ShutdownTimeoutSecs * float64(time.Second))
	}
	if fc.YellowSeconds != nil {
		cfg.YellowSeconds = *fc.YellowSeconds
	}
	if fc.TransitionSeconds != nil {
		cfg.TransitionSeconds = *fc.TransitionSeconds
	}
	if fc.EmergencyGreenSeconds != nil {
		cfg.EmergencyGreenSeconds = *fc.EmergencyGreenSeconds
	}
	if fc.PreemptPollMillis != nil {
		cfg.PreemptPollMillis = *fc.PreemptPollMillis
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.LaneCount < 2 {
		return fmt.Errorf("lane_count must be at least 2, got %d", c.LaneCount)
	}
	if len(c.VideoPaths) > 0 && len(c.VideoPaths) != c.LaneCount {
		return fmt.Errorf("got %d video paths for %d lanes", len(c.VideoPaths), c.LaneCount)
	}
	if c.Confidence <= 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range (0, 1]", c.Confidence)
	}
	return nil
}
