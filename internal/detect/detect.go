// Package detect defines the vehicle detection contract and the
// clients that satisfy it. Inference itself runs out of process; this
// package only moves frames out and results back.
package detect

import (
	"context"
	"time"
)

// Result is one detection pass over a single frame.
type Result struct {
	// Counts maps vehicle class ("car", "bus", "truck", "motorcycle")
	// to the number detected.
	Counts map[string]int `json:"counts"`

	// Ambulance reports whether an emergency vehicle was detected.
	Ambulance bool `json:"ambulance"`
}

// Total returns the total vehicle count across classes.
func (r Result) Total() int {
	total := 0
	for _, n := range r.Counts {
		total += n
	}
	return total
}

// Detector turns a frame into per-class vehicle counts and an
// ambulance-presence flag. Implementations must tolerate a nil or empty
// frame by returning an empty Result with no error.
type Detector interface {
	Detect(ctx context.Context, frame []byte) (Result, error)
}

// DefaultTimeout bounds a single detection call when the caller's
// context carries no deadline.
const DefaultTimeout = 10 * time.Second
