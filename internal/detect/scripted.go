package detect

import (
	"context"
	"sync"
)

// ScriptedDetector replays a programmed sequence of results. It backs
// dev mode and tests. After the script is exhausted the final entry
// repeats; an empty script yields empty results.
type ScriptedDetector struct {
	// Loop restarts the script from the top instead of repeating the
	// final entry.
	Loop bool

	mu     sync.Mutex
	script []Result
	errs   map[int]error
	calls  int
}

// NewScriptedDetector returns a detector replaying script in order.
func NewScriptedDetector(script ...Result) *ScriptedDetector {
	return &ScriptedDetector{script: script, errs: make(map[int]error)}
}

// FailAt injects err on the nth Detect call (0-based).
func (d *ScriptedDetector) FailAt(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[n] = err
}

// Append adds results to the end of the script.
func (d *ScriptedDetector) Append(results ...Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, results...)
}

// Calls reports how many times Detect has run.
func (d *ScriptedDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Detect returns the next scripted result.
func (d *ScriptedDetector) Detect(ctx context.Context, frame []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n := d.calls
	d.calls++
	if err, ok := d.errs[n]; ok {
		return Result{}, err
	}

	if len(d.script) == 0 {
		return Result{Counts: map[string]int{}}, nil
	}
	idx := n
	if idx >= len(d.script) {
		if d.Loop {
			idx = n % len(d.script)
		} else {
			idx = len(d.script) - 1
		}
	}
	r := d.script[idx]

	// copy the counts map so callers can hold the result freely
	counts := make(map[string]int, len(r.Counts))
	for k, v := range r.Counts {
		counts[k] = v
	}
	return Result{Counts: counts, Ambulance: r.Ambulance}, nil
}
