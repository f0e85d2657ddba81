package traffic

import "time"

// Fixed baseline against which saved wait time is measured. A naive
// fixed-plan signal holds every lane green for this long.
const FixedGreen = 60 * time.Second

// Timings is the timing plan for the signal state machine. All phase
// waits driven by these values are cancellable; the controller never
// performs an uninterruptible sleep.
type Timings struct {
	// Yellow is the clearance phase after a green.
	Yellow time.Duration
	// Transition is the all-red delay between one lane's red and the
	// next lane's green.
	Transition time.Duration
	// EmergencyGreen is the fixed green granted to an emergency lane.
	EmergencyGreen time.Duration

	// Green tiers, selected by total vehicle count.
	LongGreen   time.Duration
	MediumGreen time.Duration
	ShortGreen  time.Duration

	// HighThreshold and LowThreshold split the tiers: counts above
	// HighThreshold get LongGreen, counts at or above LowThreshold get
	// MediumGreen, anything below gets ShortGreen.
	HighThreshold int
	LowThreshold  int

	// PreemptPoll bounds preemption latency: even without a wake pulse
	// the controller re-checks for emergencies at this interval while
	// holding a green.
	PreemptPoll time.Duration

	// ErrorBackoff is how long the control loop pauses after an
	// unexpected cycle error before resuming.
	ErrorBackoff time.Duration
}

// DefaultTimings returns the standard timing plan.
func DefaultTimings() Timings {
	return Timings{
		Yellow:         3 * time.Second,
		Transition:     2 * time.Second,
		EmergencyGreen: 45 * time.Second,
		LongGreen:      60 * time.Second,
		MediumGreen:    30 * time.Second,
		ShortGreen:     15 * time.Second,
		HighThreshold:  15,
		LowThreshold:   5,
		PreemptPoll:    200 * time.Millisecond,
		ErrorBackoff:   5 * time.Second,
	}
}

// GreenDuration selects the green tier for a total vehicle count.
func (t Timings) GreenDuration(totalVehicles int) time.Duration {
	switch {
	case totalVehicles > t.HighThreshold:
		return t.LongGreen
	case totalVehicles >= t.LowThreshold:
		return t.MediumGreen
	default:
		return t.ShortGreen
	}
}

// WaitSaved returns the wait time saved by a green phase relative to
// the fixed 60s baseline. Never negative.
func WaitSaved(green time.Duration) time.Duration {
	if saved := FixedGreen - green; saved > 0 {
		return saved
	}
	return 0
}
