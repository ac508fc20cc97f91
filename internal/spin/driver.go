package spin

import "time"

// Driver feeds wall-clock frame times into a Physics, dropping frames that
// arrive too quickly and clamping long stalls.
type Driver struct {
	physics *Physics
	last    time.Time
}

func NewDriver(p *Physics, start time.Time) *Driver {
	return &Driver{physics: p, last: start}
}

// Frame advances the spin to now. stepped is false when the frame was
// skipped because it came less than one tick after the previous one.
func (d *Driver) Frame(now time.Time) (res StepResult, dt time.Duration, stepped bool) {
	dt = now.Sub(d.last)
	if dt < minFrameInterval && !d.physics.Done() {
		return StepResult{Index: d.physics.lastIndex}, 0, false
	}
	if dt > maxFrameInterval {
		dt = maxFrameInterval
	}
	d.last = now
	return d.physics.Step(dt), dt, true
}

func (d *Driver) Physics() *Physics {
	return d.physics
}

// FrameInterval is the ticker period used to drive spins.
func FrameInterval() time.Duration {
	return time.Second / time.Duration(TickRateHz)
}
