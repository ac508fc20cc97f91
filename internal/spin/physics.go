// Package spin simulates the decelerating wheel and resolves the segment
// that ends under the pointer.
package spin

import (
	"math"
	"time"
)

const (
	InitialVelocity = 1500.0 // deg/s
	MinVelocity     = 2.0    // deg/s
	TickRateHz      = 60.0
	DefaultFriction = 0.985

	minFriction = 0.9
	maxFriction = 0.9995

	// Frames closer together than this are skipped.
	minFrameInterval = 16 * time.Millisecond
	// Longer gaps (tab suspended, GC pause) are clamped so the wheel does not jump.
	maxFrameInterval = 250 * time.Millisecond
)

// FrictionFor solves the per-tick decay that brings InitialVelocity down to
// MinVelocity in roughly duration, clamped to [minFriction, maxFriction].
// Non-positive durations use DefaultFriction.
func FrictionFor(duration time.Duration) float64 {
	secs := duration.Seconds()
	if secs <= 0 {
		return DefaultFriction
	}
	f := math.Pow(MinVelocity/InitialVelocity, 1/(secs*TickRateHz))
	switch {
	case math.IsNaN(f):
		return DefaultFriction
	case f < minFriction:
		return minFriction
	case f > maxFriction:
		return maxFriction
	}
	return f
}

// SegmentAt returns the index of the segment under the pointer for a wheel of
// n equal segments rotated by rotation degrees, or -1 when n is zero.
func SegmentAt(rotation float64, n int) int {
	if n <= 0 {
		return -1
	}
	width := 360.0 / float64(n)
	normalized := math.Mod(360-math.Mod(rotation, 360), 360)
	if normalized < 0 {
		normalized += 360
	}
	idx := int(math.Floor(normalized / width))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// Physics is the state of one spin. It is not safe for concurrent use.
type Physics struct {
	Rotation float64
	Velocity float64
	Friction float64
	Segments int

	lastIndex int
	done      bool
}

// NewPhysics starts a spin at rotation with the friction for duration.
func NewPhysics(rotation float64, duration time.Duration, segments int) *Physics {
	return &Physics{
		Rotation:  rotation,
		Velocity:  InitialVelocity,
		Friction:  FrictionFor(duration),
		Segments:  segments,
		lastIndex: SegmentAt(rotation, segments),
	}
}

// StepResult reports what happened during one Step.
type StepResult struct {
	// Tick is true when a segment boundary crossed the pointer.
	Tick bool
	// Index is the segment currently under the pointer.
	Index int
	// Done is true once the wheel has stopped.
	Done bool
}

// Step advances the wheel by dt.
func (p *Physics) Step(dt time.Duration) StepResult {
	if p.done {
		return StepResult{Index: p.lastIndex, Done: true}
	}
	secs := dt.Seconds()
	if secs < 0 {
		secs = 0
	}

	p.Velocity *= math.Pow(p.Friction, secs*TickRateHz)
	if p.Velocity < MinVelocity {
		p.done = true
		p.Velocity = 0
		p.lastIndex = SegmentAt(p.Rotation, p.Segments)
		return StepResult{Index: p.lastIndex, Done: true}
	}

	p.Rotation += p.Velocity * secs
	idx := SegmentAt(p.Rotation, p.Segments)
	tick := idx != p.lastIndex && p.Velocity > 1
	p.lastIndex = idx
	return StepResult{Tick: tick, Index: idx}
}

// Done reports whether the wheel has stopped.
func (p *Physics) Done() bool {
	return p.done
}

// Winner returns the resting segment, or -1 while still moving or for an empty wheel.
func (p *Physics) Winner() int {
	if !p.done {
		return -1
	}
	return SegmentAt(p.Rotation, p.Segments)
}

// Simulate runs a spin to completion with a fixed frame interval and returns
// the final rotation, the winning index and the simulated duration.
func Simulate(rotation float64, duration time.Duration, segments int, frame time.Duration) (float64, int, time.Duration) {
	if frame <= 0 {
		frame = time.Second / time.Duration(TickRateHz)
	}
	p := NewPhysics(rotation, duration, segments)
	var elapsed time.Duration
	for !p.Done() {
		p.Step(frame)
		elapsed += frame
	}
	return p.Rotation, p.Winner(), elapsed
}
