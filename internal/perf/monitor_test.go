package perf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func feed(m *Monitor, start time.Time, dt time.Duration, frames int) (Report, bool, time.Time) {
	now := start
	var (
		r  Report
		ok bool
	)
	for i := 0; i < frames; i++ {
		now = now.Add(dt)
		if rep, low := m.RecordFrame(dt, now); !rep.At.IsZero() {
			r, ok = rep, low
		}
	}
	return r, ok, now
}

func TestMonitorHealthyFrames(t *testing.T) {
	start := time.Unix(100, 0)
	m := NewMonitor(0)
	m.Start(start)

	r, low, _ := feed(m, start, time.Second/60, 150)
	assert.False(t, low)
	assert.InDelta(t, 60, r.AverageFPS, 0.5)
	assert.False(t, r.IsLow)
}

func TestMonitorLowAndCritical(t *testing.T) {
	start := time.Unix(100, 0)
	m := NewMonitor(0)
	m.Start(start)

	r, low, _ := feed(m, start, time.Second/30, 80)
	assert.True(t, low)
	assert.Equal(t, SeverityWarning, r.Severity)

	critical := NewMonitor(0)
	critical.Start(start)
	r, low, _ = feed(critical, start, time.Second/10, 30)
	assert.True(t, low)
	assert.Equal(t, SeverityCritical, r.Severity)
	assert.Contains(t, r.Message(), "FPS")
}

func TestMonitorLowFrameRatio(t *testing.T) {
	start := time.Unix(100, 0)
	m := NewMonitor(0)
	m.Start(start)

	// 平均は閾値を超えるが、遅いフレームが1割を超える
	now := start
	var low bool
	var r Report
	for i := 0; i < 200; i++ {
		dt := time.Second / 120
		if i%5 == 0 {
			dt = time.Second / 30
		}
		now = now.Add(dt)
		if rep, l := m.RecordFrame(dt, now); !rep.At.IsZero() {
			r, low = rep, l
		}
	}
	assert.True(t, low)
	assert.Greater(t, r.AverageFPS, FrameRateThreshold)
	assert.Greater(t, r.LowRatio, 0.1)
}

func TestMonitorStopped(t *testing.T) {
	m := NewMonitor(time.Second)
	_, low := m.RecordFrame(time.Second, time.Unix(5, 0))
	assert.False(t, low)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, SeverityCritical, Classify(19.9))
	assert.Equal(t, SeverityWarning, Classify(20))
}
