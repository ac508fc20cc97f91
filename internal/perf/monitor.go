// Package perf watches the spin frame rate and reports sustained slowdowns.
package perf

import (
	"fmt"
	"math"
	"time"
)

const (
	FrameRateThreshold = 45.0 // fps
	CriticalFrameRate  = 20.0 // fps
	SampleSize         = 60
	ReportInterval     = 2 * time.Second

	lowFrameRatioLimit = 0.1
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Report summarises the frames seen since the previous report.
type Report struct {
	At          time.Time `json:"timestamp"`
	AverageFPS  float64   `json:"averageFps"`
	MinFPS      float64   `json:"minFps"`
	MaxFPS      float64   `json:"maxFps"`
	LowRatio    float64   `json:"lowPerformanceRatio"`
	LowFrames   int       `json:"lowPerformanceCount"`
	TotalFrames int       `json:"totalFrames"`
	IsLow       bool      `json:"isLowPerformance"`
	Severity    Severity  `json:"severity,omitempty"`
}

// Message is the human-readable warning text.
func (r Report) Message() string {
	return fmt.Sprintf("Low performance detected: %.0f FPS", r.AverageFPS)
}

// Monitor is owned by the spin loop and is not safe for concurrent use.
type Monitor struct {
	interval   time.Duration
	samples    []float64
	frames     int
	lowFrames  int
	lastReport time.Time
	running    bool
}

func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = ReportInterval
	}
	return &Monitor{interval: interval, samples: make([]float64, 0, SampleSize)}
}

// Start resets the counters.
func (m *Monitor) Start(now time.Time) {
	m.samples = m.samples[:0]
	m.frames = 0
	m.lowFrames = 0
	m.lastReport = now
	m.running = true
}

func (m *Monitor) Stop() {
	m.running = false
}

// RecordFrame adds one frame of length dt. When a report interval has passed
// it returns the report, with ok true only if performance was low.
func (m *Monitor) RecordFrame(dt time.Duration, now time.Time) (Report, bool) {
	if !m.running || dt <= 0 {
		return Report{}, false
	}

	fps := 1 / dt.Seconds()
	if len(m.samples) == SampleSize {
		copy(m.samples, m.samples[1:])
		m.samples = m.samples[:SampleSize-1]
	}
	m.samples = append(m.samples, fps)
	m.frames++
	if fps < FrameRateThreshold {
		m.lowFrames++
	}

	if now.Sub(m.lastReport) < m.interval {
		return Report{}, false
	}
	r := m.report(now)
	m.lastReport = now
	m.frames = 0
	m.lowFrames = 0
	return r, r.IsLow
}

func (m *Monitor) report(now time.Time) Report {
	r := Report{At: now, MinFPS: math.Inf(1), LowFrames: m.lowFrames, TotalFrames: m.frames}
	sum := 0.0
	for _, s := range m.samples {
		sum += s
		r.MinFPS = math.Min(r.MinFPS, s)
		r.MaxFPS = math.Max(r.MaxFPS, s)
	}
	if len(m.samples) == 0 {
		r.MinFPS = 0
		return r
	}
	r.AverageFPS = sum / float64(len(m.samples))
	if m.frames > 0 {
		r.LowRatio = float64(m.lowFrames) / float64(m.frames)
	}
	r.IsLow = r.AverageFPS < FrameRateThreshold || r.LowRatio > lowFrameRatioLimit
	if r.IsLow {
		r.Severity = Classify(r.AverageFPS)
	}
	return r
}

// Classify maps an average frame rate to a warning severity.
func Classify(fps float64) Severity {
	if fps < CriticalFrameRate {
		return SeverityCritical
	}
	return SeverityWarning
}
