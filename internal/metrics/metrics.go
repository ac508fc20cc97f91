package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Wheel Metrics
var (
	EntriesGranted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameEntriesGranted,
			Help: HelpTextEntriesGranted,
		},
		[]string{LabelMode},
	)

	EntriesCapped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameEntriesCapped,
			Help: HelpTextEntriesCapped,
		},
		[]string{LabelMode},
	)

	Spins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameSpins,
			Help: HelpTextSpins,
		},
		[]string{LabelTrigger},
	)

	SpinDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    MetricNameSpinDuration,
			Help:    HelpTextSpinDuration,
			Buckets: SpinDurationBuckets,
		},
	)

	RejectedActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameRejectedActions,
			Help: HelpTextRejectedActions,
		},
		[]string{LabelAction},
	)

	Entries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameEntries,
			Help: HelpTextEntries,
		},
	)

	PerformanceWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNamePerfWarnings,
			Help: HelpTextPerfWarnings,
		},
		[]string{LabelSeverity},
	)
)

// Live Feed Metrics
var (
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameEventsReceived,
			Help: HelpTextEventsReceived,
		},
		[]string{LabelKind},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameEventsDropped,
			Help: HelpTextEventsDropped,
		},
		[]string{LabelReason},
	)
)

// Overlay Metrics
var (
	OverlayClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameOverlayClients,
			Help: HelpTextOverlayClients,
		},
	)
)
