package metrics

// Metric names
const (
	MetricNameEntriesGranted  = "wheel_entries_granted_total"
	MetricNameEntriesCapped   = "wheel_entries_capped_total"
	MetricNameSpins           = "wheel_spins_total"
	MetricNameEventsReceived  = "wheel_events_received_total"
	MetricNameEventsDropped   = "wheel_events_dropped_total"
	MetricNameSpinDuration    = "wheel_spin_duration_seconds"
	MetricNameRejectedActions = "wheel_rejected_actions_total"
	MetricNameEntries         = "wheel_entries"
	MetricNameOverlayClients  = "wheel_overlay_clients"
	MetricNamePerfWarnings    = "wheel_performance_warnings_total"
)

// Help texts
const (
	HelpTextEntriesGranted  = "Wheel entries granted from live events, by mode"
	HelpTextEntriesCapped   = "Entries earned above the per-event cap and not granted, by mode"
	HelpTextSpins           = "Spins started, by trigger"
	HelpTextEventsReceived  = "Raw live feed events received, by kind"
	HelpTextEventsDropped   = "Live feed events dropped before accumulation, by reason"
	HelpTextSpinDuration    = "Wall-clock duration of completed spins"
	HelpTextRejectedActions = "Wheel actions rejected by the state machine, by action"
	HelpTextEntries         = "Entries currently in the wheel pool"
	HelpTextOverlayClients  = "Connected overlay websocket clients"
	HelpTextPerfWarnings    = "Spin performance warnings, by severity"
)

// Labels
const (
	LabelMode     = "mode"
	LabelTrigger  = "trigger"
	LabelKind     = "kind"
	LabelReason   = "reason"
	LabelAction   = "action"
	LabelSeverity = "severity"
)

// SpinDurationBuckets cover the 1..120 second spin range.
var SpinDurationBuckets = []float64{1, 2, 5, 10, 15, 20, 30, 45, 60, 90, 120}
