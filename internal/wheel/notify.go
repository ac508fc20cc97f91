package wheel

import (
	"github.com/ichi0g0y/wheel-overlay/internal/types"
)

// NotificationType names what changed.
type NotificationType string

const (
	NotifyStateChanged       NotificationType = "state_changed"
	NotifyEntriesChanged     NotificationType = "entries_changed"
	NotifySpinStarted        NotificationType = "spin_started"
	NotifySpinTick           NotificationType = "spin_tick"
	NotifySpinResolved       NotificationType = "spin_resolved"
	NotifyCountdownTick      NotificationType = "countdown_tick"
	NotifyAutoSpinElapsed    NotificationType = "auto_spin_elapsed"
	NotifyError              NotificationType = "wheel_error"
	NotifyNotice             NotificationType = "wheel_notice"
	NotifyPerformanceWarning NotificationType = "performance_warning"
	NotifyFeedConnection     NotificationType = "feed_connection"
	NotifySettingsChanged    NotificationType = "settings_changed"
)

// Notification is delivered to subscribers after the machine lock is released.
type Notification struct {
	Type NotificationType `json:"type"`
	Data any              `json:"data"`
}

type EntriesChanged struct {
	Count   int                `json:"count"`
	Entries []types.WheelEntry `json:"entries"`
}

type SpinStarted struct {
	SpinID          string             `json:"spinId"`
	Trigger         string             `json:"trigger"`
	Entries         []types.WheelEntry `json:"entries"`
	Rotation        float64            `json:"rotation"`
	DurationSeconds float64            `json:"durationSeconds"`
}

type SpinTick struct {
	SpinID   string  `json:"spinId"`
	Index    int     `json:"index"`
	Rotation float64 `json:"rotation"`
}

type SpinResolved struct {
	SpinID      string           `json:"spinId"`
	WinnerIndex int              `json:"winnerIndex"`
	Winner      types.WheelEntry `json:"winner"`
	Rotation    float64          `json:"rotation"`
}

type CountdownTick struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

type Notice struct {
	Message string `json:"message"`
}

type WheelError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type FeedConnection struct {
	Connected bool `json:"connected"`
}

type SettingChanged struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Listener receives notifications. It must not call back into the machine
// synchronously for actions that wait on the listener.
type Listener func(Notification)

func (m *Machine) emit(t NotificationType, data any) {
	m.pending = append(m.pending, Notification{Type: t, Data: data})
}

func (m *Machine) emitEntries() {
	m.emit(NotifyEntriesChanged, EntriesChanged{
		Count:   len(m.state.Entries),
		Entries: append([]types.WheelEntry{}, m.state.Entries...),
	})
}

// Subscribe registers fn and returns a function that removes it.
func (m *Machine) Subscribe(fn Listener) (unsubscribe func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.listeners[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Machine) dispatch(ns []Notification) {
	if len(ns) == 0 {
		return
	}
	m.subMu.RLock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.subMu.RUnlock()

	for _, n := range ns {
		for _, l := range listeners {
			l(n)
		}
	}
}
