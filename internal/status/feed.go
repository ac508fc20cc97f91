package status

import (
	"sync"
	"time"
)

// FeedChangeCallback is called when the live feed connects or disconnects.
type FeedChangeCallback func(connected bool)

// FeedStatus is a point-in-time view of the live feed connection.
type FeedStatus struct {
	Source    string    `json:"source"`
	Connected bool      `json:"connected"`
	Since     time.Time `json:"since"`
	LastError string    `json:"last_error,omitempty"`
}

// Feed tracks the live feed connection.
type Feed struct {
	mu        sync.RWMutex
	source    string
	connected bool
	since     time.Time
	lastError string
	callbacks []FeedChangeCallback
	now       func() time.Time
}

func NewFeed(source string) *Feed {
	return &Feed{source: source, since: time.Now(), now: time.Now}
}

// SetConnected updates the connection state. Callbacks run only on change.
func (f *Feed) SetConnected(connected bool) {
	f.mu.Lock()
	previous := f.connected
	f.connected = connected
	if previous != connected {
		f.since = f.now()
	}
	if connected {
		f.lastError = ""
	}
	callbacks := make([]FeedChangeCallback, len(f.callbacks))
	copy(callbacks, f.callbacks)
	f.mu.Unlock()

	// 状態が変わったときだけ通知する
	if previous == connected {
		return
	}
	for _, callback := range callbacks {
		if callback != nil {
			callback(connected)
		}
	}
}

// SetError records the latest connection error.
func (f *Feed) SetError(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastError = err.Error()
}

func (f *Feed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

func (f *Feed) Status() FeedStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FeedStatus{Source: f.source, Connected: f.connected, Since: f.since, LastError: f.lastError}
}

// OnChange registers a callback for connection changes.
func (f *Feed) OnChange(callback FeedChangeCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, callback)
}
