package status

import (
	"errors"
	"testing"
)

func TestFeedCallbacksOnlyOnChange(t *testing.T) {
	f := NewFeed("relay")
	var calls []bool
	f.OnChange(func(connected bool) { calls = append(calls, connected) })

	f.SetConnected(true)
	f.SetConnected(true)
	f.SetConnected(false)

	if len(calls) != 2 || !calls[0] || calls[1] {
		t.Fatalf("calls = %v, want [true false]", calls)
	}
}

func TestFeedStatus(t *testing.T) {
	f := NewFeed("twitch")
	f.SetError(errors.New("dial failed"))

	st := f.Status()
	if st.Source != "twitch" || st.Connected || st.LastError != "dial failed" {
		t.Fatalf("unexpected status: %+v", st)
	}

	f.SetConnected(true)
	st = f.Status()
	if !st.Connected || st.LastError != "" {
		t.Fatalf("connect should clear the error: %+v", st)
	}
	if !f.IsConnected() {
		t.Fatal("IsConnected() = false")
	}
}
