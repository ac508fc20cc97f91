package wheel

import (
	"context"
	"testing"
	"time"

	"github.com/ichi0g0y/wheel-overlay/internal/accumulator"
	"github.com/ichi0g0y/wheel-overlay/internal/livefeed"
	"github.com/ichi0g0y/wheel-overlay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceHandleRawGiftCombo(t *testing.T) {
	h := newHarness(t, types.ModeGifts)
	svc := NewService(h.m, nil, nil)
	require.NoError(t, h.m.StartCollecting())

	svc.HandleRaw(types.EventGift, []byte(`{"userId":"1","uniqueId":"ann","groupId":"c1","diamondCount":5,"repeatCount":50,"createTime":1775073600}`))
	assert.Len(t, h.m.Snapshot().Entries, 2)

	// 同じペイロードの再送は無視される
	svc.HandleRaw(types.EventGift, []byte(`{"userId":"1","uniqueId":"ann","groupId":"c1","diamondCount":5,"repeatCount":50,"createTime":1775073600}`))
	assert.Len(t, h.m.Snapshot().Entries, 2)

	svc.HandleRaw(types.EventGift, []byte(`{"userId":"1","uniqueId":"ann","groupId":"c1","diamondCount":5,"repeatCount":64,"createTime":1775073601}`))
	entries := h.m.Snapshot().Entries
	require.Len(t, entries, 3)
	assert.Equal(t, "ann", entries[2].Name)
}

func TestServiceHandleRawHugeGiftIsCapped(t *testing.T) {
	h := newHarness(t, types.ModeGifts)
	svc := NewService(h.m, nil, nil)
	require.NoError(t, h.m.StartCollecting())

	require.NotPanics(t, func() {
		svc.HandleRaw(types.EventGift, []byte(`{"userId":"1","uniqueId":"whale","diamondCount":9000000000000000,"repeatCount":1,"repeatEnd":true}`))
		svc.HandleRaw(types.EventGift, []byte(`{"userId":"2","uniqueId":"orca","diamondCount":4000000000,"repeatCount":4000000000,"repeatEnd":true}`))
	})

	st := h.m.Snapshot()
	assert.False(t, st.HasError)
	assert.Len(t, st.Entries, 2*accumulator.MaxEntriesPerEvent)
}

func TestServiceHandleRawRecoversFromPanic(t *testing.T) {
	h := newHarness(t, types.ModeJoins)
	svc := NewService(h.m, nil, nil)
	require.NoError(t, h.m.StartCollecting())

	panicked := false
	defer h.m.Subscribe(func(n Notification) {
		if n.Type == NotifyEntriesChanged && !panicked {
			panicked = true
			panic("listener blew up")
		}
	})()

	require.NotPanics(t, func() {
		svc.HandleRaw(types.EventMember, []byte(`{"userId":"9","nickname":"Neo"}`))
	})

	st := h.m.Snapshot()
	assert.True(t, panicked)
	assert.True(t, st.HasError)
	assert.Equal(t, "ingest", st.Error)
	assert.Equal(t, PhaseIdle, st.Phase)
}

func TestServiceHandleRawDropsMalformed(t *testing.T) {
	h := newHarness(t, types.ModeJoins)
	svc := NewService(h.m, nil, nil)
	require.NoError(t, h.m.StartCollecting())

	svc.HandleRaw(types.EventMember, []byte(`not json`))
	svc.HandleRaw(types.EventMember, []byte(`{"comment":"no user"}`))
	assert.Empty(t, h.m.Snapshot().Entries)

	svc.HandleRaw(types.EventMember, []byte(`{"userId":"9","nickname":"Neo"}`))
	assert.Len(t, h.m.Snapshot().Entries, 1)
}

func TestServiceConnectionEvents(t *testing.T) {
	h := newHarness(t, types.ModeJoins)
	svc := NewService(h.m, nil, nil)

	svc.HandleRaw(types.EventConnect, nil)
	assert.True(t, h.m.Snapshot().IsConnected)
	svc.HandleRaw(types.EventDisconnect, nil)
	assert.False(t, h.m.Snapshot().IsConnected)
}

func TestServiceSubscribesToSource(t *testing.T) {
	m := NewMachine(Config{Mode: types.ModeJoins})
	svc := NewService(m, nil, nil)
	src := livefeed.NewEmitter()

	require.NoError(t, svc.Start(context.Background(), src))
	require.NoError(t, m.StartCollecting())

	src.Emit(types.EventMember, []byte(`{"userId":"42","uniqueId":"zed"}`))
	assert.Len(t, m.Snapshot().Entries, 1)

	svc.Stop()
	src.Emit(types.EventMember, []byte(`{"userId":"43","uniqueId":"yan"}`))
	assert.Len(t, m.Snapshot().Entries, 1)
}

func TestServiceDrivesSpinToResolution(t *testing.T) {
	s := DefaultSettings()
	s.SpinDuration = 2
	m := NewMachine(Config{Mode: types.ModeJoins, Settings: &s})
	svc := NewService(m, nil, nil)
	require.NoError(t, svc.Start(context.Background(), nil))
	defer svc.Stop()

	resolved := make(chan SpinResolved, 1)
	defer m.Subscribe(func(n Notification) {
		if r, ok := n.Data.(SpinResolved); ok {
			resolved <- r
		}
	})()

	require.NoError(t, m.AddTestEntries(6))
	require.NoError(t, m.StartSpin(TriggerManual))

	select {
	case r := <-resolved:
		assert.GreaterOrEqual(t, r.WinnerIndex, 0)
		assert.Less(t, r.WinnerIndex, 6)
		assert.Equal(t, PhaseResolved, m.Snapshot().Phase)
	case <-time.After(10 * time.Second):
		t.Fatal("spin did not resolve")
	}
}
