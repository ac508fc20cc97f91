package twitcheventsub

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ichi0g0y/wheel-overlay/internal/livefeed"
	"github.com/ichi0g0y/wheel-overlay/internal/types"
	"github.com/joeyak/go-twitch-eventsub/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(s *Source) *[]string {
	var got []string
	livefeed.SubscribeAll(s, func(kind types.EventKind, payload []byte) {
		got = append(got, string(kind)+" "+string(payload))
	})
	return &got
}

func TestCheerBecomesGift(t *testing.T) {
	s := NewSource(Config{}, nil)
	got := capture(s)

	err := s.HandleNotification(twitch.SubChannelCheer, json.RawMessage(
		`{"user_id":"77","user_login":"bitsy","user_name":"Bitsy","is_anonymous":false,"bits":250}`))
	require.NoError(t, err)
	require.Len(t, *got, 1)

	kind, payload, _ := strings.Cut((*got)[0], " ")
	assert.Equal(t, "gift", kind)
	assert.JSONEq(t, `{"userId":"77","uniqueId":"Bitsy","nickname":"Bitsy","giftId":"bits","diamondCount":250,"repeatCount":1,"repeatEnd":true}`, payload)
}

func TestAnonymousCheerIgnored(t *testing.T) {
	s := NewSource(Config{}, nil)
	got := capture(s)

	require.NoError(t, s.HandleNotification(twitch.SubChannelCheer, json.RawMessage(`{"is_anonymous":true,"bits":100}`)))
	assert.Empty(t, *got)
}

func TestSubscribeMarksLaterEvents(t *testing.T) {
	s := NewSource(Config{}, nil)
	got := capture(s)

	require.NoError(t, s.HandleNotification(twitch.SubChannelFollow, json.RawMessage(`{"user_id":"5","user_name":"Five"}`)))
	require.NoError(t, s.HandleNotification(twitch.SubChannelSubscribe, json.RawMessage(`{"user_id":"5","user_name":"Five","tier":"1000"}`)))
	require.NoError(t, s.HandleNotification(twitch.SubChannelFollow, json.RawMessage(`{"user_id":"5","user_name":"Five"}`)))

	require.Len(t, *got, 2)
	_, first, _ := strings.Cut((*got)[0], " ")
	_, second, _ := strings.Cut((*got)[1], " ")
	assert.NotContains(t, first, "isSubscriber")
	assert.Contains(t, second, `"isSubscriber":true`)
}

func TestMalformedNotification(t *testing.T) {
	s := NewSource(Config{}, nil)
	assert.Error(t, s.HandleNotification(twitch.SubChannelFollow, json.RawMessage(`[`)))
}

func TestStartRequiresConfig(t *testing.T) {
	s := NewSource(Config{ClientID: "id"}, nil)
	assert.ErrorIs(t, s.Start(), ErrNotConfigured)
}

func TestConnectionEventsOnlyOnChange(t *testing.T) {
	s := NewSource(Config{}, nil)
	got := capture(s)

	s.setConnected(true, nil)
	s.setConnected(true, nil)
	s.setConnected(false, assert.AnError)

	assert.Equal(t, []string{"connect ", "disconnect "}, *got)
	assert.ErrorIs(t, s.LastError(), assert.AnError)
	assert.False(t, s.IsConnected())
}
