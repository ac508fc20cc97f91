package main

import (
	"context"
	"errors"

	"github.com/ichi0g0y/wheel-overlay/internal/env"
	"github.com/ichi0g0y/wheel-overlay/internal/livefeed"
	"github.com/ichi0g0y/wheel-overlay/internal/livefeed/relay"
	"github.com/ichi0g0y/wheel-overlay/internal/shared/logger"
	"github.com/ichi0g0y/wheel-overlay/internal/status"
	"github.com/ichi0g0y/wheel-overlay/internal/twitcheventsub"
	"go.uber.org/zap"
)

// liveSource is the feed chosen by LIVE_SOURCE. start runs after the wheel
// service has subscribed so the first connect event is not lost.
type liveSource struct {
	src   livefeed.Source
	feed  *status.Feed
	start func(ctx context.Context)
	stop  func()
}

// newLiveSource builds the configured source. With no usable source the wheel
// still runs and only injected events reach it.
func newLiveSource() liveSource {
	switch env.Value.LiveSource {
	case "relay":
		if env.Value.RelayURL == nil {
			logger.Warn("LIVE_SOURCE is relay but RELAY_URL is not set")
			break
		}
		client := relay.NewClient(*env.Value.RelayURL, logger.Named("relay"))
		feed := status.NewFeed("relay")
		client.OnError(feed.SetError)
		var cancel context.CancelFunc = func() {}
		return liveSource{
			src:  client,
			feed: feed,
			start: func(ctx context.Context) {
				var relayCtx context.Context
				relayCtx, cancel = context.WithCancel(ctx)
				client.Start(relayCtx)
			},
			stop: func() {
				cancel()
				client.Wait()
			},
		}

	case "twitch":
		src := twitcheventsub.NewSource(twitcheventsub.Config{
			ClientID:    deref(env.Value.TwitchClientID),
			AccessToken: deref(env.Value.TwitchAccessToken),
			UserID:      deref(env.Value.TwitchUserID),
		}, logger.Named("eventsub"))
		feed := status.NewFeed("twitch")
		src.OnError(feed.SetError)
		return liveSource{
			src:  src,
			feed: feed,
			start: func(context.Context) {
				if err := src.Start(); err != nil {
					if errors.Is(err, twitcheventsub.ErrNotConfigured) {
						logger.Warn("Twitch EventSub is not configured", zap.Error(err))
					} else {
						logger.Error("Failed to start Twitch EventSub", zap.Error(err))
					}
					feed.SetError(err)
				}
			},
			stop: src.Stop,
		}
	}

	logger.Info("No live source configured, only injected events reach the wheel")
	return liveSource{
		feed:  status.NewFeed("none"),
		start: func(context.Context) {},
		stop:  func() {},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
