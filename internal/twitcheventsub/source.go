// Package twitcheventsub feeds Twitch EventSub notifications into the wheel
// as a livefeed.Source.
package twitcheventsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ichi0g0y/wheel-overlay/internal/livefeed"
	"github.com/ichi0g0y/wheel-overlay/internal/types"
	"github.com/joeyak/go-twitch-eventsub/v3"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("twitch client id, access token and user id are required")

// Events are the subscriptions the wheel needs.
var Events = []twitch.EventSubscription{
	twitch.SubChannelCheer,
	twitch.SubChannelChatMessage,
	twitch.SubChannelFollow,
	twitch.SubChannelSubscribe,
}

type Config struct {
	ClientID    string
	AccessToken string
	UserID      string
}

func (c Config) valid() bool {
	return c.ClientID != "" && c.AccessToken != "" && c.UserID != ""
}

// Source translates EventSub notifications into platform-neutral payloads.
type Source struct {
	*livefeed.Emitter

	cfg Config
	log *zap.Logger

	mu          sync.RWMutex
	client      *twitch.Client
	isRunning   bool
	isConnected bool
	lastError   error
	onError     func(error)

	// channel.subscribeで見たユーザー。以降のイベントにisSubscriberを付ける
	subscribers map[string]bool
}

func NewSource(cfg Config, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{
		Emitter:     livefeed.NewEmitter(),
		cfg:         cfg,
		log:         log,
		subscribers: make(map[string]bool),
	}
}

// Start connects to EventSub in the background.
func (s *Source) Start() error {
	if !s.cfg.valid() {
		return ErrNotConfigured
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	client := twitch.NewClient()
	s.client = client
	s.isRunning = true
	s.mu.Unlock()

	client.OnError(func(err error) {
		s.log.Error("EventSub error", zap.Error(err))
		s.setConnected(false, err)
	})
	client.OnWelcome(func(message twitch.WelcomeMessage) {
		s.log.Info("EventSub connected successfully")
		s.setConnected(true, nil)
		s.subscribeAll(message.Payload.Session.ID)
	})
	client.OnNotification(func(message twitch.NotificationMessage) {
		if message.Payload.Event == nil {
			return
		}
		if err := s.HandleNotification(message.Payload.Subscription.Type, *message.Payload.Event); err != nil {
			s.log.Error("Failed to handle EventSub notification",
				zap.String("type", string(message.Payload.Subscription.Type)),
				zap.Error(err))
		}
	})
	client.OnKeepAlive(func(message twitch.KeepAliveMessage) {
		// KeepAliveを受信できていれば接続は生きている
		s.setConnected(true, nil)
	})
	client.OnRevoke(func(message twitch.RevokeMessage) {
		s.log.Warn("EventSub subscription revoked",
			zap.String("type", string(message.Payload.Subscription.Type)),
			zap.String("status", message.Payload.Subscription.Status))
	})

	go func() {
		s.log.Info("Connecting to EventSub...")
		if err := client.Connect(); err != nil {
			s.log.Error("Failed to connect EventSub", zap.Error(err))
			s.setConnected(false, err)
		}
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()
	return nil
}

// Stop closes the EventSub connection.
func (s *Source) Stop() {
	s.mu.Lock()
	client := s.client
	running := s.isRunning
	s.isRunning = false
	s.mu.Unlock()

	if client != nil && running {
		client.Close()
	}
	s.setConnected(false, nil)
}

func (s *Source) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

func (s *Source) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// OnError registers fn to receive connection errors.
func (s *Source) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

func (s *Source) setConnected(connected bool, err error) {
	s.mu.Lock()
	previous := s.isConnected
	s.isConnected = connected
	if err != nil {
		s.lastError = err
	} else if connected {
		s.lastError = nil
	}
	onError := s.onError
	s.mu.Unlock()

	if err != nil && onError != nil {
		onError(err)
	}

	if previous == connected {
		return
	}
	if connected {
		s.Emit(types.EventConnect, nil)
	} else {
		s.Emit(types.EventDisconnect, nil)
	}
}

func (s *Source) subscribeAll(sessionID string) {
	for _, event := range Events {
		_, err := twitch.SubscribeEvent(twitch.SubscribeRequest{
			SessionID:   sessionID,
			ClientID:    s.cfg.ClientID,
			AccessToken: s.cfg.AccessToken,
			Event:       event,
			Condition: map[string]string{
				"broadcaster_user_id": s.cfg.UserID,
				"moderator_user_id":   s.cfg.UserID,
				"user_id":             s.cfg.UserID,
			},
		})
		if err != nil {
			// 失敗しても他のイベントの購読は続ける
			s.log.Error("Failed to subscribe to event", zap.String("event", string(event)), zap.Error(err))
			continue
		}
		s.log.Info("Successfully subscribed to event", zap.String("event", string(event)))
	}
}

// viewer is the payload shape the feed normalizer understands.
type viewer struct {
	UserID       string `json:"userId"`
	UniqueID     string `json:"uniqueId,omitempty"`
	Nickname     string `json:"nickname,omitempty"`
	IsSubscriber bool   `json:"isSubscriber,omitempty"`
}

type giftPayload struct {
	viewer
	GiftID       string `json:"giftId"`
	DiamondCount int    `json:"diamondCount"`
	RepeatCount  int    `json:"repeatCount"`
	RepeatEnd    bool   `json:"repeatEnd"`
}

type chatPayload struct {
	viewer
	Comment string `json:"comment"`
	MsgID   string `json:"msgId,omitempty"`
}

// HandleNotification translates one EventSub event and emits it.
func (s *Source) HandleNotification(subType twitch.EventSubscription, raw json.RawMessage) error {
	switch subType {
	case twitch.SubChannelCheer:
		var evt twitch.EventChannelCheer
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("failed to parse cheer event: %w", err)
		}
		if evt.IsAnonymous || evt.User.UserID == "" {
			return nil
		}
		return s.emitJSON(types.EventGift, giftPayload{
			viewer:       s.viewer(evt.User.UserID, evt.User.UserName),
			GiftID:       "bits",
			DiamondCount: int(evt.Bits),
			RepeatCount:  1,
			RepeatEnd:    true,
		})

	case twitch.SubChannelChatMessage:
		var evt twitch.EventChannelChatMessage
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("failed to parse channel chat message event: %w", err)
		}
		return s.emitJSON(types.EventChat, chatPayload{
			viewer:  s.viewer(evt.Chatter.ChatterUserId, evt.Chatter.ChatterUserName),
			Comment: evt.Message.Text,
			MsgID:   evt.MessageId,
		})

	case twitch.SubChannelFollow:
		var evt twitch.EventChannelFollow
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("failed to parse follow event: %w", err)
		}
		return s.emitJSON(types.EventMember, s.viewer(evt.User.UserID, evt.User.UserName))

	case twitch.SubChannelSubscribe:
		var evt twitch.EventChannelSubscribe
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("failed to parse subscribe event: %w", err)
		}
		s.markSubscriber(evt.User.UserID)
		s.log.Debug("Viewer subscribed", zap.String("user", evt.User.UserName))
		return nil

	default:
		s.log.Debug("Unhandled EventSub notification", zap.String("type", string(subType)))
		return nil
	}
}

func (s *Source) markSubscriber(userID string) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[userID] = true
}

func (s *Source) viewer(userID, name string) viewer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return viewer{UserID: userID, UniqueID: name, Nickname: name, IsSubscriber: s.subscribers[userID]}
}

func (s *Source) emitJSON(kind types.EventKind, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	s.Emit(kind, b)
	return nil
}
