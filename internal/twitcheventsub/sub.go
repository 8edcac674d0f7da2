// Package twitcheventsub はEventSub(WebSocket)からチャンネルポイントの引き換えを受け取る。
package twitcheventsub

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/joeyak/go-twitch-eventsub/v3"
	"github.com/nantokaworks/twitch-lighter/internal/dispatch"
	"github.com/nantokaworks/twitch-lighter/internal/metrics"
	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"go.uber.org/zap"
)

const transportName = "eventsub"

type Config struct {
	ClientID      string
	BroadcasterID string
	// RewardID が空なら全リワードを受け取る
	RewardID string
}

type Client struct {
	cfg     Config
	handler func(dispatch.Redemption)

	mu          sync.Mutex
	conn        *twitch.Client
	accessToken string
	running     bool
	connected   bool
}

// New creates an EventSub source that forwards matching redemptions to handler.
func New(cfg Config, handler func(dispatch.Redemption)) *Client {
	return &Client{cfg: cfg, handler: handler}
}

// Start connects in the background using accessToken.
func (c *Client) Start(accessToken string) error {
	if accessToken == "" {
		return fmt.Errorf("no access token available")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	c.accessToken = accessToken
	conn := twitch.NewClient()
	c.setup(conn)
	c.conn = conn
	c.running = true

	go func() {
		logger.Info("Connecting to EventSub...")
		if err := conn.Connect(); err != nil {
			logger.Error("Failed to connect EventSub", zap.Error(err))
			c.setConnected(false)
		}
	}()
	return nil
}

// Stop closes the connection.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.running {
		c.conn.Close()
		c.running = false
		c.connected = false
		metrics.TransportConnected.WithLabelValues(transportName).Set(0)
	}
}

// Restart reconnects with a new token. サブスクリプションはセッションに紐づくため張り直す。
func (c *Client) Restart(accessToken string) error {
	c.Stop()
	return c.Start(accessToken)
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()

	v := 0.0
	if connected {
		v = 1
	}
	metrics.TransportConnected.WithLabelValues(transportName).Set(v)
}

func (c *Client) setup(conn *twitch.Client) {
	conn.OnError(func(err error) {
		logger.Error("EventSub error", zap.Error(err))
		c.setConnected(false)
	})
	conn.OnWelcome(func(message twitch.WelcomeMessage) {
		logger.Info("EventSub connected successfully")
		c.setConnected(true)
		c.subscribe(message.Payload.Session.ID)
	})
	conn.OnNotification(func(message twitch.NotificationMessage) {
		if message.Payload.Subscription.Type != twitch.SubChannelChannelPointsCustomRewardRedemptionAdd {
			logger.Debug("Unhandled EventSub notification",
				zap.String("type", string(message.Payload.Subscription.Type)))
			return
		}
		if message.Payload.Event == nil {
			return
		}
		c.handleRedemption(*message.Payload.Event)
	})
	conn.OnKeepAlive(func(message twitch.KeepAliveMessage) {
		// KeepAliveを受信 - 接続は正常
		c.setConnected(true)
	})
	conn.OnRevoke(func(message twitch.RevokeMessage) {
		logger.Warn("EventSub subscription revoked",
			zap.String("type", string(message.Payload.Subscription.Type)),
			zap.String("status", message.Payload.Subscription.Status))
	})
}

func (c *Client) subscribe(sessionID string) {
	c.mu.Lock()
	accessToken := c.accessToken
	c.mu.Unlock()

	event := twitch.SubChannelChannelPointsCustomRewardRedemptionAdd
	logger.Info("Subscribing to EventSub event", zap.String("event", string(event)))

	_, err := twitch.SubscribeEvent(twitch.SubscribeRequest{
		SessionID:   sessionID,
		ClientID:    c.cfg.ClientID,
		AccessToken: accessToken,
		Event:       event,
		Condition:   c.condition(),
	})
	if err != nil {
		logger.Error("Failed to subscribe to event", zap.String("event", string(event)), zap.Error(err))
		return
	}
	logger.Info("Successfully subscribed to event", zap.String("event", string(event)))
}

func (c *Client) condition() map[string]string {
	cond := map[string]string{"broadcaster_user_id": c.cfg.BroadcasterID}
	if c.cfg.RewardID != "" {
		cond["reward_id"] = c.cfg.RewardID
	}
	return cond
}

func (c *Client) handleRedemption(raw []byte) {
	r, ok, err := decodeRedemption(raw, c.cfg.RewardID)
	if err != nil {
		logger.Error("Failed to parse channel points custom reward event", zap.Error(err))
		return
	}
	if !ok {
		logger.Debug("Skipping redemption for non-configured reward", zap.String("reward_id", r.RewardID))
		return
	}
	c.handler(r)
}

// decodeRedemption parses a notification event. ok is false when the
// redemption belongs to another reward.
func decodeRedemption(raw []byte, rewardID string) (dispatch.Redemption, bool, error) {
	var evt twitch.EventChannelChannelPointsCustomRewardRedemptionAdd
	if err := json.Unmarshal(raw, &evt); err != nil {
		return dispatch.Redemption{}, false, err
	}
	r := dispatch.Redemption{
		ID:        evt.ID,
		RewardID:  evt.Reward.ID,
		UserLogin: evt.UserLogin,
		UserInput: evt.UserInput,
	}
	if rewardID != "" && evt.Reward.ID != rewardID {
		return r, false, nil
	}
	return r, true, nil
}
