// Package twitchchat は対象チャンネルのチャットをIRCで受け取る。
package twitchchat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"github.com/nantokaworks/twitch-lighter/internal/dispatch"
	"github.com/nantokaworks/twitch-lighter/internal/metrics"
	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"go.uber.org/zap"
)

const transportName = "chat"

type Config struct {
	// Username はトークン所有者のログイン名
	Username    string
	AccessToken string
	Channel     string
	// AllowChat が false の場合は参加のみでメッセージは処理しない
	AllowChat bool
}

type Client struct {
	client    *twitchirc.Client
	channel   string
	onMessage func(dispatch.ChatMessage)
	connected atomic.Bool
}

// New registers the ready handler always and the message handler only when
// chat is allowed.
func New(cfg Config, onMessage func(dispatch.ChatMessage)) *Client {
	client := twitchirc.NewClient(cfg.Username, ircPassword(cfg.AccessToken))

	c := &Client{
		client:  client,
		channel: normalizeChannel(cfg.Channel),
	}

	client.OnConnect(func() {
		logger.Info("Chat connected, joining channel", zap.String("channel", c.channel))
		c.setConnected(true)
		client.Join(c.channel)
	})

	client.OnReconnectMessage(func(message twitchirc.ReconnectMessage) {
		logger.Info("Chat server requested reconnect")
	})

	if cfg.AllowChat {
		c.onMessage = onMessage
		client.OnPrivateMessage(c.handlePrivateMessage)
	}

	return c
}

// Run connects and blocks until ctx is done or the connection fails. A
// cancelled ctx always makes Run return, even while the dial or the login
// is still pending.
func (c *Client) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- c.client.Connect()
	}()

	select {
	case <-ctx.Done():
		c.setConnected(false)
		if err := c.client.Disconnect(); errors.Is(err, twitchirc.ErrConnectionIsNotOpen) {
			// 最初の行を受信する前は切断できない。接続中のgoroutineは待たずに終了する
			logger.Debug("Chat connection not established yet, abandoning connect")
			return nil
		}
		<-errCh
		return nil
	case err := <-errCh:
		c.setConnected(false)
		if errors.Is(err, twitchirc.ErrClientDisconnected) {
			return nil
		}
		return err
	}
}

// Stop disconnects. Run returns afterwards.
func (c *Client) Stop() {
	if err := c.client.Disconnect(); err != nil && !errors.Is(err, twitchirc.ErrConnectionIsNotOpen) {
		logger.Warn("Failed to disconnect chat", zap.Error(err))
	}
}

// SetToken swaps the IRC password used on the next (re)connect.
func (c *Client) SetToken(accessToken string) {
	c.client.SetIRCToken(ircPassword(accessToken))
}

// IsConnected reports whether the IRC connection is up.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) setConnected(connected bool) {
	c.connected.Store(connected)
	v := 0.0
	if connected {
		v = 1
	}
	metrics.TransportConnected.WithLabelValues(transportName).Set(v)
}

// MessagesEnabled reports whether chat lines are forwarded.
func (c *Client) MessagesEnabled() bool {
	return c.onMessage != nil
}

func (c *Client) handlePrivateMessage(m twitchirc.PrivateMessage) {
	if c.onMessage == nil {
		return
	}
	msg := toChatMessage(m)
	if msg.Channel != c.channel {
		return
	}
	c.onMessage(msg)
}

func toChatMessage(m twitchirc.PrivateMessage) dispatch.ChatMessage {
	return dispatch.ChatMessage{
		ID:        m.ID,
		Channel:   normalizeChannel(m.Channel),
		UserLogin: m.User.Name,
		Text:      m.Message,
	}
}

func ircPassword(token string) string {
	if strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}

func normalizeChannel(ch string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#"))
}
