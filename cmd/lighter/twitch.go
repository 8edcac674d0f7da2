package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nantokaworks/twitch-lighter/internal/dispatch"
	"github.com/nantokaworks/twitch-lighter/internal/env"
	"github.com/nantokaworks/twitch-lighter/internal/localdb"
	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"github.com/nantokaworks/twitch-lighter/internal/twitchapi"
	"github.com/nantokaworks/twitch-lighter/internal/twitchchat"
	"github.com/nantokaworks/twitch-lighter/internal/twitcheventsub"
	"github.com/nantokaworks/twitch-lighter/internal/twitchtoken"
	"go.uber.org/zap"
)

// twitchSide はTwitch側の部品（認証、Helix、EventSub、チャット）をまとめる。
type twitchSide struct {
	cfg *env.Config
	db  *localdb.DB

	auth      *twitchtoken.Authenticator
	api       *twitchapi.Client
	refresher *twitchtoken.Refresher
	eventsub  *twitcheventsub.Client
	chat      *twitchchat.Client

	token         localdb.Token
	botLogin      string
	broadcasterID string
}

func newTwitch(cfg *env.Config, db *localdb.DB) (*twitchSide, error) {
	t := &twitchSide{cfg: cfg, db: db}

	redirectURI := fmt.Sprintf("http://localhost:%d/callback", cfg.ServerPort)
	auth, err := twitchtoken.NewAuthenticator(db, cfg.ClientID, cfg.ClientSecret, redirectURI, clockwork.NewRealClock())
	if err != nil {
		return nil, err
	}
	t.auth = auth

	api, err := twitchapi.New(cfg.ClientID, cfg.ClientSecret, t.onHelixRefresh)
	if err != nil {
		return nil, err
	}
	t.api = api
	return t, nil
}

// authenticate obtains a token and resolves the bot and broadcaster ids.
func (t *twitchSide) authenticate(ctx context.Context) error {
	token, err := t.auth.Authenticate(ctx)
	if err != nil {
		return err
	}
	t.token = token
	t.refresher = twitchtoken.NewRefresher(t.auth, token)
	t.refresher.OnRefresh(t.onTokenRefreshed)
	t.api.SetUserToken(token.AccessToken, token.RefreshToken)

	user, err := t.api.CurrentUser(ctx)
	if err != nil {
		// 取り消されたトークンは削除し、次回起動時にブラウザ認証からやり直す
		var apiErr *twitchapi.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			if delErr := t.db.DeleteAllTokens(); delErr != nil {
				logger.Warn("Failed to delete rejected token", zap.Error(delErr))
			}
		}
		return fmt.Errorf("failed to identify token owner: %w", err)
	}
	t.botLogin = user.Login

	broadcasterID, err := t.api.ResolveUserID(ctx, t.cfg.TargetChannel)
	if err != nil {
		return fmt.Errorf("failed to resolve channel %s: %w", t.cfg.TargetChannel, err)
	}
	t.broadcasterID = broadcasterID
	t.api.SetBroadcasterID(broadcasterID)

	logger.Info("Authenticated with Twitch",
		zap.String("login", user.Login),
		zap.String("channel", t.cfg.TargetChannel),
		zap.String("broadcaster_id", broadcasterID))
	return nil
}

// startSources wires EventSub (when channel points are allowed) and chat to d.
// Chat is always built so that it joins the channel; its message handler is
// registered only when chat is allowed.
func (t *twitchSide) startSources(d *dispatch.Dispatcher) error {
	// EventSub開始後はHelixのリフレッシュがt.chatを参照するため先に作る
	t.chat = twitchchat.New(twitchchat.Config{
		Username:    t.botLogin,
		AccessToken: t.token.AccessToken,
		Channel:     t.cfg.TargetChannel,
		AllowChat:   t.cfg.AllowChat,
	}, d.OnChatMessage)

	if t.cfg.AllowChannelPoints {
		t.eventsub = twitcheventsub.New(twitcheventsub.Config{
			ClientID:      t.cfg.ClientID,
			BroadcasterID: t.broadcasterID,
			RewardID:      t.cfg.RewardID,
		}, d.OnRedemption)
		if err := t.eventsub.Start(t.token.AccessToken); err != nil {
			return fmt.Errorf("failed to start EventSub: %w", err)
		}
	}
	return nil
}

func (t *twitchSide) stopSources() {
	if t.eventsub != nil {
		t.eventsub.Stop()
	}
	if t.chat != nil {
		t.chat.Stop()
	}
}

func (t *twitchSide) transports() map[string]bool {
	status := map[string]bool{}
	if t.eventsub != nil {
		status["eventsub"] = t.eventsub.IsConnected()
	}
	if t.chat != nil {
		status["chat"] = t.chat.IsConnected()
	}
	return status
}

func (t *twitchSide) onTokenRefreshed(token localdb.Token) {
	t.api.SetUserToken(token.AccessToken, token.RefreshToken)
	if t.chat != nil {
		t.chat.SetToken(token.AccessToken)
	}
	if t.eventsub != nil {
		logger.Info("Restarting EventSub after token refresh")
		if err := t.eventsub.Restart(token.AccessToken); err != nil {
			logger.Error("Failed to restart EventSub", zap.Error(err))
		}
	}
}

// onHelixRefresh stores a token that Helix refreshed by itself after a 401.
// 有効期限は分からないため期限切れとして保存し、次のリフレッシュで置き換える。
func (t *twitchSide) onHelixRefresh(accessToken, refreshToken string) {
	token := localdb.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Scope:        t.token.Scope,
		ExpiresAt:    time.Now().Unix(),
	}
	if err := t.db.SaveToken(token); err != nil {
		logger.Error("Failed to save refreshed token", zap.Error(err))
	}
	if t.refresher != nil {
		t.refresher.Update(token)
	}
	if t.chat != nil {
		t.chat.SetToken(accessToken)
	}
}
