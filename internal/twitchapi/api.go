// Package twitchapi wraps the Twitch Helix API calls the lighter needs.
package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"github.com/nicklaw5/helix/v2"
	"go.uber.org/zap"
)

// RedemptionStatus is the state a redemption can be moved to.
type RedemptionStatus string

const (
	StatusFulfilled RedemptionStatus = "FULFILLED"
	StatusCanceled  RedemptionStatus = "CANCELED"
)

var ErrUserNotFound = errors.New("user not found")

// User is the identity behind a login or an access token.
type User struct {
	ID    string
	Login string
}

// helixAPI is the subset of *helix.Client used here.
type helixAPI interface {
	GetUsers(params *helix.UsersParams) (*helix.UsersResponse, error)
	UpdateChannelCustomRewardsRedemptionStatus(params *helix.UpdateChannelCustomRewardsRedemptionStatusParams) (*helix.ChannelCustomRewardsRedemptionResponse, error)
	ValidateToken(accessToken string) (bool, *helix.ValidateTokenResponse, error)
	SetUserAccessToken(accessToken string)
	SetRefreshToken(refreshToken string)
}

type Client struct {
	mu            sync.Mutex
	api           helixAPI
	broadcasterID string

	// Helixは401時にリクエスト中（mu保持中）にトークンを更新するため別ロック
	tokenMu     sync.Mutex
	accessToken string
}

// New creates a Helix client. onRefresh is called whenever Helix refreshes
// the user token by itself after a 401.
func New(clientID, clientSecret string, onRefresh func(accessToken, refreshToken string)) (*Client, error) {
	hc, err := helix.NewClient(&helix.Options{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}

	c := &Client{api: hc}
	hc.OnUserAccessTokenRefreshed(func(newAccessToken, newRefreshToken string) {
		c.setAccessToken(newAccessToken)

		logger.Info("Twitch user token refreshed by Helix client")
		if onRefresh != nil {
			onRefresh(newAccessToken, newRefreshToken)
		}
	})
	return c, nil
}

// SetUserToken sets the user access and refresh tokens used for every call.
func (c *Client) SetUserToken(accessToken, refreshToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setAccessToken(accessToken)
	c.api.SetUserAccessToken(accessToken)
	c.api.SetRefreshToken(refreshToken)
}

func (c *Client) setAccessToken(token string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.accessToken = token
}

func (c *Client) currentAccessToken() string {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.accessToken
}

// SetBroadcasterID sets the channel whose redemptions are updated.
func (c *Client) SetBroadcasterID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcasterID = id
}

// CurrentUser returns the owner of the current access token.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	valid, resp, err := c.api.ValidateToken(c.currentAccessToken())
	if err != nil {
		return User{}, fmt.Errorf("failed to validate token: %w", err)
	}
	if !valid || resp == nil {
		return User{}, &APIError{StatusCode: http.StatusUnauthorized, Message: "access token is not valid"}
	}
	return User{ID: resp.Data.UserID, Login: resp.Data.Login}, nil
}

// ResolveUserID looks up the numeric id of a login name.
func (c *Client) ResolveUserID(ctx context.Context, login string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.api.GetUsers(&helix.UsersParams{Logins: []string{login}})
	if err != nil {
		return "", fmt.Errorf("failed to get user %q: %w", login, err)
	}
	if err := checkResponse(resp.ResponseCommon, http.StatusOK); err != nil {
		return "", fmt.Errorf("failed to get user %q: %w", login, err)
	}
	if len(resp.Data.Users) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, login)
	}
	return resp.Data.Users[0].ID, nil
}

// UpdateRedemptionStatus moves a redemption of rewardID to status.
func (c *Client) UpdateRedemptionStatus(ctx context.Context, rewardID, redemptionID string, status RedemptionStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broadcasterID == "" {
		return errors.New("broadcaster id is not set")
	}

	resp, err := c.api.UpdateChannelCustomRewardsRedemptionStatus(&helix.UpdateChannelCustomRewardsRedemptionStatusParams{
		ID:            redemptionID,
		BroadcasterID: c.broadcasterID,
		RewardID:      rewardID,
		Status:        string(status),
	})
	if err != nil {
		return fmt.Errorf("failed to update redemption %s: %w", redemptionID, err)
	}
	if err := checkResponse(resp.ResponseCommon, http.StatusOK); err != nil {
		return fmt.Errorf("failed to update redemption %s: %w", redemptionID, err)
	}

	logger.Debug("Redemption status updated",
		zap.String("reward_id", rewardID),
		zap.String("redemption_id", redemptionID),
		zap.String("status", string(status)))
	return nil
}

// FulfillRedemption marks a redemption as FULFILLED.
func (c *Client) FulfillRedemption(ctx context.Context, rewardID, redemptionID string) error {
	return c.UpdateRedemptionStatus(ctx, rewardID, redemptionID, StatusFulfilled)
}

// APIError is a non-success Helix response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitch API returned status %d: %s", e.StatusCode, e.Message)
}

func checkResponse(rc helix.ResponseCommon, want int) error {
	if rc.StatusCode == want {
		return nil
	}
	msg := rc.ErrorMessage
	if msg == "" {
		msg = rc.Error
	}
	return &APIError{StatusCode: rc.StatusCode, Message: msg}
}
