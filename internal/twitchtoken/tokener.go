// Package twitchtoken はTwitchのユーザートークン（Authorization Code Flow）を管理する。
package twitchtoken

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/nantokaworks/twitch-lighter/internal/localdb"
	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"github.com/nicklaw5/helix/v2"
	"go.uber.org/zap"
)

var scopes = []string{
	"chat:read",
	"chat:edit",
	"channel:read:redemptions",
	"channel:manage:redemptions",
}

// ErrAuthTimeout はブラウザでの認証が時間内に完了しなかった場合に返される。
var ErrAuthTimeout = errors.New("timed out waiting for twitch authorization")

// DefaultAuthTimeout is how long Authenticate waits for /callback.
const DefaultAuthTimeout = 5 * time.Minute

// Store persists tokens. *localdb.DB implements it.
type Store interface {
	SaveToken(t localdb.Token) error
	LatestToken() (localdb.Token, error)
}

// oauthAPI is the OAuth subset of *helix.Client.
type oauthAPI interface {
	GetAuthorizationURL(params *helix.AuthorizationURLParams) string
	RequestUserAccessToken(code string) (*helix.UserAccessTokenResponse, error)
	RefreshUserAccessToken(refreshToken string) (*helix.RefreshTokenResponse, error)
}

type Authenticator struct {
	store   Store
	oauth   oauthAPI
	clock   clockwork.Clock
	timeout time.Duration

	mu     sync.Mutex
	state  string
	issued chan localdb.Token
}

// NewAuthenticator builds an Authenticator whose redirect URI points at the
// local /callback endpoint.
func NewAuthenticator(store Store, clientID, clientSecret, redirectURI string, clock clockwork.Clock) (*Authenticator, error) {
	hc, err := helix.NewClient(&helix.Options{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create helix oauth client: %w", err)
	}
	return newAuthenticator(store, hc, clock), nil
}

func newAuthenticator(store Store, oauth oauthAPI, clock clockwork.Clock) *Authenticator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Authenticator{
		store:   store,
		oauth:   oauth,
		clock:   clock,
		timeout: DefaultAuthTimeout,
		issued:  make(chan localdb.Token, 1),
	}
}

// Valid reports whether t can still be used at now.
func Valid(t localdb.Token, now time.Time) bool {
	return t.AccessToken != "" && now.Unix() < t.ExpiresAt
}

// Authenticate returns a usable token. 保存済みトークン → リフレッシュ → ブラウザ認証の順に試す。
func (a *Authenticator) Authenticate(ctx context.Context) (localdb.Token, error) {
	stored, err := a.store.LatestToken()
	switch {
	case err == nil:
		if Valid(stored, a.clock.Now()) {
			logger.Info("Using stored Twitch token")
			return stored, nil
		}
		if stored.RefreshToken != "" {
			refreshed, err := a.Refresh(ctx, stored.RefreshToken)
			if err == nil {
				return refreshed, nil
			}
			logger.Warn("Failed to refresh stored token, falling back to browser authorization", zap.Error(err))
		}
	case errors.Is(err, localdb.ErrNoToken):
		logger.Info("No stored Twitch token")
	default:
		return localdb.Token{}, err
	}

	return a.waitForAuthorization(ctx)
}

// AuthURL returns a fresh authorization URL. 呼ぶたびにstateを再発行する。
func (a *Authenticator) AuthURL() (string, error) {
	state, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}

	a.mu.Lock()
	a.state = state
	a.mu.Unlock()

	return a.oauth.GetAuthorizationURL(&helix.AuthorizationURLParams{
		ResponseType: "code",
		Scopes:       scopes,
		State:        state,
	}), nil
}

func (a *Authenticator) waitForAuthorization(ctx context.Context) (localdb.Token, error) {
	authURL, err := a.AuthURL()
	if err != nil {
		return localdb.Token{}, err
	}
	logger.Info("Open the following URL in your browser to authorize", zap.String("url", authURL))

	select {
	case t := <-a.issued:
		return t, nil
	case <-a.clock.After(a.timeout):
		return localdb.Token{}, ErrAuthTimeout
	case <-ctx.Done():
		return localdb.Token{}, ctx.Err()
	}
}

// Exchange trades an authorization code for a token and stores it.
func (a *Authenticator) Exchange(ctx context.Context, code string) (localdb.Token, error) {
	if err := ctx.Err(); err != nil {
		return localdb.Token{}, err
	}

	resp, err := a.oauth.RequestUserAccessToken(code)
	if err != nil {
		return localdb.Token{}, fmt.Errorf("failed to exchange code: %w", err)
	}
	if resp.StatusCode != 200 {
		return localdb.Token{}, fmt.Errorf("failed to exchange code: status %d: %s", resp.StatusCode, resp.ErrorMessage)
	}
	return a.save(resp.Data)
}

// Refresh obtains a new token from refreshToken and stores it.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (localdb.Token, error) {
	if err := ctx.Err(); err != nil {
		return localdb.Token{}, err
	}

	resp, err := a.oauth.RefreshUserAccessToken(refreshToken)
	if err != nil {
		return localdb.Token{}, fmt.Errorf("failed to refresh token: %w", err)
	}
	if resp.StatusCode != 200 {
		return localdb.Token{}, fmt.Errorf("failed to refresh token: status %d: %s", resp.StatusCode, resp.ErrorMessage)
	}

	t, err := a.save(resp.Data)
	if err != nil {
		return localdb.Token{}, err
	}
	logger.Info("Twitch token refreshed", zap.Time("expires_at", time.Unix(t.ExpiresAt, 0)))
	return t, nil
}

func (a *Authenticator) save(c helix.AccessCredentials) (localdb.Token, error) {
	if c.AccessToken == "" {
		return localdb.Token{}, errors.New("access_token not found in response")
	}
	t := localdb.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Scope:        strings.Join(c.Scopes, " "),
		ExpiresAt:    a.clock.Now().Unix() + int64(c.ExpiresIn),
	}
	if err := a.store.SaveToken(t); err != nil {
		return localdb.Token{}, err
	}
	return t, nil
}

// deliver hands a token obtained through /callback to a waiting Authenticate.
func (a *Authenticator) deliver(t localdb.Token) {
	select {
	case a.issued <- t:
	default:
		// 誰も待っていない（既に認証済み）場合は保存のみで十分
	}
}

func (a *Authenticator) checkState(state string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state != "" && state == a.state
}
