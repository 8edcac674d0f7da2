package twitchtoken

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nantokaworks/twitch-lighter/internal/localdb"
	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"go.uber.org/zap"
)

const (
	// RefreshMargin は期限切れの何分前にリフレッシュするか。
	RefreshMargin = 30 * time.Minute
	retryInterval = time.Minute
)

// Refresher keeps the user token fresh and tells listeners about new tokens.
type Refresher struct {
	auth  *Authenticator
	clock clockwork.Clock

	mu        sync.Mutex
	token     localdb.Token
	listeners []func(localdb.Token)
}

func NewRefresher(auth *Authenticator, initial localdb.Token) *Refresher {
	return &Refresher{auth: auth, clock: auth.clock, token: initial}
}

// OnRefresh registers fn. fn runs on the refresher goroutine.
func (r *Refresher) OnRefresh(fn func(localdb.Token)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Token returns the current token.
func (r *Refresher) Token() localdb.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

// Update replaces the current token without notifying listeners,
// e.g. when Helix refreshed it on its own.
func (r *Refresher) Update(t localdb.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = t
}

// Run blocks until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	for {
		wait := r.untilRefresh()
		logger.Debug("Next token refresh scheduled", zap.Duration("in", wait))

		select {
		case <-ctx.Done():
			return nil
		case <-r.clock.After(wait):
		}

		current := r.Token()
		t, err := r.auth.Refresh(ctx, current.RefreshToken)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("Failed to refresh token", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-r.clock.After(retryInterval):
			}
			continue
		}

		r.mu.Lock()
		r.token = t
		listeners := append([]func(localdb.Token){}, r.listeners...)
		r.mu.Unlock()

		for _, fn := range listeners {
			fn(t)
		}
	}
}

func (r *Refresher) untilRefresh() time.Duration {
	expiresAt := time.Unix(r.Token().ExpiresAt, 0)
	wait := expiresAt.Add(-RefreshMargin).Sub(r.clock.Now())
	if wait < 0 {
		return 0
	}
	return wait
}
