// Package light issues color changes to the configured Home Assistant light.
package light

import (
	"context"
	"fmt"
	"time"

	"github.com/nantokaworks/twitch-lighter/internal/color"
	"github.com/nantokaworks/twitch-lighter/internal/homeassistant"
	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"go.uber.org/zap"
)

// TurnOner is the light collaborator. *homeassistant.Client implements it.
type TurnOner interface {
	TurnOn(ctx context.Context, domain string, r homeassistant.TurnOnRequest) error
}

type Config struct {
	Domain   string
	EntityID string
	// Transition is the default fade duration in seconds.
	Transition float64
}

type Actuator struct {
	cfg    Config
	client TurnOner
}

func NewActuator(cfg Config, client TurnOner) *Actuator {
	if cfg.Domain == "" {
		cfg.Domain = "light"
	}
	return &Actuator{cfg: cfg, client: client}
}

// SetLight turns the light on with c over transition seconds. Brightness is
// the mean of the channels. Errors are returned as-is, never retried.
func (a *Actuator) SetLight(ctx context.Context, c color.Color, transition float64) error {
	req := homeassistant.TurnOnRequest{
		EntityID:   a.cfg.EntityID,
		Transition: transition,
		RGBColor:   c.RGB(),
		Brightness: c.Brightness(),
	}

	if err := a.client.TurnOn(ctx, a.cfg.Domain, req); err != nil {
		return fmt.Errorf("failed to set %s to %s: %w", a.cfg.EntityID, c.Hex(), err)
	}

	logger.Debug("Light updated",
		zap.String("entity_id", a.cfg.EntityID),
		zap.String("color", c.Hex()),
		zap.Uint8("brightness", req.Brightness),
		zap.Float64("transition", transition))
	return nil
}

// SetDefault is SetLight with the configured transition.
func (a *Actuator) SetDefault(ctx context.Context, c color.Color) error {
	return a.SetLight(ctx, c, a.cfg.Transition)
}

// PlayPattern applies each color of p in order and waits for the fade to
// finish before the next one.
func (a *Actuator) PlayPattern(ctx context.Context, p color.Pattern) error {
	step := time.Duration(a.cfg.Transition * float64(time.Second))
	for i, c := range p {
		if err := a.SetLight(ctx, c, a.cfg.Transition); err != nil {
			return err
		}
		if i == len(p)-1 {
			break
		}

		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
