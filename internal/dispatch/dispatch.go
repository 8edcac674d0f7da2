// Package dispatch turns viewer events into light changes.
//
// Transports call OnRedemption and OnChatMessage from their own goroutines.
// Those only hand the event to the worker pool; the blocking light call and
// the redemption fulfillment run on a worker. Any failure drops the event:
// it is logged and counted, never retried and never propagated.
package dispatch

import (
	"context"
	"time"

	"github.com/nantokaworks/twitch-lighter/internal/color"
	"github.com/nantokaworks/twitch-lighter/internal/metrics"
	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"go.uber.org/zap"
)

const (
	SourceRedemption = "redemption"
	SourceChat       = "chat"
)

// Redemption is a channel-point reward claim.
type Redemption struct {
	ID        string
	RewardID  string
	UserLogin string
	UserInput string
}

// ChatMessage is one chat line in the target channel.
type ChatMessage struct {
	ID        string
	Channel   string
	UserLogin string
	Text      string
}

// Light is the actuator. *light.Actuator implements it.
type Light interface {
	SetDefault(ctx context.Context, c color.Color) error
	PlayPattern(ctx context.Context, p color.Pattern) error
}

// Fulfiller reports a redemption as fulfilled to the platform.
type Fulfiller interface {
	FulfillRedemption(ctx context.Context, rewardID, redemptionID string) error
}

// Change describes one applied light change.
type Change struct {
	Source  string
	EventID string
	User    string
	Input   string
	Color   color.Color
	// Pattern is set when a named pattern was played; Color is then its last step.
	Pattern string
}

// Observer is told about every applied change.
type Observer interface {
	LightChanged(ch Change)
}

type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Result is what a single event ended up doing.
type Result struct {
	Outcome Outcome
	Color   color.Color
	Pattern string
	Err     error
}

type Options struct {
	Light     Light
	Fulfiller Fulfiller
	Observer  Observer
	Pool      Submitter
	// AllowPatterns lets a text that names a pattern play it.
	AllowPatterns bool
}

type Dispatcher struct {
	light         Light
	fulfiller     Fulfiller
	observer      Observer
	pool          Submitter
	allowPatterns bool
}

func New(opts Options) *Dispatcher {
	return &Dispatcher{
		light:         opts.Light,
		fulfiller:     opts.Fulfiller,
		observer:      opts.Observer,
		pool:          opts.Pool,
		allowPatterns: opts.AllowPatterns,
	}
}

// OnRedemption queues r and returns immediately.
func (d *Dispatcher) OnRedemption(r Redemption) {
	d.pool.Submit(SourceRedemption, func(ctx context.Context) {
		d.ProcessRedemption(ctx, r)
	})
}

// OnChatMessage queues m and returns immediately.
func (d *Dispatcher) OnChatMessage(m ChatMessage) {
	d.pool.Submit(SourceChat, func(ctx context.Context) {
		d.ProcessChat(ctx, m)
	})
}

// ProcessRedemption changes the light and, only if that succeeded, marks the
// redemption fulfilled. A failed redemption is left for the platform to expire.
func (d *Dispatcher) ProcessRedemption(ctx context.Context, r Redemption) Result {
	res := d.apply(ctx, r.UserInput)
	if res.Outcome == OutcomeApplied {
		d.notify(res, Change{Source: SourceRedemption, EventID: r.ID, User: r.UserLogin, Input: r.UserInput})
		if d.fulfiller != nil {
			if err := d.fulfiller.FulfillRedemption(ctx, r.RewardID, r.ID); err != nil {
				res.Outcome = OutcomeDropped
				res.Err = err
			}
		}
	}

	fields := []zap.Field{
		zap.String("redemption_id", r.ID),
		zap.String("user", r.UserLogin),
		zap.String("input", r.UserInput),
	}
	d.record(SourceRedemption, res, fields)
	return res
}

// ProcessChat changes the light for a chat line. Nothing is reported back.
func (d *Dispatcher) ProcessChat(ctx context.Context, m ChatMessage) Result {
	res := d.apply(ctx, m.Text)
	if res.Outcome == OutcomeApplied {
		d.notify(res, Change{Source: SourceChat, EventID: m.ID, User: m.UserLogin, Input: m.Text})
	}

	fields := []zap.Field{
		zap.String("message_id", m.ID),
		zap.String("user", m.UserLogin),
		zap.String("text", m.Text),
	}
	d.record(SourceChat, res, fields)
	return res
}

func (d *Dispatcher) apply(ctx context.Context, text string) Result {
	if d.allowPatterns {
		if p, ok := color.LookupPattern(text); ok && len(p) > 0 {
			res := Result{Color: p[len(p)-1], Pattern: color.Normalize(text)}
			if err := d.timed(func() error { return d.light.PlayPattern(ctx, p) }); err != nil {
				res.Outcome = OutcomeDropped
				res.Err = err
			}
			return res
		}
	}

	c := color.Resolve(text)
	if err := d.timed(func() error { return d.light.SetDefault(ctx, c) }); err != nil {
		return Result{Outcome: OutcomeDropped, Color: c, Err: err}
	}
	return Result{Outcome: OutcomeApplied, Color: c}
}

func (d *Dispatcher) timed(call func() error) error {
	start := time.Now()
	err := call()
	metrics.LightCallDuration.Observe(time.Since(start).Seconds())
	return err
}

func (d *Dispatcher) notify(res Result, ch Change) {
	if d.observer == nil {
		return
	}
	ch.Color = res.Color
	ch.Pattern = res.Pattern
	d.observer.LightChanged(ch)
}

func (d *Dispatcher) record(source string, res Result, fields []zap.Field) {
	metrics.EventsTotal.WithLabelValues(source, res.Outcome.String()).Inc()

	fields = append(fields, zap.String("source", source), zap.String("color", res.Color.Hex()))
	if res.Pattern != "" {
		fields = append(fields, zap.String("pattern", res.Pattern))
	}
	if res.Outcome == OutcomeDropped {
		logger.Warn("Event dropped", append(fields, zap.Error(res.Err))...)
		return
	}
	logger.Info("Light color applied", fields...)
}
