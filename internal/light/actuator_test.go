package light

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nantokaworks/twitch-lighter/internal/color"
	"github.com/nantokaworks/twitch-lighter/internal/homeassistant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLight struct {
	mu      sync.Mutex
	domains []string
	calls   []homeassistant.TurnOnRequest
	err     error
}

func (f *fakeLight) TurnOn(_ context.Context, domain string, r homeassistant.TurnOnRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domains = append(f.domains, domain)
	f.calls = append(f.calls, r)
	return f.err
}

func TestSetLight_Brightness(t *testing.T) {
	tests := []struct {
		name  string
		color color.Color
		want  uint8
	}{
		{"white", color.White, 255},
		{"black", color.Black, 0},
		{"blue", color.Color{B: 255}, 85},
		{"mixed", color.Color{R: 10, G: 20, B: 30}, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeLight{}
			a := NewActuator(Config{Domain: "light", EntityID: "light.desk", Transition: 1}, f)

			require.NoError(t, a.SetLight(context.Background(), tt.color, 2.5))
			require.Len(t, f.calls, 1)

			got := f.calls[0]
			assert.Equal(t, "light", f.domains[0])
			assert.Equal(t, "light.desk", got.EntityID)
			assert.InDelta(t, 2.5, got.Transition, 1e-9)
			assert.Equal(t, tt.color.RGB(), got.RGBColor)
			assert.Equal(t, tt.want, got.Brightness)
		})
	}
}

func TestSetDefault_UsesConfiguredTransition(t *testing.T) {
	f := &fakeLight{}
	a := NewActuator(Config{EntityID: "light.desk", Transition: 0.75}, f)

	require.NoError(t, a.SetDefault(context.Background(), color.White))
	require.Len(t, f.calls, 1)
	assert.InDelta(t, 0.75, f.calls[0].Transition, 1e-9)
	assert.Equal(t, "light", f.domains[0], "domain defaults to light")
}

func TestSetLight_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	a := NewActuator(Config{EntityID: "light.desk"}, &fakeLight{err: boom})

	err := a.SetLight(context.Background(), color.White, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestPlayPattern_AppliesInOrder(t *testing.T) {
	f := &fakeLight{}
	a := NewActuator(Config{EntityID: "light.desk", Transition: 0}, f)

	p, ok := color.LookupPattern("trans")
	require.True(t, ok)
	require.NoError(t, a.PlayPattern(context.Background(), p))

	require.Len(t, f.calls, len(p))
	for i, c := range p {
		assert.Equal(t, c.RGB(), f.calls[i].RGBColor)
	}
}

func TestPlayPattern_StopsOnError(t *testing.T) {
	f := &fakeLight{err: errors.New("unavailable")}
	a := NewActuator(Config{EntityID: "light.desk"}, f)

	err := a.PlayPattern(context.Background(), color.Pattern{color.White, color.Black})
	require.Error(t, err)
	assert.Len(t, f.calls, 1)
}

func TestPlayPattern_Cancelled(t *testing.T) {
	f := &fakeLight{}
	a := NewActuator(Config{EntityID: "light.desk", Transition: 60}, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.PlayPattern(ctx, color.Pattern{color.White, color.Black})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.calls, 1)
}
