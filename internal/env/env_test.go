package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOMEASSISTANT_URL", "http://homeassistant.local:8123/api/")
	t.Setenv("HOMEASSISTANT_TOKEN", "ha-token")
	t.Setenv("HOMEASSISTANT_LIGHT_ENTITY", "light.desk")
	t.Setenv("APP_ID", "client-id")
	t.Setenv("APP_SECRET", "client-secret")
	t.Setenv("TARGET_CHANNEL", "#SomeStreamer")
}

func TestLoadEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://homeassistant.local:8123/api", cfg.HomeAssistantURL)
	assert.Equal(t, "light", cfg.LightDomain)
	assert.Equal(t, "somestreamer", cfg.TargetChannel)
	assert.False(t, cfg.AllowChannelPoints)
	assert.False(t, cfg.AllowChat)
	assert.False(t, cfg.AllowPatterns)
	assert.InDelta(t, 1.0, cfg.TransitionLength, 1e-9)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 64, cfg.QueueSize)
}

func TestLoadEnv_FeatureFlags(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALLOW_CHANNEL_POINTS", "1")
	t.Setenv("ALLOW_CHAT", "t")
	t.Setenv("REWARD_ID", "reward-1")
	t.Setenv("TRANSITION_LENGTH", "2.5")

	cfg, err := LoadEnv()
	require.NoError(t, err)

	assert.True(t, cfg.AllowChannelPoints)
	assert.True(t, cfg.AllowChat)
	assert.Equal(t, "reward-1", cfg.RewardID)
	assert.InDelta(t, 2.5, cfg.TransitionLength, 1e-9)
}

func TestLoadEnv_RewardRequiredWithChannelPoints(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALLOW_CHANNEL_POINTS", "true")

	_, err := LoadEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REWARD_ID")
}

func TestLoadEnv_InvalidURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HOMEASSISTANT_URL", "not a url")

	_, err := LoadEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HOMEASSISTANT_URL")
}

func TestLoadEnv_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HOMEASSISTANT_TOKEN", "")

	_, err := LoadEnv()
	assert.Error(t, err)
}
