// Package env は環境変数（と.envファイル）から設定を読み込む。
package env

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	simplerenv "go-simpler.org/env"
)

// Config は起動時に一度だけ読み込まれ、各コンポーネントへ値で渡される。
type Config struct {
	// Home Assistant
	HomeAssistantURL   string `env:"HOMEASSISTANT_URL,required"`
	HomeAssistantToken string `env:"HOMEASSISTANT_TOKEN,required"`
	LightDomain        string `env:"HOMEASSISTANT_LIGHT_DOMAIN" default:"light"`
	LightEntity        string `env:"HOMEASSISTANT_LIGHT_ENTITY,required"`

	// Twitch
	ClientID      string `env:"APP_ID,required"`
	ClientSecret  string `env:"APP_SECRET,required"`
	TargetChannel string `env:"TARGET_CHANNEL,required"`
	RewardID      string `env:"REWARD_ID"`

	// 機能フラグ
	AllowChannelPoints bool `env:"ALLOW_CHANNEL_POINTS" default:"false"`
	AllowChat          bool `env:"ALLOW_CHAT" default:"false"`
	AllowPatterns      bool `env:"ALLOW_PATTERNS" default:"false"`

	// 調光
	TransitionLength float64 `env:"TRANSITION_LENGTH" default:"1"`

	// 動作設定
	ServerPort  int    `env:"SERVER_PORT" default:"8080"`
	DBPath      string `env:"DB_PATH" default:"lighter.db"`
	WorkerCount int    `env:"WORKER_COUNT" default:"4"`
	QueueSize   int    `env:"QUEUE_SIZE" default:"64"`
	DebugMode   bool   `env:"DEBUG_MODE" default:"false"`
}

// LoadEnv は.envファイルがあれば読み込み、環境変数をConfigへデコードする。
// .envが無いことはエラーにしない。
func LoadEnv(files ...string) (*Config, error) {
	// godotenv.Loadは既存の環境変数を上書きしない
	_ = godotenv.Load(files...)

	var cfg Config
	if err := simplerenv.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.TargetChannel = normalizeChannel(cfg.TargetChannel)
	cfg.HomeAssistantURL = strings.TrimRight(strings.TrimSpace(cfg.HomeAssistantURL), "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	required := []struct{ name, value string }{
		{"HOMEASSISTANT_URL", c.HomeAssistantURL},
		{"HOMEASSISTANT_TOKEN", c.HomeAssistantToken},
		{"HOMEASSISTANT_LIGHT_ENTITY", c.LightEntity},
		{"APP_ID", c.ClientID},
		{"APP_SECRET", c.ClientSecret},
		{"TARGET_CHANNEL", c.TargetChannel},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	u, err := url.Parse(c.HomeAssistantURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("HOMEASSISTANT_URL must be an absolute URL, got %q", c.HomeAssistantURL)
	}
	if c.AllowChannelPoints && c.RewardID == "" {
		return errors.New("REWARD_ID is required when ALLOW_CHANNEL_POINTS is enabled")
	}
	if c.TransitionLength < 0 {
		return fmt.Errorf("TRANSITION_LENGTH must not be negative, got %v", c.TransitionLength)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.ServerPort)
	}
	if c.WorkerCount <= 0 {
		return errors.New("WORKER_COUNT must be greater than zero")
	}
	if c.QueueSize <= 0 {
		return errors.New("QUEUE_SIZE must be greater than zero")
	}
	return nil
}

func normalizeChannel(ch string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#"))
}
