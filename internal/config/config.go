package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Backend struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"backend"`
	Broker struct {
		BaseURL   string  `yaml:"base_url"`
		KeyID     string  `yaml:"key_id"`
		SecretKey string  `yaml:"secret_key"`
		RateLimit float64 `yaml:"rate_limit"` // requests per second
	} `yaml:"broker"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		BulkTime         string `yaml:"bulk_time"`
		BulkEnabled      bool   `yaml:"bulk_enabled"`
		FinalistTime     string `yaml:"finalist_time"`
		FinalistEnabled  bool   `yaml:"finalist_enabled"`
		AutoBuyEnabled   bool   `yaml:"auto_buy_enabled"`
		ThresholdTime    string `yaml:"threshold_time"`
		ThresholdEnabled bool   `yaml:"threshold_enabled"`
	} `yaml:"schedule"`
	Trading struct {
		AutoBuyTime       string  `yaml:"auto_buy_time"`
		AutoSellTime      string  `yaml:"auto_sell_time"`
		InvestmentPercent float64 `yaml:"investment_percent"`
		TakeProfitPercent float64 `yaml:"take_profit_percent"`
		StopLossPercent   float64 `yaml:"stop_loss_percent"`
		InitialAmount     float64 `yaml:"initial_amount"`
		Currency          string  `yaml:"currency"`
	} `yaml:"trading"`
	Threshold struct {
		Enabled            bool    `yaml:"enabled"`
		TargetScore        float64 `yaml:"target_score"`
		MaxCycles          int     `yaml:"max_cycles"`
		DelayBetweenCycles int     `yaml:"delay_between_cycles"` // minutes
	} `yaml:"threshold"`
	Settings struct {
		StateFile string `yaml:"state_file"`
	} `yaml:"settings"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("BACKEND_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("BACKEND_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("BROKER_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("BROKER_KEY_ID"); v != "" {
		cfg.Broker.KeyID = v
	}
	if v := os.Getenv("BROKER_SECRET_KEY"); v != "" {
		cfg.Broker.SecretKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// Defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Broker.RateLimit == 0 {
		cfg.Broker.RateLimit = 3 // ~200/min broker API budget with headroom
	}
	if cfg.Schedule.BulkTime == "" {
		cfg.Schedule.BulkTime = "09:30"
	}
	if cfg.Schedule.FinalistTime == "" {
		cfg.Schedule.FinalistTime = "14:30"
	}
	if cfg.Schedule.ThresholdTime == "" {
		cfg.Schedule.ThresholdTime = "14:15"
	}
	if cfg.Trading.AutoBuyTime == "" {
		cfg.Trading.AutoBuyTime = "09:30"
	}
	if cfg.Trading.AutoSellTime == "" {
		cfg.Trading.AutoSellTime = "15:45"
	}
	if cfg.Trading.InvestmentPercent == 0 {
		cfg.Trading.InvestmentPercent = 10
	}
	if cfg.Trading.TakeProfitPercent == 0 {
		cfg.Trading.TakeProfitPercent = 5
	}
	if cfg.Trading.StopLossPercent == 0 {
		cfg.Trading.StopLossPercent = 3
	}
	if cfg.Trading.InitialAmount == 0 {
		cfg.Trading.InitialAmount = 10000
	}
	if cfg.Trading.Currency == "" {
		cfg.Trading.Currency = "USD"
	}
	if cfg.Threshold.TargetScore == 0 {
		cfg.Threshold.TargetScore = 70
	}
	if cfg.Threshold.MaxCycles == 0 {
		cfg.Threshold.MaxCycles = 5
	}
	if cfg.Threshold.DelayBetweenCycles == 0 {
		cfg.Threshold.DelayBetweenCycles = 30
	}
	if cfg.Settings.StateFile == "" {
		cfg.Settings.StateFile = "data/autopilot_settings.json"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/autopilot.db"
	}

	return cfg, nil
}

// Validate checks that all required fields are set and every configured
// time-of-day parses, so malformed schedules never reach the evaluator.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required")
	}
	for name, v := range map[string]string{
		"schedule.bulk_time":      c.Schedule.BulkTime,
		"schedule.finalist_time":  c.Schedule.FinalistTime,
		"schedule.threshold_time": c.Schedule.ThresholdTime,
		"trading.auto_buy_time":   c.Trading.AutoBuyTime,
		"trading.auto_sell_time":  c.Trading.AutoSellTime,
	} {
		parsed, err := time.Parse("15:04", v)
		if err != nil || parsed.Format("15:04") != v {
			return fmt.Errorf("%s: invalid time %q (want zero-padded HH:MM)", name, v)
		}
	}
	if c.Threshold.TargetScore < 0 || c.Threshold.TargetScore > 100 {
		return fmt.Errorf("threshold.target_score must be in [0, 100]")
	}
	return nil
}
