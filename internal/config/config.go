// Package config loads pipeline settings from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every knob the pipeline and bot read from the environment.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Database
	DBPath string `envconfig:"DB_PATH" default:""`

	// Scrape intervals (minutes)
	ScrapeIntervalMinutes    int `envconfig:"SCRAPE_INTERVAL_MINUTES" default:"240"`
	RaftWatchIntervalMinutes int `envconfig:"RAFT_WATCH_INTERVAL_MINUTES" default:"30"`

	// Request settings
	RequestTimeoutSeconds int `envconfig:"REQUEST_TIMEOUT" default:"30"`

	// Craigslist regions to monitor
	CraigslistRegions string `envconfig:"CRAIGSLIST_REGIONS" default:"seattle,portland,denver,saltlakecity,boise"`

	// Upstream endpoints
	USGSBaseURL string `envconfig:"USGS_BASE_URL" default:"https://waterservices.usgs.gov/nwis"`
	AWBaseURL   string `envconfig:"AW_BASE_URL" default:"https://www.americanwhitewater.org/content"`

	// Push notifications (VAPID). Empty keys disable push delivery.
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY" default:""`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY" default:""`
	VAPIDSubject    string `envconfig:"VAPID_SUBJECT" default:"mailto:you@example.com"`

	// Email (Resend). Empty key disables email delivery.
	ResendAPIKey string `envconfig:"RESEND_API_KEY" default:""`
	FromEmail    string `envconfig:"NOTIFICATION_FROM_EMAIL" default:"alerts@waterwatcher.app"`

	// Telegram bot
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`

	// OpenAI, used by the bot for natural-language queries. Empty disables it.
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY" default:""`
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the handful of settings with hard constraints.
func (c *Config) Validate() error {
	if c.ScrapeIntervalMinutes < 1 {
		return fmt.Errorf("SCRAPE_INTERVAL_MINUTES must be >= 1")
	}
	if c.RaftWatchIntervalMinutes < 1 {
		return fmt.Errorf("RAFT_WATCH_INTERVAL_MINUTES must be >= 1")
	}
	if c.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("REQUEST_TIMEOUT must be >= 1")
	}
	return nil
}

// CraigslistRegionList splits the configured regions, dropping empties.
func (c *Config) CraigslistRegionList() []string {
	parts := strings.Split(c.CraigslistRegions, ",")
	regions := make([]string, 0, len(parts))
	for _, part := range parts {
		region := strings.TrimSpace(part)
		if region == "" {
			continue
		}
		regions = append(regions, region)
	}
	return regions
}

// PushConfigured reports whether VAPID keys are present.
func (c *Config) PushConfigured() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}
