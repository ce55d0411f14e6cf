package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	WebApp     WebAppConfig     `mapstructure:"webapp"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type WebAppConfig struct {
	URL string `mapstructure:"url"`
}

// ScraperConfig points at the analysis service. URL may be empty, in which
// case the bot runs but answers every analyzable message with a "service
// unavailable" reply.
type ScraperConfig struct {
	URL             string        `mapstructure:"url"`
	ImageTimeout    time.Duration `mapstructure:"image_timeout"`
	TextTimeout     time.Duration `mapstructure:"text_timeout"`
	LinkTimeout     time.Duration `mapstructure:"link_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

type LimitsConfig struct {
	RateWindow    time.Duration `mapstructure:"rate_window"`
	RateLimit     int           `mapstructure:"rate_limit"`
	MaxImageBytes int64         `mapstructure:"max_image_bytes"`
	MaxConcurrent int64         `mapstructure:"max_concurrent"`
}

type ClassifierConfig struct {
	WishTriggers []string `mapstructure:"wish_triggers"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("scraper.image_timeout", "30s")
	v.SetDefault("scraper.text_timeout", "30s")
	v.SetDefault("scraper.link_timeout", "45s")
	v.SetDefault("scraper.download_timeout", "15s")
	v.SetDefault("limits.rate_window", "60s")
	v.SetDefault("limits.rate_limit", 12)
	v.SetDefault("limits.max_image_bytes", 5*1024*1024)
	v.SetDefault("limits.max_concurrent", 32)
	v.SetDefault("classifier.wish_triggers", []string{"хочу", "i wish"})

	// Enable environment variable support
	v.AutomaticEnv()

	// The config file is optional; environment variables alone are enough.
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Environment variables take precedence over the file.
	if token := v.GetString("BOT_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if webAppURL := v.GetString("WEB_APP_URL"); webAppURL != "" {
		config.WebApp.URL = webAppURL
	}
	if scraperURL := v.GetString("LINK_SCRAPER_URL"); scraperURL != "" {
		config.Scraper.URL = scraperURL
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required (BOT_TOKEN)")
	}
	if c.WebApp.URL == "" {
		return fmt.Errorf("web app URL is required (WEB_APP_URL)")
	}
	if !strings.HasPrefix(c.WebApp.URL, "http://") && !strings.HasPrefix(c.WebApp.URL, "https://") {
		c.WebApp.URL = "https://" + c.WebApp.URL
	}
	c.Scraper.URL = strings.TrimRight(c.Scraper.URL, "/")
	return nil
}
