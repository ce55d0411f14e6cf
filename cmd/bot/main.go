package main

import (
	"github.com/xaenox/wishcard-bot/internal/bot"
	"github.com/xaenox/wishcard-bot/internal/classifier"
	"github.com/xaenox/wishcard-bot/internal/gateway"
	"github.com/xaenox/wishcard-bot/internal/ratelimit"
	"github.com/xaenox/wishcard-bot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	if cfg.Scraper.URL == "" {
		logger.Warn("Analysis service URL is not set; analysis requests will be refused")
	}

	limiter := ratelimit.New(cfg.Limits.RateWindow, cfg.Limits.RateLimit)
	clf := classifier.New(cfg.Classifier.WishTriggers)
	gw := gateway.New(cfg.Scraper.URL, cfg.Limits.MaxImageBytes, logger)

	// Initialize bot
	b, err := bot.New(
		cfg.Telegram.Token,
		limiter,
		clf,
		gw,
		bot.Options{
			WebAppURL:     cfg.WebApp.URL,
			ImageTimeout:  cfg.Scraper.ImageTimeout,
			TextTimeout:   cfg.Scraper.TextTimeout,
			LinkTimeout:   cfg.Scraper.LinkTimeout,
			MaxImageBytes: cfg.Limits.MaxImageBytes,
		},
		cfg.Scraper.DownloadTimeout,
		cfg.Limits.MaxConcurrent,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	logger.Info("Bot started", zap.String("web_app_url", cfg.WebApp.URL))

	// Start the bot
	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}
