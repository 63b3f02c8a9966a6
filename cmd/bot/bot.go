package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/abelzeko/water-watcher/internal/api"
	"github.com/abelzeko/water-watcher/internal/config"
	"github.com/abelzeko/water-watcher/internal/integration/openai"
	"github.com/abelzeko/water-watcher/internal/logging"
	"github.com/abelzeko/water-watcher/internal/repository"
	"github.com/abelzeko/water-watcher/internal/usecases"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	logger.Info().Msg("starting water-watcher bot")

	if cfg.TelegramBotToken == "" {
		logger.Fatal().Msg("TELEGRAM_BOT_TOKEN is not set")
	}

	store, err := repository.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer store.Close()

	var openAIService openai.OpenAIService
	if cfg.OpenAIAPIKey != "" {
		openAIService, err = openai.NewOpenAIService(cfg.OpenAIAPIKey)
		if err != nil {
			logger.Warn().Err(err).Msg("OpenAI service unavailable, natural-language queries disabled")
		}
	}

	info := usecases.NewRiverInfo(store, openAIService, logger)
	telegramBot, err := api.NewTelegramBot(cfg.TelegramBotToken, info, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize Telegram bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramBot.Start(ctx)
	logger.Info().Msg("bot stopped")
}
