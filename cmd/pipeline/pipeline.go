package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abelzeko/water-watcher/internal/config"
	"github.com/abelzeko/water-watcher/internal/integration"
	"github.com/abelzeko/water-watcher/internal/integration/email"
	"github.com/abelzeko/water-watcher/internal/integration/webpush"
	"github.com/abelzeko/water-watcher/internal/logging"
	"github.com/abelzeko/water-watcher/internal/notifiers"
	"github.com/abelzeko/water-watcher/internal/repository"
	"github.com/abelzeko/water-watcher/internal/usecases"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
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
	logger.Info().Msg("starting water-watcher pipeline")

	store, err := repository.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer store.Close()

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	conditionScrapers := []integration.Scraper{
		integration.NewUSGSScraper(cfg.USGSBaseURL, store, timeout, logger),
		integration.NewAWScraper(cfg.AWBaseURL, store, timeout, logger),
	}
	craigslist := integration.NewCraigslistScraper(cfg.CraigslistRegionList(), timeout, logger)

	processor := usecases.NewConditionProcessor(store, logger)
	matcher := usecases.NewDealMatcher(store, logger)

	pushChannel := webpush.NewChannel(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	push := notifiers.NewPushNotifier(store, pushChannel, cfg.PushConfigured(), logger)

	var emailSender notifiers.EmailSender
	if sender := email.NewResendSender(cfg.ResendAPIKey, cfg.FromEmail); sender != nil {
		emailSender = sender
	}
	emailNotifier := notifiers.NewEmailNotifier(store, emailSender, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runConditions := func() {
		for _, scraper := range conditionScrapers {
			facts, err := scraper.Scrape(ctx)
			if err != nil {
				logger.Error().Err(err).Str("source", scraper.Name()).Msg("condition scrape failed")
				continue
			}
			processed := processor.Process(ctx, facts, scraper.Name())
			for _, cond := range processed {
				if !cond.QualityChanged {
					continue
				}
				push.NotifyConditionChange(ctx, cond.RiverID, cond.RiverName, cond.OldQuality, cond.NewQuality)
				emailNotifier.NotifyConditionChange(ctx, cond.RiverID, cond.RiverName, cond.OldQuality, cond.NewQuality)
			}
		}
	}

	runRaftWatch := func() {
		facts, err := craigslist.Scrape(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("gear deal scrape failed")
			return
		}
		matches := matcher.Match(ctx, facts)
		if len(matches) == 0 {
			return
		}
		push.NotifyDealMatches(ctx, matches)
		emailNotifier.NotifyDealMatches(ctx, matches)
	}

	// Run both jobs once on startup so a fresh deploy has data immediately.
	runConditions()
	runRaftWatch()

	c := cron.New()
	if err := schedule(c, cfg.ScrapeIntervalMinutes, runConditions); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule condition job")
	}
	if err := schedule(c, cfg.RaftWatchIntervalMinutes, runRaftWatch); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule raft watch job")
	}
	c.Start()

	logger.Info().
		Int("scrape_interval_minutes", cfg.ScrapeIntervalMinutes).
		Int("raft_watch_interval_minutes", cfg.RaftWatchIntervalMinutes).
		Msg("pipeline scheduled")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	waitForJobs(c, logger)
}

func schedule(c *cron.Cron, intervalMinutes int, job func()) error {
	_, err := c.AddFunc(fmt.Sprintf("@every %dm", intervalMinutes), job)
	return err
}

// waitForJobs lets in-flight cron jobs finish, bounded so shutdown cannot
// hang on a stuck scrape.
func waitForJobs(c *cron.Cron, logger zerolog.Logger) {
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("jobs still running after 30s, exiting anyway")
	}
}
