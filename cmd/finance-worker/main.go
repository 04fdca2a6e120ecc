package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/amqp"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/config"
	applog "github.com/rishabh4701/personalized-finance-dashboard/internal/log"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/sheets"
	gsheet "github.com/rishabh4701/personalized-finance-dashboard/internal/sheets/google"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/storage"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)
	log := logger.WithComponent(applog.ComponentWorker)

	log.Info("Starting finance-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("Configuration validation failed", applog.FieldError, err.Error())
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		log.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		log.Error("Failed to initialize SQLite repository",
			applog.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Statement mirroring is optional; without a spreadsheet the worker
	// still drains the queue and records alerts.
	var statement sheets.StatementWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			log.Error("Failed to initialize Google Sheets client", applog.FieldError, err.Error())
			os.Exit(1)
		}
		statement = client
		log.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		log.Info("Statement mirroring disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		log.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	w := worker.New(repo, statement, logger, cfg.SyncBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catch up on rows whose messages were lost before consuming.
	if _, err := w.ProcessPending(ctx); err != nil {
		log.Error("Startup catch-up failed", applog.FieldError, err.Error())
		// Don't exit - continue with normal operation
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeMessages(ctx, func(msg *amqp.Message) error {
			return w.HandleMessage(ctx, msg)
		})
	})

	g.Go(func() error {
		return w.RunCatchUp(ctx, cfg.SyncInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Worker stopped with error", applog.FieldError, err.Error())
		os.Exit(1)
	}

	log.Info("Worker stopped gracefully")
}
