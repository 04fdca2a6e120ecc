package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/amqp"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/analytics"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/auth"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/config"
	apphttp "github.com/rishabh4701/personalized-finance-dashboard/internal/http"
	applog "github.com/rishabh4701/personalized-finance-dashboard/internal/log"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/services"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)
	log := logger.WithComponent(applog.ComponentApp)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("Configuration validation failed", applog.FieldError, err.Error())
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		log.Error("Failed to initialize SQLite repository",
			applog.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// AMQP is optional: without it transactions stay local and alerts
	// are only served synchronously.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			log.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
			os.Exit(1)
		}
		defer amqpClient.Close()
		log.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		log.Info("AMQP disabled - no AMQP_URL provided")
	}

	var alertPublisher analytics.AlertPublisher
	var syncPublisher *amqp.Client
	if amqpClient != nil {
		alertPublisher = amqpClient
		syncPublisher = amqpClient
	}

	deps := apphttp.Deps{
		Accounts:  services.NewAccountService(repo, cfg.JWTSecret, cfg.TokenValidity, cfg.BcryptCost),
		Budgets:   services.NewBudgetService(repo),
		EMIs:      services.NewEMIService(repo),
		Analytics: analytics.NewService(repo, alertPublisher, logger),
		Gate:      auth.NewGate([]byte(cfg.JWTSecret)),
		Logger:    logger,
	}
	if syncPublisher != nil {
		deps.Ledger = services.NewLedgerService(repo, syncPublisher)
	} else {
		deps.Ledger = services.NewLedgerService(repo, nil)
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		log.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown error", applog.FieldError, err.Error())
		}
		cancel()
	}()

	log.Info("Starting finance-api server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("Server stopped gracefully")
}
