package main

import (
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"portfolioanalytics/internal/api"
	"portfolioanalytics/internal/jobs"
	"portfolioanalytics/internal/marketdata"
	"portfolioanalytics/internal/migrations"
	"portfolioanalytics/internal/performance"
	"portfolioanalytics/internal/store"
	"portfolioanalytics/internal/utils"
)

func main() {
	// Load configuration
	config, err := utils.LoadConfig("configs")
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := utils.NewAppLogger(config.LogLevel)

	// Initialize database connection
	db, err := store.Open(config.Database.DSN)
	if err != nil {
		logger.Error("Error connecting to database: %v", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Connected to database successfully")

	// Run migrations
	if err := migrations.RunMigrations(db); err != nil {
		logger.Error("Failed to run migrations: %v", err)
		os.Exit(1)
	}

	st := store.New(db, logger)

	// Price source: local cache backed by the provider API
	var provider marketdata.Provider
	if config.MarketData.BaseURL != "" {
		provider = marketdata.NewClient(config.MarketData, logger)
	} else {
		logger.Warn("No market data provider configured, serving cached prices only")
	}
	prices := marketdata.NewSource(st, provider, logger)

	// Performance core
	service := performance.NewService(st, st, prices, st, logger)

	// Background jobs: backfill queue, nightly sweep, price refresh
	scheduler := jobs.NewScheduler(config.Scheduler, service, st, st, prices, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("Failed to start scheduler: %v", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	// Create and start the server
	server := api.NewServer(logger, config, db, st, service, scheduler)
	if err := server.Start(); err != nil {
		logger.Error("Error starting server: %v", err)
		os.Exit(1)
	}
}
