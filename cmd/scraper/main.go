package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"steam-market-scraper/internal/config"
	"steam-market-scraper/internal/services"
	"steam-market-scraper/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("[Scraper] received %v, finishing current item and stopping", sig)
		cancel()
	}()

	session := services.NewBrowserSession(ctx, cfg.Headless)
	defer session.Close()
	session.Login(ctx, cfg.SteamUsername, cfg.SteamPassword)

	client := services.NewClient(services.ClientOptions{
		Proxies:           cfg.ProxyList,
		Attempts:          cfg.RetryBudget,
		BackoffBase:       cfg.BackoffBase,
		BackoffCap:        cfg.BackoffCap,
		RequestsPerSecond: cfg.RequestsPerSecond,
		ScrapingKey:       cfg.ScrapingKey,
	})

	fetcher := services.NewSnapshotFetcher(client, session, cfg.SessionCookie)

	writer, err := services.NewDatasetWriter(cfg.DataDir)
	if err != nil {
		log.Fatalf("[Scraper] dataset dir: %v", err)
	}
	if cfg.DatabaseURL != "" {
		store, err := storage.Initialize(cfg.DatabaseURL)
		if err != nil {
			log.Printf("[Scraper] mirror disabled: %v", err)
		} else {
			writer.SetMirror(store)
		}
	}

	orch := services.NewOrchestrator(
		session,
		fetcher,
		services.NewHistoryReconciler(),
		writer,
		cfg.MarketURL,
		cfg.RetryBudget,
	)

	stats, err := orch.Run(ctx)
	if err != nil {
		log.Printf("[Scraper] run aborted: %v", err)
		log.Printf("[Scraper] persisted tables remain valid (succeeded=%d skipped=%d failed=%d)",
			stats.Succeeded, stats.Skipped, stats.Failed)
		os.Exit(1)
	}
}
