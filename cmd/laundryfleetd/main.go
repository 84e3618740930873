package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"laundry-fleet-backend/config"
	"laundry-fleet-backend/internal/api"
	"laundry-fleet-backend/internal/collector"
	"laundry-fleet-backend/internal/db"
	"laundry-fleet-backend/internal/directory"
	"laundry-fleet-backend/internal/machines"
	"laundry-fleet-backend/internal/notification"
	"laundry-fleet-backend/internal/store"
	"laundry-fleet-backend/internal/vendorapi"
)

func main() {
	logger := log.New(os.Stdout, "laundry-fleet ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	dir := directory.New(cfg.Locations, cfg.Sites)
	if len(dir.Agents()) == 0 {
		logger.Fatalf("no usable locations configured; check the 'locations' and 'sites' config sections")
	}
	logger.Printf("device directory built: %d agent(s), %d machine(s)", len(dir.Agents()), len(dir.AllMappings()))

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var webpushOptions *webpush.Options
	var workerPool *notification.WorkerPool
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool = notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, dir, webpushOptions)
		workerPool.Start(ctx)
	} else {
		logger.Println("VAPID keys not configured; completion notifications disabled")
	}

	var notifier collector.Notifier
	if workerPool != nil {
		notifier = workerPool
	}
	coll := collector.New(appStore, dir, cfg.Vendor.PendingCommandTTL, notifier)
	if err := coll.Seed(ctx); err != nil {
		logger.Fatalf("failed to seed collector baseline: %v", err)
	}

	client := vendorapi.NewClient(&cfg.Vendor)
	if locations, err := client.ListLocations(ctx); err != nil {
		logger.Printf("warning: vendor location listing failed: %v", err)
	} else {
		logger.Printf("vendor reports %d location(s)", len(locations))
	}

	svc := machines.NewService(&cfg.Vendor, client, dir, coll)
	go svc.Run(ctx)

	router := api.NewRouter(&cfg.Server, svc, appStore, dir, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
